package encoding

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/internal/pool"
)

// SizeOf returns the encoded size of one T.
func SizeOf[T format.Numeric]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// PutValue writes v into dst in engine byte order. dst must hold SizeOf[T]() bytes.
func PutValue[T format.Numeric](dst []byte, engine endian.EndianEngine, v T) {
	p := unsafe.Pointer(&v)
	switch unsafe.Sizeof(v) {
	case 1:
		dst[0] = *(*uint8)(p)
	case 2:
		engine.PutUint16(dst, *(*uint16)(p))
	case 4:
		engine.PutUint32(dst, *(*uint32)(p))
	case 8:
		engine.PutUint64(dst, *(*uint64)(p))
	}
}

// Value reads a T from src in engine byte order. src must hold SizeOf[T]() bytes.
func Value[T format.Numeric](src []byte, engine endian.EndianEngine) T {
	var v T
	p := unsafe.Pointer(&v)
	switch unsafe.Sizeof(v) {
	case 1:
		*(*uint8)(p) = src[0]
	case 2:
		*(*uint16)(p) = engine.Uint16(src)
	case 4:
		*(*uint32)(p) = engine.Uint32(src)
	case 8:
		*(*uint64)(p) = engine.Uint64(src)
	}

	return v
}

// CopyToBuffer appends the raw bytes of value at the buffer cursor and advances it by SizeOf[T]().
func CopyToBuffer[T format.Numeric](buf *pool.Buffer, engine endian.EndianEngine, value T) error {
	dst, err := buf.Next(SizeOf[T]())
	if err != nil {
		return err
	}
	PutValue(dst, engine, value)

	return nil
}

// CopyFromBuffer reads a T at *pos and advances *pos.
//
// The bytes are taken as native order and swapped when isLittleEndian disagrees with the host,
// so callers pass the endianness recorded in the file header.
func CopyFromBuffer[T format.Numeric](src []byte, pos *int, isLittleEndian bool) (T, error) {
	size := SizeOf[T]()
	if *pos < 0 || *pos+size > len(src) {
		var zero T
		return zero, errors.Wrapf(errs.ErrFormat, "reading %d bytes at %d past end %d", size, *pos, len(src))
	}

	v := Value[T](src[*pos:], endian.EngineFor(isLittleEndian))
	*pos += size

	return v, nil
}

// EncodeSlice writes values into dst in engine byte order. dst must hold len(values)*SizeOf[T]() bytes.
func EncodeSlice[T format.Numeric](dst []byte, engine endian.EndianEngine, values []T) {
	if len(values) == 0 {
		return
	}

	size := SizeOf[T]()
	if size == 1 || endian.CompareNativeEndian(engine) {
		copy(dst, unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*size))
		return
	}

	for i, v := range values {
		PutValue(dst[i*size:], engine, v)
	}
}

// DecodeSlice reads all elements in src, which must be a whole number of T, in engine byte order.
func DecodeSlice[T format.Numeric](src []byte, engine endian.EndianEngine) ([]T, error) {
	size := SizeOf[T]()
	if len(src)%size != 0 {
		return nil, errors.Wrapf(errs.ErrFormat, "payload of %d bytes is not a multiple of %d", len(src), size)
	}

	n := len(src) / size
	out := make([]T, n)
	if n == 0 {
		return out, nil
	}

	if size == 1 || endian.CompareNativeEndian(engine) {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(out))), len(src)), src)
		return out, nil
	}

	for i := range out {
		out[i] = Value[T](src[i*size:], engine)
	}

	return out, nil
}

// BytesOf returns the payload of values encoded in engine byte order.
func BytesOf[T format.Numeric](engine endian.EndianEngine, values []T) []byte {
	out := make([]byte, len(values)*SizeOf[T]())
	EncodeSlice(out, engine, values)

	return out
}
