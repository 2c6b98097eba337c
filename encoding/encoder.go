package encoding

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/internal/pool"
)

// Encoder writes fixed-width values at the cursor of a pool.Buffer.
//
// The first failure is kept and returned by Err; later calls do nothing.
type Encoder struct {
	buf    *pool.Buffer
	engine endian.EndianEngine
	err    error
}

// NewEncoder creates an encoder appending to buf in engine byte order.
func NewEncoder(buf *pool.Buffer, engine endian.EndianEngine) *Encoder {
	return &Encoder{buf: buf, engine: engine}
}

// Engine returns the byte order used by the encoder.
func (e *Encoder) Engine() endian.EndianEngine {
	return e.engine
}

// Buffer returns the destination buffer.
func (e *Encoder) Buffer() *pool.Buffer {
	return e.buf
}

// Err returns the first error met by the encoder.
func (e *Encoder) Err() error {
	return e.err
}

// Position returns the destination cursor.
func (e *Encoder) Position() int {
	return e.buf.Position()
}

func (e *Encoder) next(n int) []byte {
	if e.err != nil {
		return nil
	}

	dst, err := e.buf.Next(n)
	if err != nil {
		e.err = err
		return nil
	}

	return dst
}

func (e *Encoder) PutUint8(v uint8) {
	if dst := e.next(1); dst != nil {
		dst[0] = v
	}
}

func (e *Encoder) PutUint16(v uint16) {
	if dst := e.next(2); dst != nil {
		e.engine.PutUint16(dst, v)
	}
}

func (e *Encoder) PutUint32(v uint32) {
	if dst := e.next(4); dst != nil {
		e.engine.PutUint32(dst, v)
	}
}

func (e *Encoder) PutUint64(v uint64) {
	if dst := e.next(8); dst != nil {
		e.engine.PutUint64(dst, v)
	}
}

// PutBytes writes p verbatim.
func (e *Encoder) PutBytes(p []byte) {
	if dst := e.next(len(p)); dst != nil {
		copy(dst, p)
	}
}

// PutString writes s with a uint16 length prefix.
func (e *Encoder) PutString(s string) {
	if e.err != nil {
		return
	}
	if len(s) > MaxStringLength {
		e.err = errors.Wrapf(errs.ErrInvalidArgument, "string of %d bytes exceeds maximum %d", len(s), MaxStringLength)
		return
	}

	e.PutUint16(uint16(len(s))) //nolint:gosec
	if dst := e.next(len(s)); dst != nil {
		copy(dst, s)
	}
}

// Reserve advances the cursor by n zero bytes and returns their offset, for values patched later.
func (e *Encoder) Reserve(n int) int {
	offset := e.buf.Position()
	if dst := e.next(n); dst != nil {
		clear(dst)
	}

	return offset
}

// Slot returns n bytes at the cursor for the caller to fill, advancing past them.
func (e *Encoder) Slot(n int) []byte {
	return e.next(n)
}

// PatchUint32 overwrites a previously reserved uint32 at offset.
func (e *Encoder) PatchUint32(offset int, v uint32) {
	if e.err != nil {
		return
	}
	e.engine.PutUint32(e.buf.At(offset, 4), v)
}

// PatchUint64 overwrites a previously reserved uint64 at offset.
func (e *Encoder) PatchUint64(offset int, v uint64) {
	if e.err != nil {
		return
	}
	e.engine.PutUint64(e.buf.At(offset, 8), v)
}

// PatchUint16 overwrites a previously reserved uint16 at offset.
func (e *Encoder) PatchUint16(offset int, v uint16) {
	if e.err != nil {
		return
	}
	e.engine.PutUint16(e.buf.At(offset, 2), v)
}

// Fail records err as the encoder error unless one is already set.
func (e *Encoder) Fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
