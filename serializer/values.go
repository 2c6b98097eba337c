package serializer

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
)

// values is a typed payload resolved once from the caller's value.
type values interface {
	// Len returns the number of elements.
	Len() int
	// Size returns the encoded payload size in bytes.
	Size() int
	// Encode writes the payload into dst, which holds Size bytes.
	Encode(dst []byte, engine endian.EndianEngine)
	// MinMax returns the encoded minimum and maximum, nil for empty or non-numeric payloads.
	MinMax(engine endian.EndianEngine) (minV, maxV []byte)
}

type numericValues[T format.Numeric] struct {
	vals []T
}

func (v numericValues[T]) Len() int { return len(v.vals) }

func (v numericValues[T]) Size() int { return len(v.vals) * encoding.SizeOf[T]() }

func (v numericValues[T]) Encode(dst []byte, engine endian.EndianEngine) {
	encoding.EncodeSlice(dst, engine, v.vals)
}

func (v numericValues[T]) MinMax(engine endian.EndianEngine) ([]byte, []byte) {
	if len(v.vals) == 0 {
		return nil, nil
	}

	lo, hi := v.vals[0], v.vals[0]
	for _, x := range v.vals[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}

	size := encoding.SizeOf[T]()
	minV, maxV := make([]byte, size), make([]byte, size)
	encoding.PutValue(minV, engine, lo)
	encoding.PutValue(maxV, engine, hi)

	return minV, maxV
}

type stringValue struct {
	s string
}

func (v stringValue) Len() int { return 1 }

func (v stringValue) Size() int { return len(v.s) }

func (v stringValue) Encode(dst []byte, _ endian.EndianEngine) { copy(dst, v.s) }

func (v stringValue) MinMax(endian.EndianEngine) ([]byte, []byte) { return nil, nil }

func numeric[T format.Numeric](v any) (values, bool) {
	switch x := v.(type) {
	case []T:
		return numericValues[T]{vals: x}, true
	case T:
		return numericValues[T]{vals: []T{x}}, true
	default:
		return nil, false
	}
}

// resolveValues checks that v holds elements of dtype and wraps it.
func resolveValues(dtype format.DataType, v any) (values, error) {
	var (
		out values
		ok  bool
	)

	switch dtype {
	case format.TypeInt8:
		out, ok = numeric[int8](v)
	case format.TypeInt16:
		out, ok = numeric[int16](v)
	case format.TypeInt32:
		out, ok = numeric[int32](v)
	case format.TypeInt64:
		out, ok = numeric[int64](v)
	case format.TypeUint8:
		out, ok = numeric[uint8](v)
	case format.TypeUint16:
		out, ok = numeric[uint16](v)
	case format.TypeUint32:
		out, ok = numeric[uint32](v)
	case format.TypeUint64:
		out, ok = numeric[uint64](v)
	case format.TypeFloat32:
		out, ok = numeric[float32](v)
	case format.TypeFloat64:
		out, ok = numeric[float64](v)
	case format.TypeString:
		var s string
		s, ok = v.(string)
		out = stringValue{s: s}
	case format.TypeCompound:
		return nil, errors.Wrap(errs.ErrUnsupportedType, "compound types cannot be serialized")
	default:
		return nil, errors.Wrapf(errs.ErrUnsupportedType, "data type %d", dtype)
	}

	if !ok {
		got := format.TypeOf(v)
		if got == format.TypeCompound {
			return nil, errors.Wrapf(errs.ErrUnsupportedType, "value of type %T", v)
		}

		return nil, errors.Wrapf(errs.ErrInvalidArgument, "value of type %T does not match %s", v, dtype)
	}

	return out, nil
}

// encodeValues returns the payload of v in engine byte order.
func encodeValues(v values, engine endian.EndianEngine) []byte {
	out := make([]byte, v.Size())
	v.Encode(out, engine)

	return out
}

// isArray reports whether v is a slice of elements rather than a single value.
func isArray(v any) bool {
	switch v.(type) {
	case []int8, []int16, []int32, []int64, []uint8, []uint16, []uint32, []uint64, []float32, []float64:
		return true
	default:
		return false
	}
}
