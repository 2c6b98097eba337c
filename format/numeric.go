package format

// Numeric is the set of Go element types with a fixed-size BP4 encoding.
type Numeric interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// TypeOf returns the DataType of a Go value: a supported scalar, a slice of one, or a string.
// Anything else, including structs, maps as compound values, returns TypeCompound.
func TypeOf(v any) DataType {
	switch v.(type) {
	case int8, []int8:
		return TypeInt8
	case int16, []int16:
		return TypeInt16
	case int32, []int32:
		return TypeInt32
	case int64, []int64:
		return TypeInt64
	case uint8, []uint8:
		return TypeUint8
	case uint16, []uint16:
		return TypeUint16
	case uint32, []uint32:
		return TypeUint32
	case uint64, []uint64:
		return TypeUint64
	case float32, []float32:
		return TypeFloat32
	case float64, []float64:
		return TypeFloat64
	case string:
		return TypeString
	case nil:
		return TypeUnknown
	default:
		return TypeCompound
	}
}

// TypeFor returns the DataType of the type parameter T.
func TypeFor[T Numeric]() DataType {
	var zero T
	return TypeOf(any(zero))
}
