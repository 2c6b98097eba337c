package serializer

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/compress"
	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/section"
)

// Metadata is the decoded metadata of a dataset: the index file and every step it lists.
type Metadata struct {
	Index section.IndexFileHeader
	Rows  []section.IndexRow
	// Steps holds the metadata of Rows[i] at index i.
	Steps []section.StepMetadata
}

// Engine returns the byte order of the dataset.
func (m *Metadata) Engine() endian.EndianEngine {
	return m.Index.Engine()
}

// Deserialize decodes an index file image and the metadata file image it points into.
// Files of either byte order are accepted.
func Deserialize(index, metadata []byte) (*Metadata, error) {
	h, rows, err := section.ParseIndexRows(index)
	if err != nil {
		return nil, errors.Wrap(err, "index file")
	}

	mh, err := section.ParseFileHeader(metadata)
	if err != nil {
		return nil, errors.Wrap(err, "metadata file")
	}
	if mh.LittleEndian != h.LittleEndian {
		return nil, errors.Wrap(errs.ErrEndianMismatch, "metadata and index files differ in byte order")
	}

	out := &Metadata{Index: h, Rows: rows, Steps: make([]section.StepMetadata, 0, len(rows))}
	for _, row := range rows {
		step, err := section.ParseStepMetadataAt(metadata, 0, row, h.Engine())
		if err != nil {
			return nil, err
		}
		out.Steps = append(out.Steps, step)
	}

	return out, nil
}

// BlockPayload returns the raw payload of the block described by c from a data file image,
// reversing its operator.
func BlockPayload(data []byte, c *section.Characteristics) ([]byte, error) {
	end := c.PayloadOffset + c.PayloadSize
	if end < c.PayloadOffset || end > uint64(len(data)) {
		return nil, errors.Wrapf(errs.ErrFormat, "block payload [%d, %d) outside data file of %d bytes",
			c.PayloadOffset, end, len(data))
	}

	return UnpackPayload(data[c.PayloadOffset:end], c)
}

// UnpackPayload reverses the operator recorded in c on the stored payload bytes.
func UnpackPayload(stored []byte, c *section.Characteristics) ([]byte, error) {
	if c.Operator == 0 || c.Operator == format.CompressionNone {
		return stored, nil
	}

	op, err := compress.Get(c.Operator)
	if err != nil {
		return nil, err
	}

	return op.Decompress(stored, int(c.RawSize)) //nolint:gosec
}

// DecodeValues decodes a payload of dtype elements into a typed slice, or a string for
// string payloads.
func DecodeValues(dtype format.DataType, payload []byte, engine endian.EndianEngine) (any, error) {
	switch dtype {
	case format.TypeInt8:
		return encoding.DecodeSlice[int8](payload, engine)
	case format.TypeInt16:
		return encoding.DecodeSlice[int16](payload, engine)
	case format.TypeInt32:
		return encoding.DecodeSlice[int32](payload, engine)
	case format.TypeInt64:
		return encoding.DecodeSlice[int64](payload, engine)
	case format.TypeUint8:
		return encoding.DecodeSlice[uint8](payload, engine)
	case format.TypeUint16:
		return encoding.DecodeSlice[uint16](payload, engine)
	case format.TypeUint32:
		return encoding.DecodeSlice[uint32](payload, engine)
	case format.TypeUint64:
		return encoding.DecodeSlice[uint64](payload, engine)
	case format.TypeFloat32:
		return encoding.DecodeSlice[float32](payload, engine)
	case format.TypeFloat64:
		return encoding.DecodeSlice[float64](payload, engine)
	case format.TypeString:
		return string(payload), nil
	default:
		return nil, errors.Wrapf(errs.ErrUnsupportedType, "data type %d", dtype)
	}
}

// DecodeScalar decodes a single encoded value, such as a block minimum, or a string.
func DecodeScalar(dtype format.DataType, b []byte, engine endian.EndianEngine) (any, error) {
	v, err := DecodeValues(dtype, b, engine)
	if err != nil || dtype == format.TypeString {
		return v, err
	}

	return firstElement(v)
}

func firstElement(v any) (any, error) {
	switch s := v.(type) {
	case []int8:
		return first(s)
	case []int16:
		return first(s)
	case []int32:
		return first(s)
	case []int64:
		return first(s)
	case []uint8:
		return first(s)
	case []uint16:
		return first(s)
	case []uint32:
		return first(s)
	case []uint64:
		return first(s)
	case []float32:
		return first(s)
	case []float64:
		return first(s)
	default:
		return nil, errors.Wrapf(errs.ErrUnsupportedType, "value of type %T", v)
	}
}

func first[T format.Numeric](s []T) (any, error) {
	if len(s) != 1 {
		return nil, errors.Wrapf(errs.ErrFormat, "expected one value, got %d", len(s))
	}

	return s[0], nil
}
