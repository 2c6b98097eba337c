package section

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
)

// CharacteristicID tags one item of a characteristics set.
type CharacteristicID uint8

const (
	CharValue         CharacteristicID = 0 // encoded single value or attribute value
	CharMin           CharacteristicID = 1 // encoded block minimum
	CharMax           CharacteristicID = 2 // encoded block maximum
	CharOffset        CharacteristicID = 3 // absolute data file offset of the block entry
	CharDimensions    CharacteristicID = 4 // per-dimension shape, start and count
	CharTimeIndex     CharacteristicID = 5 // step the block was written in
	CharPayloadOffset CharacteristicID = 6 // absolute data file offset of the payload
	CharFileIndex     CharacteristicID = 7 // data subfile holding the block
	CharOperator      CharacteristicID = 8 // operator type and raw payload size
	CharPayloadSize   CharacteristicID = 9 // stored payload size in bytes
)

// Dimension is one axis of a block: the global extent and the block's placement in it.
type Dimension struct {
	Shape uint64
	Start uint64
	Count uint64
}

// Characteristics describes one block of a variable, or the value of an attribute.
//
// Value, Min and Max hold element bytes in the file's byte order.
type Characteristics struct {
	Value         []byte
	Min           []byte
	Max           []byte
	Offset        uint64
	PayloadOffset uint64
	PayloadSize   uint64
	Dimensions    []Dimension
	TimeIndex     uint32
	FileIndex     uint32
	Operator      format.CompressionType
	RawSize       uint64
}

// Shape returns the global shape recorded in the dimensions.
func (c *Characteristics) Shape() []uint64 {
	out := make([]uint64, len(c.Dimensions))
	for i, d := range c.Dimensions {
		out[i] = d.Shape
	}

	return out
}

// Start returns the block start recorded in the dimensions.
func (c *Characteristics) Start() []uint64 {
	out := make([]uint64, len(c.Dimensions))
	for i, d := range c.Dimensions {
		out[i] = d.Start
	}

	return out
}

// Count returns the block count recorded in the dimensions.
func (c *Characteristics) Count() []uint64 {
	out := make([]uint64, len(c.Dimensions))
	for i, d := range c.Dimensions {
		out[i] = d.Count
	}

	return out
}

// Relocate shifts the data file offsets of the set by base.
func (c *Characteristics) Relocate(base uint64) {
	c.Offset += base
	c.PayloadOffset += base
}

// EncodedSize returns the number of bytes WriteTo produces. It does not depend on the
// offset values, so a set can be sized before its offsets are known.
func (c *Characteristics) EncodedSize() int {
	n := 1 + 4 // count, length
	for _, b := range [][]byte{c.Value, c.Min, c.Max} {
		if b != nil {
			n += 1 + 2 + len(b)
		}
	}
	n += 3 * (1 + 8) // offset, payload offset, payload size
	n += 2 * (1 + 4) // time index, file index
	if len(c.Dimensions) > 0 {
		n += 1 + 1 + 24*len(c.Dimensions)
	}
	if c.Operator != 0 && c.Operator != format.CompressionNone {
		n += 1 + 1 + 8
	}

	return n
}

// WriteTo encodes the set: item count, byte length, then the items.
func (c *Characteristics) WriteTo(enc *encoding.Encoder) {
	countAt := enc.Reserve(1)
	lengthAt := enc.Reserve(4)
	start := enc.Position()
	count := 0

	putBytes := func(id CharacteristicID, b []byte) {
		if b == nil {
			return
		}
		if len(b) > encoding.MaxStringLength {
			enc.Fail(errors.Wrapf(errs.ErrInvalidArgument, "characteristic %d of %d bytes too large", id, len(b)))
			return
		}
		enc.PutUint8(uint8(id))
		enc.PutUint16(uint16(len(b))) //nolint:gosec
		enc.PutBytes(b)
		count++
	}
	putU64 := func(id CharacteristicID, v uint64) {
		enc.PutUint8(uint8(id))
		enc.PutUint64(v)
		count++
	}
	putU32 := func(id CharacteristicID, v uint32) {
		enc.PutUint8(uint8(id))
		enc.PutUint32(v)
		count++
	}

	putBytes(CharValue, c.Value)
	putBytes(CharMin, c.Min)
	putBytes(CharMax, c.Max)
	putU64(CharOffset, c.Offset)
	putU64(CharPayloadOffset, c.PayloadOffset)
	putU64(CharPayloadSize, c.PayloadSize)
	putU32(CharTimeIndex, c.TimeIndex)
	putU32(CharFileIndex, c.FileIndex)

	if len(c.Dimensions) > 0 {
		enc.PutUint8(uint8(CharDimensions))
		enc.PutUint8(uint8(len(c.Dimensions))) //nolint:gosec
		for _, d := range c.Dimensions {
			enc.PutUint64(d.Shape)
			enc.PutUint64(d.Start)
			enc.PutUint64(d.Count)
		}
		count++
	}

	if c.Operator != 0 && c.Operator != format.CompressionNone {
		enc.PutUint8(uint8(CharOperator))
		enc.PutUint8(uint8(c.Operator))
		enc.PutUint64(c.RawSize)
		count++
	}

	if enc.Err() != nil {
		return
	}
	enc.Buffer().At(countAt, 1)[0] = uint8(count) //nolint:gosec
	enc.PatchUint32(lengthAt, uint32(enc.Position()-start)) //nolint:gosec
}

// ParseCharacteristics decodes one set at the decoder cursor.
func ParseCharacteristics(dec *encoding.Decoder) (Characteristics, error) {
	count := int(dec.Uint8())
	length := int(dec.Uint32())
	start := dec.Position()

	c := Characteristics{}
	readBytes := func() []byte {
		n := int(dec.Uint16())
		if b := dec.Bytes(n); b != nil {
			return append([]byte(nil), b...)
		}

		return nil
	}

	for range count {
		if dec.Err() != nil {
			break
		}

		switch id := CharacteristicID(dec.Uint8()); id {
		case CharValue:
			c.Value = readBytes()
		case CharMin:
			c.Min = readBytes()
		case CharMax:
			c.Max = readBytes()
		case CharOffset:
			c.Offset = dec.Uint64()
		case CharPayloadOffset:
			c.PayloadOffset = dec.Uint64()
		case CharPayloadSize:
			c.PayloadSize = dec.Uint64()
		case CharTimeIndex:
			c.TimeIndex = dec.Uint32()
		case CharFileIndex:
			c.FileIndex = dec.Uint32()
		case CharDimensions:
			n := int(dec.Uint8())
			c.Dimensions = make([]Dimension, n)
			for i := range n {
				c.Dimensions[i] = Dimension{Shape: dec.Uint64(), Start: dec.Uint64(), Count: dec.Uint64()}
			}
		case CharOperator:
			c.Operator = format.CompressionType(dec.Uint8())
			c.RawSize = dec.Uint64()
		default:
			return Characteristics{}, errors.Wrapf(errs.ErrFormat, "unknown characteristic id %d", id)
		}
	}

	if err := dec.Err(); err != nil {
		return Characteristics{}, err
	}
	if dec.Position()-start != length {
		return Characteristics{}, errors.Wrapf(errs.ErrFormat, "characteristics declare %d bytes, decoded %d", length, dec.Position()-start)
	}

	return c, nil
}
