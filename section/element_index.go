package section

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
)

// ElementIndex is the directory entry of a variable or attribute: its identity plus one
// characteristics set per block.
type ElementIndex struct {
	MemberID  uint32
	GroupName string
	Name      string
	Type      format.DataType
	Shape     format.ShapeID
	Sets      []Characteristics
}

// WriteTo encodes the entry, prefixed by its uint32 length.
func (e *ElementIndex) WriteTo(enc *encoding.Encoder) {
	lengthAt := enc.Reserve(4)
	enc.PutUint32(e.MemberID)
	enc.PutString(e.GroupName)
	enc.PutString(e.Name)
	enc.PutUint8(uint8(e.Type))
	enc.PutUint8(uint8(e.Shape))
	enc.PutUint64(uint64(len(e.Sets)))
	for i := range e.Sets {
		e.Sets[i].WriteTo(enc)
	}
	enc.PatchUint32(lengthAt, uint32(enc.Position()-lengthAt-4)) //nolint:gosec
}

// ParseElementIndex decodes one entry at the decoder cursor.
func ParseElementIndex(dec *encoding.Decoder) (ElementIndex, error) {
	length := int(dec.Uint32())
	start := dec.Position()

	e := ElementIndex{
		MemberID:  dec.Uint32(),
		GroupName: dec.ReadString(),
		Name:      dec.ReadString(),
		Type:      format.DataType(dec.Uint8()),
		Shape:     format.ShapeID(dec.Uint8()),
	}
	sets := dec.Uint64()
	if err := dec.Err(); err != nil {
		return ElementIndex{}, err
	}
	if sets > uint64(dec.Remaining()) {
		return ElementIndex{}, errors.Wrapf(errs.ErrFormat, "element %q declares %d sets", e.Name, sets)
	}

	e.Sets = make([]Characteristics, 0, sets)
	for range sets {
		c, err := ParseCharacteristics(dec)
		if err != nil {
			return ElementIndex{}, errors.Wrapf(err, "element %q", e.Name)
		}
		e.Sets = append(e.Sets, c)
	}

	if dec.Position()-start != length {
		return ElementIndex{}, errors.Wrapf(errs.ErrFormat, "element %q declares %d bytes, decoded %d", e.Name, length, dec.Position()-start)
	}

	return e, nil
}
