package section

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
)

// StepMetadata is the metadata of one step: its process groups, variables and attributes.
//
// Layout:
//
//	PG block        | count u64 | length u64 | PGIndexEntry...
//	variable block  | count u32 | length u64 | ElementIndex...
//	attribute block | count u32 | length u64 | ElementIndex...
type StepMetadata struct {
	TimeStep   uint32
	PGs        []PGIndexEntry
	Variables  []ElementIndex
	Attributes []ElementIndex
}

// StepOffsets are buffer positions of the blocks written by StepMetadata.WriteTo.
type StepOffsets struct {
	PGIndexStart   int
	VarIndexStart  int
	AttrIndexStart int
	End            int
}

// WriteTo encodes the three blocks and returns where each started.
func (m *StepMetadata) WriteTo(enc *encoding.Encoder) StepOffsets {
	off := StepOffsets{PGIndexStart: enc.Position()}

	countAt := enc.Reserve(8)
	lengthAt := enc.Reserve(8)
	for i := range m.PGs {
		m.PGs[i].WriteTo(enc)
	}
	enc.PatchUint64(countAt, uint64(len(m.PGs)))
	enc.PatchUint64(lengthAt, uint64(enc.Position()-lengthAt-8)) //nolint:gosec

	off.VarIndexStart = enc.Position()
	writeElements(enc, m.Variables)

	off.AttrIndexStart = enc.Position()
	writeElements(enc, m.Attributes)

	off.End = enc.Position()

	return off
}

func writeElements(enc *encoding.Encoder, elements []ElementIndex) {
	countAt := enc.Reserve(4)
	lengthAt := enc.Reserve(8)
	for i := range elements {
		elements[i].WriteTo(enc)
	}
	enc.PatchUint32(countAt, uint32(len(elements)))               //nolint:gosec
	enc.PatchUint64(lengthAt, uint64(enc.Position()-lengthAt-8)) //nolint:gosec
}

// ParseStepMetadata decodes the blocks of one step at the decoder cursor.
func ParseStepMetadata(dec *encoding.Decoder) (StepMetadata, error) {
	m := StepMetadata{}

	pgCount := dec.Uint64()
	pgLength := dec.Uint64()
	pgStart := dec.Position()
	if err := dec.Err(); err != nil {
		return m, err
	}
	if pgLength > uint64(dec.Remaining()) {
		return m, errors.Wrapf(errs.ErrFormat, "pg block of %d bytes exceeds metadata", pgLength)
	}
	for range pgCount {
		pg, err := ParsePGIndexEntry(dec)
		if err != nil {
			return m, err
		}
		m.PGs = append(m.PGs, pg)
	}
	if uint64(dec.Position()-pgStart) != pgLength {
		return m, errors.Wrapf(errs.ErrFormat, "pg block declares %d bytes, decoded %d", pgLength, dec.Position()-pgStart)
	}
	if len(m.PGs) > 0 {
		m.TimeStep = m.PGs[0].TimeStep
	}

	var err error
	if m.Variables, err = parseElements(dec, "variable"); err != nil {
		return m, err
	}
	if m.Attributes, err = parseElements(dec, "attribute"); err != nil {
		return m, err
	}

	return m, nil
}

func parseElements(dec *encoding.Decoder, what string) ([]ElementIndex, error) {
	count := dec.Uint32()
	length := dec.Uint64()
	start := dec.Position()
	if err := dec.Err(); err != nil {
		return nil, err
	}
	if length > uint64(dec.Remaining()) {
		return nil, errors.Wrapf(errs.ErrFormat, "%s block of %d bytes exceeds metadata", what, length)
	}

	elements := make([]ElementIndex, 0, count)
	for range count {
		e, err := ParseElementIndex(dec)
		if err != nil {
			return nil, err
		}
		elements = append(elements, e)
	}
	if uint64(dec.Position()-start) != length {
		return nil, errors.Wrapf(errs.ErrFormat, "%s block declares %d bytes, decoded %d", what, length, dec.Position()-start)
	}

	return elements, nil
}

// ParseStepMetadataAt decodes the step a row points to within a metadata file image.
//
// Row offsets are absolute file positions; base is the file position of data[0].
func ParseStepMetadataAt(data []byte, base uint64, row IndexRow, engine endian.EndianEngine) (StepMetadata, error) {
	if row.PGIndexStart < base || row.StepEndPos-base > uint64(len(data)) {
		return StepMetadata{}, errors.Wrapf(errs.ErrFormat,
			"step %d metadata [%d, %d) outside metadata file", row.Step, row.PGIndexStart, row.StepEndPos)
	}

	dec := encoding.NewDecoder(data[row.PGIndexStart-base:row.StepEndPos-base], engine)
	m, err := ParseStepMetadata(dec)
	if err != nil {
		return StepMetadata{}, errors.Wrapf(err, "step %d", row.Step)
	}
	if dec.Remaining() != 0 {
		return StepMetadata{}, errors.Wrapf(errs.ErrFormat, "step %d has %d trailing metadata bytes", row.Step, dec.Remaining())
	}
	m.TimeStep = uint32(row.Step) //nolint:gosec

	return m, nil
}
