package section

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
)

// IndexRow is one 64-byte metadata index row: the metadata file positions of one step.
//
// Layout (all uint64 in the file's byte order):
//
//	Bytes  | Field
//	-------|------------------
//	0-7    | Step
//	8-15   | Rank
//	16-23  | PGIndexStart
//	24-31  | VarIndexStart
//	32-39  | AttrIndexStart
//	40-47  | StepEndPos
//	48-55  | Timestamp (unix seconds)
//	56-63  | padding
type IndexRow struct {
	Step           uint64
	Rank           uint64
	PGIndexStart   uint64
	VarIndexStart  uint64
	AttrIndexStart uint64
	StepEndPos     uint64
	Timestamp      uint64
}

// WriteToSlice serializes the row into dst, which must hold IndexRowSize bytes.
func (r IndexRow) WriteToSlice(dst []byte, engine endian.EndianEngine) {
	engine.PutUint64(dst[0:8], r.Step)
	engine.PutUint64(dst[8:16], r.Rank)
	engine.PutUint64(dst[16:24], r.PGIndexStart)
	engine.PutUint64(dst[24:32], r.VarIndexStart)
	engine.PutUint64(dst[32:40], r.AttrIndexStart)
	engine.PutUint64(dst[40:48], r.StepEndPos)
	engine.PutUint64(dst[48:56], r.Timestamp)
	clear(dst[56:IndexRowSize])
}

// Bytes serializes the row.
func (r IndexRow) Bytes(engine endian.EndianEngine) []byte {
	b := make([]byte, IndexRowSize)
	r.WriteToSlice(b, engine)

	return b
}

// MetadataLength returns the number of metadata bytes the row's step occupies.
func (r IndexRow) MetadataLength() uint64 {
	return r.StepEndPos - r.PGIndexStart
}

// ParseIndexRow decodes a row from the start of data.
func ParseIndexRow(data []byte, engine endian.EndianEngine) (IndexRow, error) {
	if len(data) < IndexRowSize {
		return IndexRow{}, errors.Wrapf(errs.ErrFormat, "index row needs %d bytes, got %d", IndexRowSize, len(data))
	}

	row := IndexRow{
		Step:           engine.Uint64(data[0:8]),
		Rank:           engine.Uint64(data[8:16]),
		PGIndexStart:   engine.Uint64(data[16:24]),
		VarIndexStart:  engine.Uint64(data[24:32]),
		AttrIndexStart: engine.Uint64(data[32:40]),
		StepEndPos:     engine.Uint64(data[40:48]),
		Timestamp:      engine.Uint64(data[48:56]),
	}

	if row.VarIndexStart < row.PGIndexStart || row.AttrIndexStart < row.VarIndexStart || row.StepEndPos < row.AttrIndexStart {
		return IndexRow{}, errors.Wrapf(errs.ErrFormat, "index row for step %d has decreasing offsets", row.Step)
	}

	return row, nil
}

// ParseIndexRows decodes every row of an index file image, header included.
func ParseIndexRows(data []byte) (IndexFileHeader, []IndexRow, error) {
	h, err := ParseIndexFileHeader(data)
	if err != nil {
		return IndexFileHeader{}, nil, err
	}

	engine := h.Engine()
	rows := make([]IndexRow, 0, h.Rows)
	for off := HeaderSize; off < len(data); off += IndexRowSize {
		row, err := ParseIndexRow(data[off:], engine)
		if err != nil {
			return IndexFileHeader{}, nil, err
		}
		rows = append(rows, row)
	}

	return h, rows, nil
}
