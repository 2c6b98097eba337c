package section

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/encoding"
	"github.com/arloliu/bp4/errs"
)

// PGIndexEntry describes the process group one rank wrote for one step.
//
// Offset and Length give the byte range of the group inside data file FileIndex.
type PGIndexEntry struct {
	IOName      string
	ColumnMajor bool
	Rank        uint32
	TimeStep    uint32
	Offset      uint64
	Length      uint64
	FileIndex   uint32
	Transports  []string
}

// WriteTo encodes the entry, prefixed by its uint16 length.
func (e *PGIndexEntry) WriteTo(enc *encoding.Encoder) {
	lengthAt := enc.Reserve(2)
	enc.PutString(e.IOName)
	if e.ColumnMajor {
		enc.PutUint8('y')
	} else {
		enc.PutUint8(HostLanguageRowMajor)
	}
	enc.PutUint32(e.Rank)
	enc.PutUint32(e.TimeStep)
	enc.PutUint64(e.Offset)
	enc.PutUint64(e.Length)
	enc.PutUint32(e.FileIndex)
	enc.PutUint8(uint8(len(e.Transports))) //nolint:gosec
	for _, tr := range e.Transports {
		enc.PutString(tr)
	}

	length := enc.Position() - lengthAt - 2
	if length > 1<<16-1 {
		enc.Fail(errors.Wrapf(errs.ErrInvalidArgument, "pg index entry of %d bytes too large", length))
		return
	}
	enc.PatchUint16(lengthAt, uint16(length)) //nolint:gosec
}

// ParsePGIndexEntry decodes one entry at the decoder cursor.
func ParsePGIndexEntry(dec *encoding.Decoder) (PGIndexEntry, error) {
	length := int(dec.Uint16())
	start := dec.Position()

	e := PGIndexEntry{}
	e.IOName = dec.ReadString()
	e.ColumnMajor = dec.Uint8() == 'y'
	e.Rank = dec.Uint32()
	e.TimeStep = dec.Uint32()
	e.Offset = dec.Uint64()
	e.Length = dec.Uint64()
	e.FileIndex = dec.Uint32()
	n := int(dec.Uint8())
	for range n {
		e.Transports = append(e.Transports, dec.ReadString())
	}

	if err := dec.Err(); err != nil {
		return PGIndexEntry{}, err
	}
	if dec.Position()-start != length {
		return PGIndexEntry{}, errors.Wrapf(errs.ErrFormat, "pg index entry declares %d bytes, decoded %d", length, dec.Position()-start)
	}

	return e, nil
}
