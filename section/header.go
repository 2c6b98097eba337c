package section

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/internal/pool"
)

// FileHeader is the decoded form of the 64-byte header shared by data, metadata and index files.
type FileHeader struct {
	// Tag is the printable version tag, e.g. "BP v1.0.0 Index Table".
	Tag string
	// Major, Minor and Patch are the writer's format version.
	Major, Minor, Patch uint8
	// LittleEndian reports the byte order every multi-byte field of the file uses.
	LittleEndian bool
	// BPVersion is the format generation, always BPVersion for files this package writes.
	BPVersion uint8
	// Active is the index file active flag.
	Active bool
}

// HeaderLayout records where a header was placed, so single bytes can be rewritten in place.
//
// Offsets are absolute positions in the file the header belongs to.
type HeaderLayout struct {
	Start            uint64
	EndiannessOffset uint64
	ActiveFlagOffset uint64
	Size             int
}

// VersionTag returns the tag written at the start of a header of the given kind.
func VersionTag(kind format.FileKind) string {
	return fmt.Sprintf("BP v%d.%d.%d %s", VersionMajor, VersionMinor, VersionPatch, kind)
}

// Engine returns the byte order engine of the file.
func (h FileHeader) Engine() endian.EndianEngine {
	return endian.EngineFor(h.LittleEndian)
}

// Bytes serializes the header in its fixed 64-byte layout.
func (h FileHeader) Bytes() []byte {
	b := make([]byte, HeaderSize)
	copy(b[:VersionTagSize], h.Tag)
	b[MajorOffset] = '0' + h.Major
	b[MinorOffset] = '0' + h.Minor
	b[PatchOffset] = '0' + h.Patch
	if !h.LittleEndian {
		b[EndiannessOffset] = 1
	}
	b[BPVersionOffset] = h.BPVersion
	if h.Active {
		b[ActiveFlagOffset] = 1
	}

	return b
}

// Parse decodes the header from data.
//
// Parameters:
//   - data: byte slice starting with a header (at least 64 bytes)
//
// Returns:
//   - error: ErrInvalidHeaderSize if data is too short, ErrFormat for an unknown generation or flag value
func (h *FileHeader) Parse(data []byte) error {
	if len(data) < HeaderSize {
		return errors.Wrapf(errs.ErrInvalidHeaderSize, "got %d bytes, need %d", len(data), HeaderSize)
	}

	if data[BPVersionOffset] != BPVersion {
		return errors.Wrapf(errs.ErrFormat, "unsupported BP version %d", data[BPVersionOffset])
	}

	switch data[EndiannessOffset] {
	case 0:
		h.LittleEndian = true
	case 1:
		h.LittleEndian = false
	default:
		return errors.Wrapf(errs.ErrFormat, "invalid endianness flag %d", data[EndiannessOffset])
	}

	h.Tag = string(bytes.TrimRight(data[:VersionTagSize], "\x00"))
	h.Major = data[MajorOffset] - '0'
	h.Minor = data[MinorOffset] - '0'
	h.Patch = data[PatchOffset] - '0'
	h.BPVersion = data[BPVersionOffset]
	h.Active = data[ActiveFlagOffset] != 0

	return nil
}

// ParseFileHeader parses a FileHeader from the start of data.
func ParseFileHeader(data []byte) (FileHeader, error) {
	h := FileHeader{}
	if err := h.Parse(data); err != nil {
		return FileHeader{}, err
	}

	return h, nil
}

// MakeHeader writes a fresh header of the given kind into buf.
//
// The header records engine's byte order; the active flag is only meaningful for index files.
// With rewrite false the header is appended at the cursor; with rewrite true it overwrites the
// first HeaderSize bytes of buf in place and leaves the cursor where it was.
//
// Parameters:
//   - buf: destination buffer
//   - kind: which dataset file the header belongs to
//   - engine: byte order of the file
//   - active: initial active flag
//   - rewrite: overwrite the start of buf instead of appending
//
// Returns:
//   - HeaderLayout: absolute positions of the header and its rewritable bytes
//   - error: buffer growth failure, or ErrInvalidArgument when rewriting a buffer holding no header
func MakeHeader(buf *pool.Buffer, kind format.FileKind, engine endian.EndianEngine, active, rewrite bool) (HeaderLayout, error) {
	header := FileHeader{
		Tag:          VersionTag(kind),
		Major:        VersionMajor,
		Minor:        VersionMinor,
		Patch:        VersionPatch,
		LittleEndian: endian.IsLittleEndian(engine),
		BPVersion:    BPVersion,
		Active:       active && kind == format.FileIndexTable,
	}

	var start uint64
	if rewrite {
		if buf.Position() < HeaderSize {
			return HeaderLayout{}, errors.Wrap(errs.ErrInvalidArgument, "no header to rewrite")
		}
		copy(buf.At(0, HeaderSize), header.Bytes())
		start = buf.AbsoluteBase()
	} else {
		start = buf.AbsolutePosition()
		if _, err := buf.Write(header.Bytes()); err != nil {
			return HeaderLayout{}, err
		}
	}

	return LayoutAt(start), nil
}

// LayoutAt returns the layout of a header already present at file position start.
func LayoutAt(start uint64) HeaderLayout {
	return HeaderLayout{
		Start:            start,
		EndiannessOffset: start + EndiannessOffset,
		ActiveFlagOffset: start + ActiveFlagOffset,
		Size:             HeaderSize,
	}
}

// IndexFileHeader is the header of a metadata index file together with its row section.
type IndexFileHeader struct {
	FileHeader
	// Rows is the number of complete index rows following the header.
	Rows int
}

// ParseIndexFileHeader validates an index file image and decodes its header.
//
// Parameters:
//   - data: complete index file contents
//
// Returns:
//   - IndexFileHeader: decoded header and row count
//   - error: header errors, or ErrFormat if the row section is not a whole number of rows
func ParseIndexFileHeader(data []byte) (IndexFileHeader, error) {
	h, err := ParseFileHeader(data)
	if err != nil {
		return IndexFileHeader{}, err
	}

	rowBytes := len(data) - HeaderSize
	if rowBytes%IndexRowSize != 0 {
		return IndexFileHeader{}, errors.Wrapf(errs.ErrFormat, "index rows span %d bytes, not a multiple of %d", rowBytes, IndexRowSize)
	}

	return IndexFileHeader{FileHeader: h, Rows: rowBytes / IndexRowSize}, nil
}

// CheckAppendable reports whether a writer may extend the file described by h.
//
// A file written in the other byte order can only be extended by a binary built for it.
func (h IndexFileHeader) CheckAppendable() error {
	writer := endian.WriterEngine()
	if h.LittleEndian != endian.IsLittleEndian(writer) {
		return errors.Wrapf(errs.ErrEndianMismatch,
			"file is %s, writer is %s", endianName(h.LittleEndian), endianName(endian.IsLittleEndian(writer)))
	}

	return nil
}

// LastRow returns the final index row of an index file image.
func (h IndexFileHeader) LastRow(data []byte) (IndexRow, bool, error) {
	if h.Rows == 0 {
		return IndexRow{}, false, nil
	}

	row, err := ParseIndexRow(data[len(data)-IndexRowSize:], h.Engine())
	if err != nil {
		return IndexRow{}, false, err
	}

	return row, true, nil
}

func endianName(little bool) string {
	if little {
		return "little-endian"
	}

	return "big-endian"
}
