package encoding

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/endian"
	"github.com/arloliu/bp4/errs"
)

// Decoder reads fixed-width values from a byte slice.
//
// Reading past the end sets a sticky errs.ErrFormat error and every later read returns zero.
type Decoder struct {
	b      []byte
	pos    int
	engine endian.EndianEngine
	err    error
}

// NewDecoder creates a decoder over b in engine byte order.
func NewDecoder(b []byte, engine endian.EndianEngine) *Decoder {
	return &Decoder{b: b, engine: engine}
}

// Engine returns the byte order used by the decoder.
func (d *Decoder) Engine() endian.EndianEngine {
	return d.engine
}

// Err returns the first error met by the decoder.
func (d *Decoder) Err() error {
	return d.err
}

// Position returns the read cursor.
func (d *Decoder) Position() int {
	return d.pos
}

// SetPosition moves the read cursor.
func (d *Decoder) SetPosition(pos int) {
	if d.err != nil {
		return
	}
	if pos < 0 || pos > len(d.b) {
		d.err = errors.Wrapf(errs.ErrFormat, "seek to %d outside %d bytes", pos, len(d.b))
		return
	}
	d.pos = pos
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.b) - d.pos
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.b) {
		d.err = errors.Wrapf(errs.ErrFormat, "truncated: need %d bytes at %d, have %d", n, d.pos, len(d.b)-d.pos)
		return nil
	}

	p := d.b[d.pos : d.pos+n]
	d.pos += n

	return p
}

func (d *Decoder) Uint8() uint8 {
	if p := d.take(1); p != nil {
		return p[0]
	}

	return 0
}

func (d *Decoder) Uint16() uint16 {
	if p := d.take(2); p != nil {
		return d.engine.Uint16(p)
	}

	return 0
}

func (d *Decoder) Uint32() uint32 {
	if p := d.take(4); p != nil {
		return d.engine.Uint32(p)
	}

	return 0
}

func (d *Decoder) Uint64() uint64 {
	if p := d.take(8); p != nil {
		return d.engine.Uint64(p)
	}

	return 0
}

// Bytes returns the next n bytes without copying.
func (d *Decoder) Bytes(n int) []byte {
	return d.take(n)
}

// ReadString reads a uint16 length-prefixed string.
func (d *Decoder) ReadString() string {
	n := int(d.Uint16())
	if p := d.take(n); p != nil {
		return string(p)
	}

	return ""
}

// Skip advances the cursor by n bytes.
func (d *Decoder) Skip(n int) {
	d.take(n)
}

// Expect consumes len(marker) bytes and fails unless they equal marker.
func (d *Decoder) Expect(marker string) {
	p := d.take(len(marker))
	if p != nil && string(p) != marker {
		d.err = errors.Wrapf(errs.ErrFormat, "expected marker %q at %d, found %q", marker, d.pos-len(marker), p)
	}
}
