package pool

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/errs"
)

const (
	// DefaultInitialBufferSize is the smallest size a serialization buffer starts with.
	DefaultInitialBufferSize = 1024 * 16 // 16KiB
	// DefaultGrowthFactor is the geometric growth applied when a buffer has to be enlarged.
	DefaultGrowthFactor = 1.05
)

// Buffer is a growable byte arena with a write cursor.
//
// The arena length is its capacity in use; Position marks how many bytes hold serialized
// content. AbsolutePosition adds the number of bytes already flushed from earlier generations
// of the buffer so offsets stay valid across Reset calls.
//
// Invariant: 0 <= Position() <= Capacity().
type Buffer struct {
	b            []byte
	pos          int
	absBase      uint64
	growthFactor float64
	maxSize      int
}

// NewBuffer creates an empty buffer.
//
// Parameters:
//   - growthFactor: geometric growth factor applied on Resize, values <= 1 use DefaultGrowthFactor
//   - maxSize: maximum capacity in bytes, 0 means unbounded
//
// Returns:
//   - *Buffer: buffer with zero capacity, grown on demand
func NewBuffer(growthFactor float64, maxSize int) *Buffer {
	if growthFactor <= 1 {
		growthFactor = DefaultGrowthFactor
	}

	return &Buffer{growthFactor: growthFactor, maxSize: maxSize}
}

// Resize grows the arena so it can hold at least newSize bytes.
//
// It never shrinks the arena. Growth is geometric: the new capacity is the larger of
// newSize and the current capacity times the growth factor, capped by the maximum size.
//
// Parameters:
//   - newSize: required capacity in bytes
//   - hint: context added to the error message
//
// Returns:
//   - error: errs.ErrBufferOverflow if newSize exceeds the configured maximum
func (b *Buffer) Resize(newSize int, hint string) error {
	if newSize < 0 {
		return errors.Wrapf(errs.ErrInvalidArgument, "negative buffer size %d, %s", newSize, hint)
	}
	if newSize <= len(b.b) {
		return nil
	}
	if b.maxSize > 0 && newSize > b.maxSize {
		return errors.Wrapf(errs.ErrBufferOverflow, "requested %d bytes, maximum %d, %s", newSize, b.maxSize, hint)
	}

	target := int(float64(len(b.b)) * b.growthFactor)
	if target < newSize {
		target = newSize
	}
	if b.maxSize > 0 && target > b.maxSize {
		target = b.maxSize
	}

	grown := make([]byte, target)
	copy(grown, b.b[:b.pos])
	b.b = grown

	return nil
}

// Reserve makes room for n more bytes after the cursor.
func (b *Buffer) Reserve(n int, hint string) error {
	return b.Resize(b.pos+n, hint)
}

// Next reserves n bytes after the cursor, advances the cursor past them and returns them for filling.
//
// The returned slice aliases the arena only until the next call that grows it (Next, Write,
// WriteByte, Reserve or Resize). Fill it before writing again; to patch bytes later, keep the
// offset and use At.
func (b *Buffer) Next(n int) ([]byte, error) {
	if err := b.Reserve(n, "advancing buffer cursor"); err != nil {
		return nil, err
	}

	start := b.pos
	b.pos += n

	return b.b[start:b.pos:b.pos], nil
}

// Write appends p at the cursor. It implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	dst, err := b.Next(len(p))
	if err != nil {
		return 0, err
	}

	return copy(dst, p), nil
}

// WriteByte appends a single byte at the cursor. It implements io.ByteWriter.
func (b *Buffer) WriteByte(c byte) error {
	dst, err := b.Next(1)
	if err != nil {
		return err
	}
	dst[0] = c

	return nil
}

// At returns the n serialized bytes starting at offset, for in-place rewrites of placeholders.
// Like Next, the slice is valid until the arena next grows.
// Panics if the range lies beyond the cursor.
func (b *Buffer) At(offset, n int) []byte {
	if offset < 0 || n < 0 || offset+n > b.pos {
		panic("At: range beyond buffer position")
	}

	return b.b[offset : offset+n]
}

// Bytes returns the serialized content, from the start of the arena up to the cursor.
func (b *Buffer) Bytes() []byte {
	return b.b[:b.pos]
}

// Position returns the cursor.
func (b *Buffer) Position() int {
	return b.pos
}

// SetPosition moves the cursor. Panics if pos is outside the arena.
func (b *Buffer) SetPosition(pos int) {
	if pos < 0 || pos > len(b.b) {
		panic("SetPosition: position outside buffer")
	}
	b.pos = pos
}

// Capacity returns the arena size.
func (b *Buffer) Capacity() int {
	return len(b.b)
}

// AbsolutePosition returns the cursor measured from the first byte ever written to this buffer,
// including generations already discarded by Reset.
func (b *Buffer) AbsolutePosition() uint64 {
	return b.absBase + uint64(b.pos)
}

// AbsoluteBase returns the absolute offset of the first byte of the arena.
func (b *Buffer) AbsoluteBase() uint64 {
	return b.absBase
}

// SetAbsoluteBase sets the absolute offset of the first byte of the arena.
func (b *Buffer) SetAbsoluteBase(base uint64) {
	b.absBase = base
}

// Reset logically truncates the buffer, keeping its memory.
//
// When resetAbsolute is false the discarded bytes are added to the absolute base so
// AbsolutePosition keeps counting; when true absolute accounting restarts at zero.
func (b *Buffer) Reset(resetAbsolute bool) {
	if resetAbsolute {
		b.absBase = 0
	} else {
		b.absBase += uint64(b.pos)
	}
	b.pos = 0
}
