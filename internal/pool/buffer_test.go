package pool

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/bp4/errs"
)

func TestBuffer_ResizeNeverShrinks(t *testing.T) {
	b := NewBuffer(2, 0)

	require.NoError(t, b.Resize(100, "test"))
	assert.Equal(t, 100, b.Capacity())

	require.NoError(t, b.Resize(10, "test"))
	assert.Equal(t, 100, b.Capacity())
}

func TestBuffer_ResizeGeometric(t *testing.T) {
	b := NewBuffer(2, 0)

	require.NoError(t, b.Resize(100, "test"))
	require.NoError(t, b.Resize(101, "test"))
	assert.Equal(t, 200, b.Capacity(), "growth should double the arena")

	require.NoError(t, b.Resize(1000, "test"))
	assert.Equal(t, 1000, b.Capacity(), "large requests win over the factor")
}

func TestBuffer_ResizeBeyondMax(t *testing.T) {
	b := NewBuffer(2, 128)

	require.NoError(t, b.Resize(100, "test"))
	require.NoError(t, b.Resize(101, "test"))
	assert.Equal(t, 128, b.Capacity(), "growth is capped by the maximum")

	err := b.Resize(129, "data buffer")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrBufferOverflow))
	assert.Contains(t, err.Error(), "data buffer")
}

func TestBuffer_ResizeNegative(t *testing.T) {
	b := NewBuffer(0, 0)
	err := b.Resize(-1, "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestBuffer_WriteAdvancesCursor(t *testing.T) {
	b := NewBuffer(0, 0)

	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, b.WriteByte('d'))

	assert.Equal(t, 4, b.Position())
	assert.Equal(t, []byte("abcd"), b.Bytes())
	assert.LessOrEqual(t, b.Position(), b.Capacity())
}

func TestBuffer_ResizeKeepsContent(t *testing.T) {
	b := NewBuffer(0, 0)
	_, err := b.Write([]byte("hello"))
	require.NoError(t, err)

	require.NoError(t, b.Resize(1<<16, "test"))
	assert.Equal(t, []byte("hello"), b.Bytes())
}

func TestBuffer_NextAndAt(t *testing.T) {
	b := NewBuffer(0, 0)

	slot, err := b.Next(4)
	require.NoError(t, err)
	copy(slot, "head")
	_, err = b.Write([]byte("tail"))
	require.NoError(t, err)
	assert.Equal(t, []byte("headtail"), b.Bytes())

	copy(b.At(0, 2), "HE")
	assert.Equal(t, []byte("HEadtail"), b.Bytes())

	// a placeholder reserved early is patched by offset after later writes grow the arena
	at := b.Position()
	_, err = b.Next(4)
	require.NoError(t, err)
	_, err = b.Write(make([]byte, 1<<12))
	require.NoError(t, err)
	copy(b.At(at, 4), "patch")
	assert.Equal(t, []byte("patc"), b.Bytes()[at:at+4])
	assert.Panics(t, func() { b.At(b.Position()-2, 4) })
}

func TestBuffer_ResetAbsolute(t *testing.T) {
	b := NewBuffer(0, 0)
	_, _ = b.Write(make([]byte, 10))
	assert.Equal(t, uint64(10), b.AbsolutePosition())

	b.Reset(false)
	assert.Equal(t, 0, b.Position())
	assert.Equal(t, uint64(10), b.AbsoluteBase())

	_, _ = b.Write(make([]byte, 5))
	assert.Equal(t, uint64(15), b.AbsolutePosition())

	b.Reset(true)
	assert.Equal(t, uint64(0), b.AbsolutePosition())

	b.SetAbsoluteBase(64)
	assert.Equal(t, uint64(64), b.AbsolutePosition())
}

func TestBuffer_SetPosition(t *testing.T) {
	b := NewBuffer(0, 0)
	require.NoError(t, b.Resize(8, "test"))

	b.SetPosition(8)
	assert.Equal(t, 8, b.Position())
	assert.Panics(t, func() { b.SetPosition(9) })
}
