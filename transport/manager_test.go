package transport

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
)

func newTestManager(t *testing.T) (*Manager, vfs.FS) {
	t.Helper()

	fs := vfs.NewMem()
	m, err := NewManager(fs)
	require.NoError(t, err)

	return m, fs
}

func readAll(t *testing.T, fs vfs.FS, name string) []byte {
	t.Helper()

	m, err := NewManager(fs)
	require.NoError(t, err)
	require.NoError(t, m.OpenFiles([]string{name}, format.ModeReadRandomAccess, false))
	size, err := m.GetFileSize(0)
	require.NoError(t, err)
	data, err := m.ReadFile(0, 0, int(size))
	require.NoError(t, err)
	require.NoError(t, m.CloseFiles(All))

	return data
}

func TestManager_WriteSequentialAndAt(t *testing.T) {
	m, fs := newTestManager(t)

	require.NoError(t, m.OpenFiles([]string{"a", "b"}, format.ModeWrite, true))
	require.NoError(t, m.WriteFiles([]byte("hello"), All))
	require.NoError(t, m.WriteFiles([]byte(" world"), 1))
	require.NoError(t, m.WriteFileAt([]byte("J"), 0, 0))
	require.NoError(t, m.WriteFiles([]byte("!"), 0))
	require.NoError(t, m.FlushFiles(All))

	size, err := m.GetFileSize(1)
	require.NoError(t, err)
	assert.EqualValues(t, 11, size)
	assert.Equal(t, []string{"a", "b"}, m.Names())
	assert.Equal(t, []string{TypeFile, TypeFile}, m.TransportTypes())
	assert.EqualValues(t, 7, m.Profilers()[0].Bytes("wbytes"))

	require.NoError(t, m.CloseFiles(All))
	assert.Equal(t, "Jello!", string(readAll(t, fs, "a")))
	assert.Equal(t, "hello world", string(readAll(t, fs, "b")))
}

func TestManager_AppendKeepsContents(t *testing.T) {
	m, fs := newTestManager(t)
	require.NoError(t, m.OpenFiles([]string{"data.0"}, format.ModeWrite, false))
	require.NoError(t, m.WriteFiles([]byte("abc"), All))
	require.NoError(t, m.CloseFiles(All))

	m2, err := NewManager(fs)
	require.NoError(t, err)
	require.NoError(t, m2.OpenFiles([]string{"data.0"}, format.ModeAppend, false))
	require.NoError(t, m2.WriteFiles([]byte("def"), 0))
	require.NoError(t, m2.CloseFiles(0))

	assert.Equal(t, "abcdef", string(readAll(t, fs, "data.0")))
}

func TestManager_AppendCreatesMissing(t *testing.T) {
	m, fs := newTestManager(t)
	require.NoError(t, m.OpenFiles([]string{"new"}, format.ModeAppend, false))
	require.NoError(t, m.WriteFiles([]byte("x"), 0))
	require.NoError(t, m.CloseFiles(All))

	assert.Equal(t, "x", string(readAll(t, fs, "new")))
}

func TestManager_OpenFilesAsync(t *testing.T) {
	m, fs := newTestManager(t)

	f := m.OpenFilesAsync([]string{"async"}, format.ModeWrite, false)
	require.NoError(t, m.WriteFiles([]byte("later"), 0))
	require.NoError(t, f.Get())
	require.NoError(t, m.CloseFiles(All))

	assert.Equal(t, "later", string(readAll(t, fs, "async")))
}

func TestManager_OpenFilesAsyncError(t *testing.T) {
	m, _ := newTestManager(t)

	f := m.OpenFilesAsync([]string{"missing"}, format.ModeReadRandomAccess, false)
	err := m.WriteFiles([]byte("x"), All)
	require.True(t, errors.Is(err, errs.ErrIO))
	require.True(t, errors.Is(f.Get(), errs.ErrIO))
}

func TestManager_IndexErrors(t *testing.T) {
	m, _ := newTestManager(t)
	assert.True(t, m.AllClosed(), "nothing opened yet")
	require.NoError(t, m.OpenFiles([]string{"a"}, format.ModeWrite, false))
	assert.False(t, m.AllClosed())

	require.True(t, errors.Is(m.WriteFiles(nil, 3), errs.ErrInvalidArgument))
	_, err := m.ReadFile(All, 0, 1)
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))

	require.NoError(t, m.CloseFiles(0))
	assert.True(t, m.AllClosed())
	require.True(t, errors.Is(m.WriteFiles([]byte("x"), 0), errs.ErrClosed))
	require.NoError(t, m.CloseFiles(All), "closing nothing is fine")
}

func TestManager_WriteToReadOnly(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.OpenFiles([]string{"a"}, format.ModeWrite, false))
	require.NoError(t, m.CloseFiles(All))

	r, err := NewManager(m.FS())
	require.NoError(t, err)
	require.NoError(t, r.OpenFiles([]string{"a"}, format.ModeReadRandomAccess, false))
	require.True(t, errors.Is(r.WriteFiles([]byte("x"), 0), errs.ErrInvalidState))
}

func TestManager_SeekToFileEnd(t *testing.T) {
	m, fs := newTestManager(t)
	require.NoError(t, m.OpenFiles([]string{"a"}, format.ModeWrite, false))
	require.NoError(t, m.WriteFileAt([]byte("0123"), 0, 0))
	require.NoError(t, m.SeekToFileEnd(0))
	require.NoError(t, m.WriteFiles([]byte("45"), 0))
	require.NoError(t, m.SeekToFileBegin(0))
	require.NoError(t, m.WriteFiles([]byte("x"), 0))
	require.NoError(t, m.CloseFiles(All))

	assert.Equal(t, "x12345", string(readAll(t, fs, "a")))
}

func TestManager_RewritePrefix(t *testing.T) {
	m, fs := newTestManager(t)
	require.NoError(t, m.OpenFiles([]string{"data.0"}, format.ModeWrite, false))
	require.NoError(t, m.WriteFiles([]byte("keep-drop"), 0))
	require.NoError(t, m.CloseFiles(All))

	require.NoError(t, m.RewritePrefix("data.0", 4))
	assert.Equal(t, "keep", string(readAll(t, fs, "data.0")))

	require.True(t, errors.Is(m.RewritePrefix("data.0", 10), errs.ErrInvalidArgument))
	require.True(t, errors.Is(m.RewritePrefix("nope", 0), errs.ErrIO))
}

func TestMkDirsBarrier(t *testing.T) {
	fs := vfs.NewMem()
	err := comm.Run(3, func(c comm.Comm) error {
		return MkDirsBarrier(fs, []string{"out.bp/sub"}, c, false)
	})
	require.NoError(t, err)

	_, err = fs.Stat("out.bp/sub")
	require.NoError(t, err)
}
