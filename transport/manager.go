// Package transport manages the files a BP4 engine writes and reads.
//
// A Manager owns an ordered set of file transports opened on a pebble vfs.FS. Index -1
// addresses every open transport; any other index addresses one transport in open order.
// Writes always go through WriteAt at a tracked position, so files opened for append keep
// their existing contents.
package transport

import (
	"io"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/v2/vfs"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/internal/options"
	"github.com/arloliu/bp4/internal/profile"
)

// TypeFile is the transport type recorded in process group entries.
const TypeFile = "File_POSIX"

// All addresses every open transport.
const All = -1

// Transport is one open file.
type Transport struct {
	name     string
	file     vfs.File
	mode     format.OpenMode
	pos      int64
	closed   bool
	profiler *profile.Profiler
}

// Name returns the file path.
func (t *Transport) Name() string { return t.name }

// Position returns the offset of the next sequential write.
func (t *Transport) Position() int64 { return t.pos }

// Profiler returns the transport's profiler; nil when profiling is off.
func (t *Transport) Profiler() *profile.Profiler { return t.profiler }

// Manager owns the transports of one engine.
type Manager struct {
	fs     vfs.FS
	logger *zap.Logger
	units  profile.Units

	mu         sync.Mutex
	transports []*Transport
	pending    *Future
}

// Option configures a Manager.
type Option = options.Option[*Manager]

// WithLogger sets the logger used for open and close events.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	})
}

// WithProfileUnits sets the units of per-transport profilers.
func WithProfileUnits(units profile.Units) Option {
	return options.NoError(func(m *Manager) {
		m.units = units
	})
}

// NewManager creates a manager on fs.
func NewManager(fs vfs.FS, opts ...Option) (*Manager, error) {
	if fs == nil {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "nil file system")
	}

	m := &Manager{fs: fs, logger: zap.NewNop()}
	if err := options.Apply(m, opts...); err != nil {
		return nil, err
	}

	return m, nil
}

// FS returns the file system the manager opens files on.
func (m *Manager) FS() vfs.FS {
	return m.fs
}

func (m *Manager) openOne(name string, mode format.OpenMode, prof bool) (*Transport, error) {
	p := profile.New(m.units, prof)
	p.Start("open")
	defer p.Stop("open")

	var (
		f   vfs.File
		err error
	)
	switch mode {
	case format.ModeWrite:
		f, err = m.fs.Create(name, vfs.WriteCategoryUnspecified)
	case format.ModeAppend:
		f, err = m.fs.OpenReadWrite(name, vfs.WriteCategoryUnspecified)
	case format.ModeReadRandomAccess:
		f, err = m.fs.Open(name)
	default:
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "unknown open mode %v for %s", mode, name)
	}
	if err != nil {
		return nil, errs.IO(err, "open %s", name)
	}

	t := &Transport{name: name, file: f, mode: mode, profiler: p}
	if mode == format.ModeAppend {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, errs.IO(err, "stat %s", name)
		}
		t.pos = info.Size()
	}

	return t, nil
}

// OpenFiles opens names in mode and appends them to the manager's transports.
func (m *Manager) OpenFiles(names []string, mode format.OpenMode, prof bool) error {
	if err := m.await(); err != nil {
		return err
	}

	return m.openFiles(names, mode, prof)
}

func (m *Manager) openFiles(names []string, mode format.OpenMode, prof bool) error {
	opened := make([]*Transport, 0, len(names))
	for _, name := range names {
		t, err := m.openOne(name, mode, prof)
		if err != nil {
			for _, o := range opened {
				_ = o.file.Close()
			}

			return err
		}
		opened = append(opened, t)
	}

	m.mu.Lock()
	m.transports = append(m.transports, opened...)
	m.mu.Unlock()

	m.logger.Debug("opened transports", zap.Strings("files", names), zap.Stringer("mode", mode))

	return nil
}

// OpenFilesAsync starts opening names in the background. Every other manager operation
// waits for the open to finish first; callers may also wait with Future.Get.
func (m *Manager) OpenFilesAsync(names []string, mode format.OpenMode, prof bool) *Future {
	if err := m.await(); err != nil {
		return newFuture(func() error { return err })
	}

	f := newFuture(func() error {
		return m.openFiles(names, mode, prof)
	})

	m.mu.Lock()
	m.pending = f
	m.mu.Unlock()

	return f
}

func (m *Manager) await() error {
	m.mu.Lock()
	f := m.pending
	m.pending = nil
	m.mu.Unlock()

	if f == nil {
		return nil
	}

	return f.Get()
}

func (m *Manager) selectTransports(idx int) ([]*Transport, error) {
	if err := m.await(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx == All {
		open := make([]*Transport, 0, len(m.transports))
		for _, t := range m.transports {
			if !t.closed {
				open = append(open, t)
			}
		}

		return open, nil
	}
	if idx < 0 || idx >= len(m.transports) {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "transport index %d out of range [0,%d)", idx, len(m.transports))
	}
	t := m.transports[idx]
	if t.closed {
		return nil, errors.Wrapf(errs.ErrClosed, "transport %d (%s)", idx, t.name)
	}

	return []*Transport{t}, nil
}

// WriteFiles writes data at the current position of the selected transports.
func (m *Manager) WriteFiles(data []byte, idx int) error {
	ts, err := m.selectTransports(idx)
	if err != nil {
		return err
	}

	for _, t := range ts {
		if err := t.writeAt(data, t.pos); err != nil {
			return err
		}
		t.pos += int64(len(data))
	}

	return nil
}

// WriteFileAt writes data at offset without moving the sequential position.
func (m *Manager) WriteFileAt(data []byte, offset int64, idx int) error {
	ts, err := m.selectTransports(idx)
	if err != nil {
		return err
	}

	for _, t := range ts {
		if err := t.writeAt(data, offset); err != nil {
			return err
		}
	}

	return nil
}

func (t *Transport) writeAt(data []byte, offset int64) error {
	if len(data) == 0 {
		return nil
	}
	if t.mode == format.ModeReadRandomAccess {
		return errors.Wrapf(errs.ErrInvalidState, "write to %s opened for reading", t.name)
	}

	t.profiler.Start("write")
	n, err := t.file.WriteAt(data, offset)
	t.profiler.Stop("write")
	t.profiler.AddBytes("wbytes", n)
	if err != nil {
		return errs.IO(err, "write %d bytes at %d to %s", len(data), offset, t.name)
	}

	return nil
}

// ReadFile reads size bytes at offset from transport idx.
func (m *Manager) ReadFile(idx int, offset int64, size int) ([]byte, error) {
	if idx == All {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "read needs a single transport")
	}
	ts, err := m.selectTransports(idx)
	if err != nil {
		return nil, err
	}
	t := ts[0]

	buf := make([]byte, size)
	t.profiler.Start("read")
	n, err := t.file.ReadAt(buf, offset)
	t.profiler.Stop("read")
	if err != nil && !(errors.Is(err, io.EOF) && n == size) {
		return nil, errs.IO(err, "read %d bytes at %d from %s", size, offset, t.name)
	}

	return buf, nil
}

// GetFileSize returns the size of transport idx.
func (m *Manager) GetFileSize(idx int) (int64, error) {
	if idx == All {
		return 0, errors.Wrap(errs.ErrInvalidArgument, "file size needs a single transport")
	}
	ts, err := m.selectTransports(idx)
	if err != nil {
		return 0, err
	}

	info, err := ts[0].file.Stat()
	if err != nil {
		return 0, errs.IO(err, "stat %s", ts[0].name)
	}

	return info.Size(), nil
}

// SeekToFileEnd moves the sequential position of the selected transports to their size.
func (m *Manager) SeekToFileEnd(idx int) error {
	ts, err := m.selectTransports(idx)
	if err != nil {
		return err
	}

	for _, t := range ts {
		info, err := t.file.Stat()
		if err != nil {
			return errs.IO(err, "stat %s", t.name)
		}
		t.pos = info.Size()
	}

	return nil
}

// SeekToFileBegin resets the sequential position of the selected transports.
func (m *Manager) SeekToFileBegin(idx int) error {
	ts, err := m.selectTransports(idx)
	if err != nil {
		return err
	}
	for _, t := range ts {
		t.pos = 0
	}

	return nil
}

// FlushFiles syncs the selected transports.
func (m *Manager) FlushFiles(idx int) error {
	ts, err := m.selectTransports(idx)
	if err != nil {
		return err
	}

	for _, t := range ts {
		if t.mode == format.ModeReadRandomAccess {
			continue
		}
		if err := t.file.Sync(); err != nil {
			return errs.IO(err, "sync %s", t.name)
		}
	}

	return nil
}

// CloseFiles closes the selected transports and returns every close failure combined.
func (m *Manager) CloseFiles(idx int) error {
	ts, err := m.selectTransports(idx)
	if err != nil {
		return err
	}

	var errList error
	for _, t := range ts {
		t.profiler.Start("close")
		if err := t.file.Close(); err != nil {
			errList = multierr.Append(errList, errs.IO(err, "close %s", t.name))
		}
		t.profiler.Stop("close")
		t.closed = true
	}
	if len(ts) > 0 {
		m.logger.Debug("closed transports", zap.Int("count", len(ts)))
	}

	return errList
}

// AllClosed reports whether every transport opened so far has been closed.
func (m *Manager) AllClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.transports {
		if !t.closed {
			return false
		}
	}

	return true
}

// Names returns the paths of all transports in open order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.transports))
	for i, t := range m.transports {
		names[i] = t.name
	}

	return names
}

// TransportTypes returns the type of every transport in open order.
func (m *Manager) TransportTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]string, len(m.transports))
	for i := range types {
		types[i] = TypeFile
	}

	return types
}

// Profilers returns the profiler of every transport in open order.
func (m *Manager) Profilers() []*profile.Profiler {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*profile.Profiler, len(m.transports))
	for i, t := range m.transports {
		out[i] = t.profiler
	}

	return out
}

// RewritePrefix keeps the first size bytes of name. The prefix is copied to a temporary
// file that then replaces the original, so a failure leaves the original untouched.
func (m *Manager) RewritePrefix(name string, size int64) error {
	src, err := m.fs.Open(name)
	if err != nil {
		return errs.IO(err, "open %s", name)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errs.IO(err, "stat %s", name)
	}
	if size > info.Size() {
		return errors.Wrapf(errs.ErrInvalidArgument, "cannot keep %d bytes of %s with %d bytes", size, name, info.Size())
	}

	tmp := name + ".tmp"
	dst, err := m.fs.Create(tmp, vfs.WriteCategoryUnspecified)
	if err != nil {
		return errs.IO(err, "create %s", tmp)
	}
	if _, err := io.Copy(dst, io.NewSectionReader(src, 0, size)); err != nil {
		_ = dst.Close()
		return errs.IO(err, "copy prefix of %s", name)
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		return errs.IO(err, "sync %s", tmp)
	}
	if err := dst.Close(); err != nil {
		return errs.IO(err, "close %s", tmp)
	}
	if err := m.fs.Rename(tmp, name); err != nil {
		return errs.IO(err, "rename %s", tmp)
	}

	m.logger.Info("truncated file", zap.String("file", name), zap.Int64("size", size))

	return nil
}

// MkDirsBarrier creates dirs and synchronizes c. Without nodeLocal only rank 0 creates
// them; a failure there is reported on every rank.
func MkDirsBarrier(fs vfs.FS, dirs []string, c comm.Comm, nodeLocal bool) error {
	mkdirs := func() error {
		for _, d := range dirs {
			if err := fs.MkdirAll(filepath.Clean(d), 0o755); err != nil {
				return errs.IO(err, "create directory %s", d)
			}
		}

		return nil
	}

	if nodeLocal {
		return mkdirs()
	}

	var status uint64
	var mkErr error
	if c.Rank() == 0 {
		if mkErr = mkdirs(); mkErr != nil {
			status = 1
		}
	}
	status, err := c.BroadcastUint64(status, 0)
	if err != nil {
		return err
	}
	if mkErr != nil {
		return mkErr
	}
	if status != 0 {
		return errors.Mark(errors.Newf("rank 0 failed to create %v", dirs), errs.ErrIO)
	}

	return nil
}
