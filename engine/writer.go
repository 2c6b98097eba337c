package engine

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/v2/vfs"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arloliu/bp4/aggregator"
	"github.com/arloliu/bp4/comm"
	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/internal/profile"
	"github.com/arloliu/bp4/logger"
	"github.com/arloliu/bp4/section"
	"github.com/arloliu/bp4/serializer"
	"github.com/arloliu/bp4/transport"
)

// Transport indexes of the metadata manager on rank 0.
const (
	metadataFile = 0
	indexFile    = 1
)

type writerState uint8

const (
	stateOpen writerState = iota
	stateInStep
	stateClosed
)

func (s writerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateInStep:
		return "in step"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Writer is the BP4 file engine for Write and Append modes.
//
// Every rank of the communicator opens the writer with the same path and parameters.
// Only aggregation consumers touch data files and only rank 0 touches the metadata and
// index files.
type Writer struct {
	path   string
	ioName string
	mode   format.OpenMode
	fs     vfs.FS
	comm   comm.Comm
	logger *zap.Logger
	now    func() time.Time

	params   serializer.Parameters
	profiler *profile.Profiler
	bp4      *serializer.Serializer
	agg      *aggregator.MPIChain

	// data holds this consumer's data subfile.
	data *transport.Manager
	// metadata holds md.0 and md.idx on rank 0.
	metadata *transport.Manager

	metrics *writerMetrics
	state   writerState
}

var _ Engine = (*Writer)(nil)

// OpenWriter opens the dataset directory path for writing. It is collective over the
// communicator set with WithComm.
//
// Parameters:
//   - path: dataset directory; created when missing
//   - mode: format.ModeWrite truncates an existing dataset, format.ModeAppend continues it
//   - opts: engine options
//
// Returns:
//   - *Writer: the open writer, positioned before its first step
//   - error: ErrInvalidArgument for bad parameters, ErrIO for file system failures,
//     ErrEndianMismatch or ErrUncleanShutdown when an existing dataset cannot be appended
func OpenWriter(path string, mode format.OpenMode, opts ...Option) (*Writer, error) {
	if mode != format.ModeWrite && mode != format.ModeAppend {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "writer cannot open %s in mode %s", path, mode)
	}

	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		path:    path,
		ioName:  ioNameFor(s, path),
		mode:    mode,
		fs:      s.fs,
		comm:    s.comm,
		logger:  logger.ForRank(s.logger, s.comm.Rank()),
		now:     s.now,
		metrics: newWriterMetrics(),
	}

	if err := w.init(s); err != nil {
		_ = w.release()
		return nil, errors.Wrapf(err, "open %s", path)
	}

	w.logger.Info("opened dataset",
		zap.String("path", path),
		zap.Stringer("mode", mode),
		zap.Int("ranks", w.comm.Size()),
		zap.Bool("aggregation", w.agg.IsActive()),
		zap.Int("subStream", w.agg.SubStreamIndex()),
		zap.Uint64("step", w.bp4.MetadataSet.CurrentStep),
	)

	return w, nil
}

func ioNameFor(s *settings, path string) string {
	if s.ioName != "" {
		return s.ioName
	}

	return filepath.Base(filepath.Clean(path))
}

func (w *Writer) init(s *settings) error {
	if err := w.initParameters(s); err != nil {
		return err
	}

	var resume appendState
	if w.mode == format.ModeAppend {
		var err error
		if resume, err = w.recoverAppend(); err != nil {
			return err
		}
	}

	if err := w.initTransports(); err != nil {
		return err
	}

	return w.initBPBuffer(resume)
}

// initParameters resolves the parameters of the IO and builds the serializer and the
// aggregation chain.
func (w *Writer) initParameters(s *settings) error {
	raw := make(map[string]string)
	if entry, ok := s.config.Lookup(w.ioName); ok {
		fromConfig, err := entry.StringParameters()
		if err != nil {
			return err
		}
		for k, v := range fromConfig {
			raw[strings.ToLower(k)] = v
		}
	}
	for k, v := range s.params {
		raw[strings.ToLower(k)] = v
	}

	params, err := serializer.ParseParameters(raw)
	if err != nil {
		return err
	}
	w.params = params
	w.profiler = profile.New(params.ProfileUnits, params.Profile)

	w.agg, err = aggregator.NewMPIChain(w.comm, params.NumAggregators, aggregator.WithLogger(w.logger))
	if err != nil {
		return err
	}

	w.bp4, err = serializer.New(w.comm.Rank(), params,
		serializer.WithLogger(w.logger),
		serializer.WithProfiler(w.profiler),
	)
	if err != nil {
		return err
	}

	managerOpts := []transport.Option{
		transport.WithLogger(w.logger),
		transport.WithProfileUnits(params.ProfileUnits),
	}
	if w.data, err = transport.NewManager(w.fs, managerOpts...); err != nil {
		return err
	}
	if w.metadata, err = transport.NewManager(w.fs, managerOpts...); err != nil {
		return err
	}

	return nil
}

func (w *Writer) filePath(name string) string {
	return filepath.Join(w.path, name)
}

func (w *Writer) dataPath(subStream int) string {
	return w.filePath(section.DataFilePrefix + strconv.Itoa(subStream))
}

func (w *Writer) isRoot() bool {
	return w.comm.Rank() == 0
}

// initTransports creates the dataset directory and opens the files this rank writes.
func (w *Writer) initTransports() error {
	w.profiler.Start("mkdir")
	err := transport.MkDirsBarrier(w.fs, []string{w.path}, w.comm, w.params.NodeLocal)
	w.profiler.Stop("mkdir")
	if err != nil {
		return err
	}

	if w.agg.IsConsumer() {
		names := []string{w.dataPath(w.agg.SubStreamIndex())}
		if w.params.AsyncTasks {
			w.data.OpenFilesAsync(names, w.mode, w.params.Profile)
		} else if err := w.data.OpenFiles(names, w.mode, w.params.Profile); err != nil {
			return err
		}
	}

	if w.isRoot() {
		names := []string{w.filePath(section.MetadataFileName), w.filePath(section.IndexFileName)}
		if err := w.metadata.OpenFiles(names, w.mode, w.params.Profile); err != nil {
			return err
		}
	}

	w.bp4.SetIO(w.ioName, []string{transport.TypeFile}, w.agg.SubStreamIndex())

	return nil
}

// initBPBuffer resumes the step counters of an appended dataset and writes the headers
// of files that are still empty.
func (w *Writer) initBPBuffer(resume appendState) error {
	if resume.existing {
		w.bp4.MetadataSet.Resume(resume.lastStep)
	}

	if w.mode == format.ModeAppend {
		if w.agg.IsConsumer() {
			size, err := w.data.GetFileSize(0)
			if err != nil {
				return err
			}
			w.bp4.MetadataSet.PreDataFileLength = uint64(size) //nolint:gosec
		}
		if w.isRoot() {
			size, err := w.metadata.GetFileSize(metadataFile)
			if err != nil {
				return err
			}
			w.bp4.MetadataSet.SetPreMetadataFileLength(uint64(size)) //nolint:gosec
		}
	}

	if w.agg.IsConsumer() {
		w.bp4.Data.SetAbsoluteBase(w.bp4.MetadataSet.PreDataFileLength)
		if w.bp4.MetadataSet.PreDataFileLength == 0 {
			if _, err := w.bp4.MakeHeader(w.bp4.Data, format.FileData, false); err != nil {
				return err
			}
		}
	}

	if !w.isRoot() {
		return nil
	}

	if w.bp4.MetadataSet.PreMetadataFileLength == 0 {
		if _, err := w.bp4.MakeHeader(w.bp4.Metadata, format.FileMetadata, false); err != nil {
			return err
		}
	}

	if resume.existing {
		w.bp4.IndexHeader = section.LayoutAt(0)
		if err := w.updateActiveFlag(true); err != nil {
			return err
		}
		w.logger.Info("resuming dataset",
			zap.Uint64("lastStep", resume.lastStep),
			zap.Uint64("preMetadataLength", w.bp4.MetadataSet.PreMetadataFileLength),
		)

		return nil
	}

	// a new index file is marked active as soon as it exists
	if _, err := w.bp4.MakeHeader(w.bp4.MetadataIndex, format.FileIndexTable, false); err != nil {
		return err
	}
	if err := w.metadata.WriteFiles(w.bp4.MetadataIndex.Bytes(), indexFile); err != nil {
		return err
	}
	w.bp4.ResetBuffer(w.bp4.MetadataIndex, true)

	return w.metadata.FlushFiles(indexFile)
}

// Type returns TypeBP4.
func (w *Writer) Type() string { return TypeBP4 }

// OpenMode returns the mode the writer was opened with.
func (w *Writer) OpenMode() format.OpenMode { return w.mode }

// Path returns the dataset directory.
func (w *Writer) Path() string { return w.path }

// Parameters returns the resolved engine parameters.
func (w *Writer) Parameters() serializer.Parameters { return w.params }

// Aggregation returns the rank's aggregation chain.
func (w *Writer) Aggregation() aggregator.Chain { return w.agg.Chain() }

// CurrentStep returns the number of completed steps, including those of an appended
// dataset.
func (w *Writer) CurrentStep() uint64 {
	return w.bp4.MetadataSet.CurrentStep
}

func (w *Writer) checkState(want writerState, op string) error {
	if w.state == stateClosed {
		return errors.Wrapf(errs.ErrClosed, "%s on closed writer %s", op, w.path)
	}
	if w.state != want {
		return errors.Wrapf(errs.ErrInvalidState, "%s while writer is %s", op, w.state)
	}

	return nil
}

// BeginStep starts a step. File engines never make the caller wait, so the status is
// always StepOK; timeout is ignored.
func (w *Writer) BeginStep(mode format.StepMode, _ time.Duration) (format.StepStatus, error) {
	if err := w.checkState(stateOpen, "BeginStep"); err != nil {
		return format.StepOtherError, err
	}
	if mode != format.StepAppend && mode != format.StepUpdate {
		return format.StepOtherError, errors.Wrapf(errs.ErrInvalidArgument, "writer step mode %s", mode)
	}

	w.bp4.ClearDeferred()
	w.state = stateInStep

	return format.StepOK, nil
}

// Put writes one block of v. A synchronous put copies data before returning; a deferred
// put keeps a reference to data until PerformPuts or EndStep, so data must not change
// in between.
func (w *Writer) Put(v *serializer.Variable, data any, mode format.PutMode) error {
	if err := w.checkState(stateInStep, "Put"); err != nil {
		return err
	}

	return w.bp4.Put(v, data, mode)
}

// DefineAttribute attaches an attribute to the dataset. It is written with the next
// completed step.
func (w *Writer) DefineAttribute(name string, value any) error {
	if w.state == stateClosed {
		return errors.Wrapf(errs.ErrClosed, "DefineAttribute on closed writer %s", w.path)
	}

	a, err := serializer.NewAttribute(name, value)
	if err != nil {
		return err
	}

	return w.bp4.DefineAttribute(a)
}

// PerformPuts copies the payloads of every outstanding deferred put with a single
// buffer reservation.
func (w *Writer) PerformPuts() error {
	if err := w.checkState(stateInStep, "PerformPuts"); err != nil {
		return err
	}

	return w.bp4.PerformPuts()
}

// EndStep closes the step's process group and flushes when the number of completed steps
// is a multiple of FlushStepsCount.
func (w *Writer) EndStep() error {
	if err := w.checkState(stateInStep, "EndStep"); err != nil {
		return err
	}

	if err := w.bp4.SerializeData(true); err != nil {
		return err
	}
	w.state = stateOpen
	w.metrics.steps.Inc()

	if w.bp4.MetadataSet.CurrentStep%uint64(w.params.FlushStepsCount) == 0 { //nolint:gosec
		return w.Flush(transport.All)
	}

	return nil
}

// Flush writes the buffered steps to the data files and, with CollectiveMetadata, their
// metadata and index rows. It is collective and may not be called inside a step.
func (w *Writer) Flush(transportIndex int) error {
	if err := w.checkState(stateOpen, "Flush"); err != nil {
		return err
	}

	if err := w.doFlush(false, transportIndex); err != nil {
		return err
	}
	if w.params.CollectiveMetadata {
		return w.writeCollectiveMetadataFile(false)
	}

	return nil
}

// Close completes an open step, flushes, writes the remaining metadata, clears the index
// file's active flag and closes every file. It is collective.
func (w *Writer) Close(transportIndex int) error {
	if w.state == stateClosed {
		return errors.Wrapf(errs.ErrClosed, "writer %s already closed", w.path)
	}

	err := w.finish(transportIndex)
	err = multierr.Append(err, w.release())
	w.state = stateClosed

	if err != nil {
		return errors.Wrapf(err, "close %s", w.path)
	}
	w.logger.Info("closed dataset", zap.String("path", w.path), zap.Uint64("steps", w.bp4.MetadataSet.CurrentStep))

	return nil
}

func (w *Writer) finish(transportIndex int) error {
	if w.state == stateInStep {
		if err := w.bp4.SerializeData(true); err != nil {
			return err
		}
		w.state = stateOpen
		w.metrics.steps.Inc()
	}

	if err := w.doFlush(true, transportIndex); err != nil {
		return err
	}
	if w.agg.IsConsumer() {
		if err := w.data.CloseFiles(transportIndex); err != nil {
			return err
		}
	}

	if w.data.AllClosed() {
		if err := w.writeCollectiveMetadataFile(true); err != nil {
			return err
		}
		if w.params.Profile {
			if err := w.writeProfilingJSON(); err != nil {
				return err
			}
		}
	}

	return nil
}

// release closes whatever is still open. It is safe after partial initialization.
func (w *Writer) release() error {
	var err error
	if w.data != nil {
		err = multierr.Append(err, w.data.CloseFiles(transport.All))
	}
	if w.metadata != nil {
		err = multierr.Append(err, w.metadata.CloseFiles(transport.All))
	}
	if w.agg != nil {
		err = multierr.Append(err, w.agg.Close())
	}

	return err
}
