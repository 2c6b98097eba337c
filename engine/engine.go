// Package engine implements the BP4 writer, its null counterpart and the random-access
// reader.
//
// A Writer is opened collectively by every rank of a communicator. Each step the ranks
// put variable blocks, and EndStep closes the step; every FlushStepsCount steps the data
// buffers reach the data files, directly (one file per rank) or through aggregation chains
// (one file per chain), and rank 0 appends the merged metadata and one index row per step.
//
//	w, err := engine.OpenWriter("run.bp", format.ModeWrite,
//	    engine.WithComm(c),
//	    engine.WithParameters(map[string]string{"NumAggregators": "2"}),
//	)
//	if err != nil {
//	    return err
//	}
//	v, _ := serializer.NewVariable("temperature", format.TypeFloat64, shape, start, count)
//	for range steps {
//	    w.BeginStep(format.StepAppend, 0)
//	    w.Put(v, values, format.PutDeferred)
//	    w.EndStep()
//	}
//	return w.Close(transport.All)
package engine

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/serializer"
)

// Engine types accepted by Open.
const (
	TypeBP4  = "BP4"
	TypeNull = "Null"
)

// Engine is the write interface shared by the BP4 writer and the null engine.
type Engine interface {
	// Type returns the engine type name.
	Type() string
	// OpenMode returns the mode the engine was opened with.
	OpenMode() format.OpenMode
	// BeginStep starts a step.
	BeginStep(mode format.StepMode, timeout time.Duration) (format.StepStatus, error)
	// CurrentStep returns the number of completed steps, including those of an appended dataset.
	CurrentStep() uint64
	// Put writes one block of v for the current step.
	Put(v *serializer.Variable, data any, mode format.PutMode) error
	// DefineAttribute attaches an attribute to the dataset.
	DefineAttribute(name string, value any) error
	// PerformPuts copies the payloads of deferred puts.
	PerformPuts() error
	// EndStep finishes the step and flushes when the flush cadence is reached.
	EndStep() error
	// Flush writes buffered steps to transportIndex, or every transport with -1.
	Flush(transportIndex int) error
	// Close flushes what remains and closes the dataset.
	Close(transportIndex int) error
}

// Open opens a dataset for writing with the engine named by engineType. An empty type
// takes the engine of the config entry matching the IO name, or BP4.
func Open(engineType, path string, mode format.OpenMode, opts ...Option) (Engine, error) {
	if engineType == "" {
		s, err := newSettings(opts)
		if err != nil {
			return nil, err
		}
		engineType = TypeBP4
		if entry, ok := s.config.Lookup(ioNameFor(s, path)); ok {
			engineType = entry.Engine
		}
	}

	switch {
	case strings.EqualFold(engineType, TypeBP4):
		return OpenWriter(path, mode, opts...)
	case strings.EqualFold(engineType, TypeNull):
		return NewNull(mode), nil
	default:
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "unknown engine type %q", engineType)
	}
}
