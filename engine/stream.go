package engine

import (
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/arloliu/bp4/errs"
	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/section"
)

const (
	defaultOpenTimeout  = time.Hour
	defaultPollInterval = time.Second
)

// streamParameters control how BeginStep waits for steps a writer has not flushed yet.
type streamParameters struct {
	// openTimeout bounds the wait of a BeginStep called with a negative timeout.
	openTimeout time.Duration
	// pollInterval is the pause between two reads of the index file.
	pollInterval time.Duration
}

// parseStreamParameters reads OpenTimeoutSecs and BeginStepPollingFrequencySecs from the
// config entry of the IO and the explicit parameters. Writer parameters are ignored.
func parseStreamParameters(s *settings, path string) (streamParameters, error) {
	raw := make(map[string]string)
	if entry, ok := s.config.Lookup(ioNameFor(s, path)); ok {
		fromConfig, err := entry.StringParameters()
		if err != nil {
			return streamParameters{}, err
		}
		for k, v := range fromConfig {
			raw[strings.ToLower(k)] = v
		}
	}
	for k, v := range s.params {
		raw[strings.ToLower(k)] = v
	}

	p := streamParameters{openTimeout: defaultOpenTimeout, pollInterval: defaultPollInterval}
	if v, ok := raw["opentimeoutsecs"]; ok {
		secs, err := cast.ToFloat64E(strings.TrimSpace(v))
		if err != nil {
			return streamParameters{}, errors.Mark(errors.Wrapf(err, "parameter OpenTimeoutSecs=%q", v), errs.ErrInvalidArgument)
		}
		// a negative timeout waits as long as the writer stays active
		p.openTimeout = time.Duration(math.MaxInt64)
		if secs >= 0 {
			p.openTimeout = seconds(secs)
		}
	}
	if v, ok := raw["beginsteppollingfrequencysecs"]; ok {
		secs, err := cast.ToFloat64E(strings.TrimSpace(v))
		if err != nil {
			return streamParameters{}, errors.Mark(errors.Wrapf(err, "parameter BeginStepPollingFrequencySecs=%q", v), errs.ErrInvalidArgument)
		}
		if secs > 0 {
			p.pollInterval = seconds(secs)
		}
	}

	return p, nil
}

func seconds(secs float64) time.Duration {
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(secs * float64(time.Second))
}

// BeginStep moves the reader to the next step in index file order.
//
// When every known step has been consumed, BeginStep rereads the index file until the
// writer flushes a new step, the writer clears the active flag, or timeout expires. A zero
// timeout checks once; a negative one waits up to the OpenTimeoutSecs parameter.
//
// Returns:
//   - format.StepStatus: StepOK with a new current step, StepNotReady when the writer is
//     still active but produced nothing in time, StepEndOfStream when it has closed
//   - error: ErrInvalidState when a step is already open, ErrIO or ErrFormat when the
//     metadata cannot be reread
func (r *Reader) BeginStep(mode format.StepMode, timeout time.Duration) (format.StepStatus, error) {
	if r.closed {
		return format.StepOtherError, errors.Wrapf(errs.ErrClosed, "reader %s", r.path)
	}
	if mode != format.StepRead {
		return format.StepOtherError, errors.Wrapf(errs.ErrInvalidArgument, "reader BeginStep with mode %s", mode)
	}
	if r.inStep {
		return format.StepOtherError, errors.Wrapf(errs.ErrInvalidState, "BeginStep called in step %d before EndStep", r.current)
	}
	if timeout < 0 {
		timeout = r.stream.openTimeout
	}

	next := r.current + 1
	if next >= len(r.md.Rows) {
		status, err := r.waitForStep(next, timeout)
		if status != format.StepOK {
			return status, err
		}
	}
	r.current, r.inStep = next, true

	return format.StepOK, nil
}

// EndStep closes the step opened by BeginStep.
func (r *Reader) EndStep() error {
	if !r.inStep {
		return errors.Wrap(errs.ErrInvalidState, "EndStep called without BeginStep")
	}
	r.inStep = false

	return nil
}

// CurrentStep returns the step opened by the last successful BeginStep, -1 before the first.
func (r *Reader) CurrentStep() int { return r.current }

func (r *Reader) waitForStep(step int, timeout time.Duration) (format.StepStatus, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := r.refresh(); err != nil {
			// a writer caught between the metadata and the index write leaves them
			// inconsistent for a moment
			if !errors.Is(err, errs.ErrFormat) || !r.md.Index.Active {
				return format.StepOtherError, errors.Wrapf(err, "refresh %s", r.path)
			}
			r.logger.Debug("metadata not consistent yet", zap.String("path", r.path), zap.Error(err))
		}
		if step < len(r.md.Rows) {
			return format.StepOK, nil
		}
		if !r.md.Index.Active {
			return format.StepEndOfStream, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return format.StepNotReady, nil
		}
		time.Sleep(min(r.stream.pollInterval, remaining))
	}
}

// refresh rereads the metadata files and rebuilds the catalog when the index file lists
// new steps. The active flag is always updated.
func (r *Reader) refresh() error {
	md, err := loadMetadata(r.fs, r.path)
	if err != nil {
		return err
	}
	if len(md.Rows) <= len(r.md.Rows) {
		r.md.Index = md.Index
		return nil
	}

	prev := len(r.md.Rows)
	oldMD, oldEngine, oldVars, oldOrder, oldAttrs := r.md, r.engine, r.vars, r.order, r.attrs
	r.md = md
	r.engine = md.Engine()
	r.vars = make(map[string]*VariableInfo)
	r.order = nil
	r.attrs = make(map[string]section.ElementIndex)
	if err := r.buildCatalog(); err != nil {
		r.md, r.engine, r.vars, r.order, r.attrs = oldMD, oldEngine, oldVars, oldOrder, oldAttrs
		return err
	}
	r.logger.Debug("read new steps",
		zap.String("path", r.path),
		zap.Int("from", prev),
		zap.Int("steps", len(md.Rows)),
	)

	return nil
}
