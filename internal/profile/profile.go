// Package profile records named timers and byte counters for the profiling report.
//
// A nil or disabled Profiler accepts every call and records nothing, so callers never
// need to check whether profiling is on.
package profile

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/errs"
)

// Units selects the unit timers report in.
type Units uint8

const (
	Microseconds Units = iota
	Milliseconds
	Seconds
	Minutes
	Hours
)

// ParseUnits parses the ProfileUnits parameter: Mus, Ms, S, M or H.
func ParseUnits(s string) (Units, error) {
	switch strings.ToLower(s) {
	case "mus", "microseconds":
		return Microseconds, nil
	case "ms", "milliseconds":
		return Milliseconds, nil
	case "s", "seconds":
		return Seconds, nil
	case "m", "minutes":
		return Minutes, nil
	case "h", "hours":
		return Hours, nil
	default:
		return 0, errors.Wrapf(errs.ErrInvalidArgument, "invalid profile units %q, use Mus, Ms, S, M or H", s)
	}
}

// String returns the suffix used in report keys.
func (u Units) String() string {
	switch u {
	case Milliseconds:
		return "ms"
	case Seconds:
		return "s"
	case Minutes:
		return "m"
	case Hours:
		return "h"
	default:
		return "mus"
	}
}

// Convert expresses d in units u.
func (u Units) Convert(d time.Duration) float64 {
	switch u {
	case Milliseconds:
		return float64(d) / float64(time.Millisecond)
	case Seconds:
		return d.Seconds()
	case Minutes:
		return d.Minutes()
	case Hours:
		return d.Hours()
	default:
		return float64(d) / float64(time.Microsecond)
	}
}

type timer struct {
	start   time.Time
	total   time.Duration
	running bool
}

// Profiler accumulates time per named timer and bytes per named counter.
type Profiler struct {
	mu      sync.Mutex
	units   Units
	enabled bool
	timers  map[string]*timer
	bytes   map[string]uint64
	now     func() time.Time
}

// New returns a profiler. A disabled profiler records nothing.
func New(units Units, enabled bool) *Profiler {
	return &Profiler{
		units:   units,
		enabled: enabled,
		timers:  make(map[string]*timer),
		bytes:   make(map[string]uint64),
		now:     time.Now,
	}
}

// Enabled reports whether the profiler records anything.
func (p *Profiler) Enabled() bool {
	return p != nil && p.enabled
}

// Start resumes the named timer.
func (p *Profiler) Start(name string) {
	if !p.Enabled() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.timers[name]
	if !ok {
		t = &timer{}
		p.timers[name] = t
	}
	if !t.running {
		t.start = p.now()
		t.running = true
	}
}

// Stop pauses the named timer and adds the elapsed time to its total.
func (p *Profiler) Stop(name string) {
	if !p.Enabled() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.timers[name]; ok && t.running {
		t.total += p.now().Sub(t.start)
		t.running = false
	}
}

// Time runs fn under the named timer.
func (p *Profiler) Time(name string, fn func() error) error {
	p.Start(name)
	defer p.Stop(name)

	return fn()
}

// AddBytes adds n to the named byte counter.
func (p *Profiler) AddBytes(name string, n int) {
	if !p.Enabled() || n <= 0 {
		return
	}

	p.mu.Lock()
	p.bytes[name] += uint64(n)
	p.mu.Unlock()
}

// Bytes returns the named byte counter.
func (p *Profiler) Bytes(name string) uint64 {
	if p == nil {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.bytes[name]
}

// Elapsed returns the named timer's total in the profiler's units.
func (p *Profiler) Elapsed(name string) float64 {
	if p == nil {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.timers[name]; ok {
		return p.units.Convert(t.total)
	}

	return 0
}

// Report returns every timer as "<name>_<units>" and every counter under its own name.
func (p *Profiler) Report() map[string]any {
	out := make(map[string]any)
	if p == nil {
		return out
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	suffix := "_" + p.units.String()
	for name, t := range p.timers {
		out[name+suffix] = p.units.Convert(t.total)
	}
	for name, n := range p.bytes {
		out[name] = n
	}

	return out
}
