package engine

import (
	"time"

	"github.com/arloliu/bp4/format"
	"github.com/arloliu/bp4/serializer"
)

// Null is an engine that accepts every call and writes nothing. It counts steps so
// callers that drive their loop from CurrentStep behave the same with either engine.
type Null struct {
	mode  format.OpenMode
	steps uint64
}

var _ Engine = (*Null)(nil)

// NewNull returns a null engine in mode.
func NewNull(mode format.OpenMode) *Null {
	return &Null{mode: mode}
}

// Type returns TypeNull.
func (n *Null) Type() string { return TypeNull }

// OpenMode returns the mode the engine was opened with.
func (n *Null) OpenMode() format.OpenMode { return n.mode }

// BeginStep always reports StepOK.
func (n *Null) BeginStep(format.StepMode, time.Duration) (format.StepStatus, error) {
	return format.StepOK, nil
}

// CurrentStep returns the number of EndStep calls.
func (n *Null) CurrentStep() uint64 { return n.steps }

func (n *Null) Put(*serializer.Variable, any, format.PutMode) error { return nil }

func (n *Null) DefineAttribute(string, any) error { return nil }

func (n *Null) PerformPuts() error { return nil }

// EndStep counts the step.
func (n *Null) EndStep() error {
	n.steps++

	return nil
}

func (n *Null) Flush(int) error { return nil }

func (n *Null) Close(int) error { return nil }
