// Package collision detects member id collisions between variable and attribute names.
package collision

import (
	"github.com/cockroachdb/errors"

	"github.com/arloliu/bp4/errs"
)

// Tracker remembers which name owns each member id.
type Tracker struct {
	names map[uint32]string
	order []string
}

// NewTracker creates a new collision tracker.
func NewTracker() *Tracker {
	return &Tracker{names: make(map[uint32]string)}
}

// Track records that name uses id.
//
// Tracking the same name twice is allowed. A different name with an id already taken
// returns errs.ErrHashCollision, since readers resolve blocks by member id.
func (t *Tracker) Track(name string, id uint32) error {
	if name == "" {
		return errors.Wrap(errs.ErrInvalidArgument, "empty name")
	}

	if existing, ok := t.names[id]; ok {
		if existing == name {
			return nil
		}

		return errors.Wrapf(errs.ErrHashCollision, "%q and %q share member id %#x", existing, name, id)
	}

	t.names[id] = name
	t.order = append(t.order, name)

	return nil
}

// Lookup returns the name tracked for id.
func (t *Tracker) Lookup(id uint32) (string, bool) {
	name, ok := t.names[id]
	return name, ok
}

// Names returns tracked names in the order they were first seen.
func (t *Tracker) Names() []string {
	return t.order
}

// Count returns the number of tracked names.
func (t *Tracker) Count() int {
	return len(t.order)
}

// Reset clears all tracked names.
func (t *Tracker) Reset() {
	clear(t.names)
	t.order = t.order[:0]
}
