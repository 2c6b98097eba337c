// Package options implements generic functional options shared by the engine constructors.
package options

import (
	"github.com/cockroachdb/errors"
)

// Option configures a target of type T.
type Option[T any] interface {
	apply(T) error
}

// Func is an Option backed by a plain function.
type Func[T any] func(T) error

func (f Func[T]) apply(target T) error { return f(target) }

// New creates an option from a function that may fail.
func New[T any](fn func(T) error) Func[T] {
	return Func[T](fn)
}

// NoError creates an option from a function that cannot fail.
func NoError[T any](fn func(T)) Func[T] {
	return func(target T) error {
		fn(target)
		return nil
	}
}

// Apply applies opts to target in order. Nil options are skipped. The first failure stops
// the chain and is returned with the option's position attached.
func Apply[T any](target T, opts ...Option[T]) error {
	for i, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(target); err != nil {
			return errors.Wrapf(err, "option %d", i)
		}
	}

	return nil
}
