package transport

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Future is the result of an asynchronous open.
type Future struct {
	g    errgroup.Group
	once sync.Once
	err  error
}

func newFuture(fn func() error) *Future {
	f := &Future{}
	f.g.Go(fn)

	return f
}

// Get blocks until the open finishes and returns its error. It may be called repeatedly.
func (f *Future) Get() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		f.err = f.g.Wait()
	})

	return f.err
}
