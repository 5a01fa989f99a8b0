package env

import (
	"context"
	"sync"
)

// future is a single-assignment result. The first settle wins.
type future struct {
	once   sync.Once
	done   chan struct{}
	result string
	err    error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) settle(result string, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
	})
}

func (f *future) resolve(result string) {
	f.settle(result, nil)
}

func (f *future) reject(err error) {
	f.settle("", err)
}

// Await blocks until the future settles or ctx is done.
func (f *future) Await(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-f.done:
		return f.result, f.err
	}
}

// Settled reports whether the future has a result.
func (f *future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
