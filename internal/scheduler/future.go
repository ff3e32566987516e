package scheduler

import (
	"context"
	"sync"
)

// Future is the handle Enqueue returns. It resolves exactly once, when the
// request's result is stored.
type Future struct {
	id     string
	done   chan struct{}
	once   sync.Once
	result Result
	store  *resultStore
}

func newFuture(id string, store *resultStore) *Future {
	return &Future{id: id, done: make(chan struct{}), store: store}
}

// ID returns the request id.
func (f *Future) ID() string {
	return f.id
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx ends. Receiving the result
// consumes the stored copy, so a later PollResult for the same id finds nothing.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		f.store.take(f.id)
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (f *Future) resolve(r Result) {
	f.once.Do(func() {
		f.result = r
		close(f.done)
	})
}
