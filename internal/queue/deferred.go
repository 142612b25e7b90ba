package queue

import (
	"context"
	"sync"
)

// Deferred is a one-shot, write-once result cell. The queue task that owns
// it is its sole writer; any number of callers may Await it. Settling a
// Deferred twice is a programming error and panics rather than silently
// dropping a result.
type Deferred[T any] struct {
	mu      sync.Mutex
	settled bool
	value   T
	err     error

	done chan struct{}
}

// NewDeferred returns a pending cell.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolve settles the cell with a value.
func (d *Deferred[T]) Resolve(value T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		panic("deferred settled twice")
	}
	d.settled = true
	d.value = value
	close(d.done)
}

// Reject settles the cell with an error.
func (d *Deferred[T]) Reject(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		panic("deferred settled twice")
	}
	d.settled = true
	d.err = err
	close(d.done)
}

// Await blocks until the cell settles or the context expires, and returns
// the settled value or re-raises the settled error. Every waiter observes
// the same outcome.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled reports whether the cell has been resolved or rejected.
func (d *Deferred[T]) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}
