// Package queue implements the client's single serialization lane: an
// executor that runs asynchronous tasks strictly in submission order, one at
// a time, plus the one-shot Deferred cell that carries a task's result back
// to the caller.
//
// All cache reads, cache writes and listener-registry mutations of one
// client go through one Queue. That is the entire concurrency story: because
// no two tasks ever run interleaved, the collaborators behind the queue need
// no locking of their own, at the cost of every access being asynchronous
// even when it is logically instantaneous.
package queue

import (
	"context"
	"sync"

	"github.com/quilldb/quill.go/pkg/constants"
	"github.com/quilldb/quill.go/pkg/logger"
)

// Task is one unit of work. The scheduler ignores its result beyond logging:
// a failed task must report its error to its own caller through a Deferred,
// and must never block the tasks behind it.
type Task func(ctx context.Context) error

// Queue runs tasks strictly in Enqueue order, never concurrently with each
// other. Once closed it refuses new submissions but still drains every task
// it already accepted.
type Queue struct {
	log logger.Logger

	mu         sync.Mutex
	pending    []Task
	terminated bool

	// wake holds at most one token; every state change under mu is followed
	// by a non-blocking send, and the run loop re-checks state after each
	// receive, so a stale token is harmless.
	wake chan struct{}

	// drained is closed by the run loop once the queue is terminated and
	// empty.
	drained chan struct{}
}

// New starts an empty queue.
func New(log logger.Logger) *Queue {
	q := &Queue{
		log:     log,
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue appends a task to the lane. It fails fast with
// constants.ErrTerminated once Close has been called.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	if q.terminated {
		q.mu.Unlock()
		return constants.ErrTerminated
	}
	q.pending = append(q.pending, task)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Close stops accepting tasks and waits for the accepted ones to drain. The
// context bounds only the wait: the drain itself continues in the background
// if the context expires first. Close is idempotent.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.terminated = true
	q.mu.Unlock()

	q.signal()

	select {
	case <-q.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			if q.terminated {
				q.mu.Unlock()
				close(q.drained)
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		task := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		// Task errors are the task's own business; the lane only records
		// them. Panics are deliberately not recovered: a panicking task
		// indicates a broken collaborator contract, not a user error.
		if err := task(context.Background()); err != nil {
			q.log.Debug("queue task failed", "error", err)
		}
	}
}

// Run enqueues a task that produces a value and returns the Deferred that
// will carry it. The Deferred rejects if the task errors; Run itself errors
// only when the queue is terminated.
func Run[T any](q *Queue, fn func(ctx context.Context) (T, error)) (*Deferred[T], error) {
	d := NewDeferred[T]()
	err := q.Enqueue(func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			d.Reject(err)
			return err
		}
		d.Resolve(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
