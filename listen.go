package quill

import (
	"context"
	"sync"

	"github.com/quilldb/quill.go/internal/event"
	"github.com/quilldb/quill.go/pkg/query"
	"github.com/quilldb/quill.go/pkg/view"
)

// ListenOptions selects which deliveries a listener wants.
type ListenOptions struct {
	// IncludeMetadataChanges also delivers snapshots whose only change
	// versus the previous delivery is a metadata flag.
	IncludeMetadataChanges bool
}

// DocumentHandler receives document snapshot events. OnError and OnComplete
// may be nil. Once OnError fires the listener is finished: no further
// OnNext follows.
type DocumentHandler struct {
	OnNext     func(DocumentSnapshot)
	OnError    func(error)
	OnComplete func()
}

// QueryHandler receives query snapshot events, with the same contract as
// DocumentHandler.
type QueryHandler struct {
	OnNext     func(QuerySnapshot)
	OnError    func(error)
	OnComplete func()
}

// UnsubscribeFunc detaches a listener. The first call mutes it
// synchronously, before any further queue task runs, so no callback fires
// after the call returns; later calls are no-ops. It is the only handle the
// caller holds on the registration.
type UnsubscribeFunc func()

// ListenDoc registers a snapshot listener on one document. Callback
// invocations for one listener are strictly ordered and never re-entrant.
func (c *Client) ListenDoc(ref DocumentRef, opts ListenOptions, h DocumentHandler) (UnsubscribeFunc, error) {
	if err := c.checkTerminated(); err != nil {
		return nil, err
	}

	onNext := h.OnNext
	if onNext == nil {
		onNext = func(DocumentSnapshot) {}
	}

	l := event.NewListener(query.ForDocument(ref.key), event.Options(opts), event.Handler{
		OnNext: func(snap view.Snapshot) {
			onNext(documentSnapshotFromView(ref.key, snap))
		},
		OnError:    h.OnError,
		OnComplete: h.OnComplete,
	})
	return c.register(l)
}

// ListenQuery registers a snapshot listener on a query. Listeners with
// identical targets share one underlying subscription. The query is
// validated before anything is enqueued.
func (c *Client) ListenQuery(q query.Query, opts ListenOptions, h QueryHandler) (UnsubscribeFunc, error) {
	if err := c.checkTerminated(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	onNext := h.OnNext
	if onNext == nil {
		onNext = func(QuerySnapshot) {}
	}

	l := event.NewListener(q, event.Options(opts), event.Handler{
		OnNext: func(snap view.Snapshot) {
			onNext(querySnapshotFromView(snap))
		},
		OnError:    h.OnError,
		OnComplete: h.OnComplete,
	})
	return c.register(l)
}

func (c *Client) register(l *event.Listener) (UnsubscribeFunc, error) {
	// Registration failures are remote errors: the registry reports them
	// through the listener's own error callback, since the registration
	// call has already returned by the time the task runs.
	err := c.queue.Enqueue(func(context.Context) error {
		return c.registry.Listen(l)
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.Mute()
			// The eventual deregistration; after termination the registry
			// is torn down as a whole and nothing is left to do.
			_ = c.queue.Enqueue(func(context.Context) error {
				c.registry.Unlisten(l)
				return nil
			})
		})
	}, nil
}

// OnSnapshotsInSync registers a listener that fires, with no payload, every
// time a batch of snapshot deliveries completes: when it fires, every query
// listener has seen the state that batch describes.
func (c *Client) OnSnapshotsInSync(fn func()) (UnsubscribeFunc, error) {
	if err := c.checkTerminated(); err != nil {
		return nil, err
	}

	l := event.NewSyncListener(fn)
	err := c.queue.Enqueue(func(context.Context) error {
		c.registry.ListenSync(l)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.Mute()
			_ = c.queue.Enqueue(func(context.Context) error {
				c.registry.UnlistenSync(l)
				return nil
			})
		})
	}, nil
}
