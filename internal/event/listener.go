// Package event implements the listener registry and multiplexer: it tracks
// active query and document listeners, shares one underlying subscription
// between listeners with identical targets, filters metadata-only deliveries
// per listener, and fans out snapshots-in-sync notifications.
//
// The registry has no locking. Every method except Listener.Mute must be
// called from within the owning client's operation queue, which is the
// single serialization point for all registry state.
package event

import (
	"sync/atomic"

	"github.com/gofrs/uuid"

	"github.com/quilldb/quill.go/pkg/query"
	"github.com/quilldb/quill.go/pkg/view"
)

// Handler is the structured callback capability a listener registration
// carries. OnNext must be set; OnError and OnComplete may be nil.
type Handler struct {
	OnNext     func(view.Snapshot)
	OnError    func(error)
	OnComplete func()
}

// Options selects which deliveries a listener wants.
type Options struct {
	// IncludeMetadataChanges also delivers snapshots whose only change
	// versus the previous delivery is the FromCache or HasPendingWrites
	// flag.
	IncludeMetadataChanges bool
}

// Listener is one registration against one target. The registry owns it;
// callers hold only the unsubscribe capability returned at registration.
type Listener struct {
	id      uuid.UUID
	target  query.Query
	opts    Options
	handler Handler

	// muted is flipped synchronously on unsubscribe, before the eventual
	// deregistration task runs, so it is the one piece of listener state
	// touched from outside the queue.
	muted atomic.Bool

	// failed marks a listener whose OnError fired. Error delivery is
	// terminal.
	failed bool

	delivered bool
	prev      view.Snapshot
}

// NewListener builds a listener for the given target.
func NewListener(target query.Query, opts Options, handler Handler) *Listener {
	return &Listener{
		id:      uuid.Must(uuid.NewV4()),
		target:  target,
		opts:    opts,
		handler: handler,
	}
}

// Target returns the listener's query.
func (l *Listener) Target() query.Query {
	return l.target
}

// Mute irreversibly suppresses all further callback delivery. Safe to call
// from any goroutine, any number of times.
func (l *Listener) Mute() {
	l.muted.Store(true)
}

// Muted reports whether the listener has been muted.
func (l *Listener) Muted() bool {
	return l.muted.Load()
}

// onSnapshot delivers one snapshot, applying metadata-change filtering
// against the previous delivery. Runs on the queue.
func (l *Listener) onSnapshot(snap view.Snapshot) {
	if l.Muted() || l.failed {
		return
	}

	if l.delivered && snap.ContentEqual(l.prev) {
		metadataChanged := snap.FromCache != l.prev.FromCache ||
			snap.HasPendingWrites != l.prev.HasPendingWrites
		if !metadataChanged || !l.opts.IncludeMetadataChanges {
			l.prev = snap
			return
		}
	}

	l.prev = snap
	l.delivered = true
	l.handler.OnNext(snap)
}

// onError delivers a terminal error. No OnNext fires afterwards.
func (l *Listener) onError(err error) {
	if l.Muted() || l.failed {
		return
	}
	l.failed = true
	if l.handler.OnError != nil {
		l.handler.OnError(err)
	}
}

// onComplete fires the completion callback on deregistration.
func (l *Listener) onComplete() {
	if l.Muted() || l.failed {
		return
	}
	if l.handler.OnComplete != nil {
		l.handler.OnComplete()
	}
}

// SyncListener observes snapshots-in-sync events: it fires once after every
// batch of query listeners has been notified, with no payload.
type SyncListener struct {
	id    uuid.UUID
	fn    func()
	muted atomic.Bool
}

// NewSyncListener builds a snapshots-in-sync listener.
func NewSyncListener(fn func()) *SyncListener {
	return &SyncListener{id: uuid.Must(uuid.NewV4()), fn: fn}
}

// Mute irreversibly suppresses further notification.
func (l *SyncListener) Mute() {
	l.muted.Store(true)
}
