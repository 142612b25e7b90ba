package event

import (
	"fmt"

	"github.com/gofrs/uuid"

	"github.com/quilldb/quill.go/pkg/logger"
	"github.com/quilldb/quill.go/pkg/query"
	"github.com/quilldb/quill.go/pkg/view"
)

// Source is the registry's downstream: the engine-facing transport that
// starts and stops one subscription per unique target. Listen returns the
// initial snapshot; later snapshots arrive through Registry.OnSnapshots.
type Source interface {
	Listen(q query.Query) (view.Snapshot, error)
	Unlisten(q query.Query) error
}

// share is one underlying subscription plus the listeners attached to it.
type share struct {
	target    query.Query
	listeners []*Listener

	current    view.Snapshot
	hasCurrent bool
}

// Registry multiplexes many listeners onto per-target subscriptions.
// All methods run on the owning client's queue.
type Registry struct {
	log logger.Logger
	src Source

	shares        map[string]*share
	syncListeners map[uuid.UUID]*SyncListener
}

// NewRegistry builds an empty registry over the given source.
func NewRegistry(src Source, log logger.Logger) *Registry {
	return &Registry{
		log:           log,
		src:           src,
		shares:        make(map[string]*share),
		syncListeners: make(map[uuid.UUID]*SyncListener),
	}
}

// Listen attaches a listener. The first listener for a target starts the
// underlying subscription; later ones share it and are immediately caught
// up with the target's current snapshot.
func (r *Registry) Listen(l *Listener) error {
	id := l.target.CanonicalID()

	s, ok := r.shares[id]
	if !ok {
		initial, err := r.src.Listen(l.target)
		if err != nil {
			l.onError(err)
			return fmt.Errorf("starting subscription for %s: %w", id, err)
		}
		s = &share{target: l.target, current: initial, hasCurrent: true}
		r.shares[id] = s
		r.log.Debug("subscription started", "target", id)
	}

	s.listeners = append(s.listeners, l)
	if s.hasCurrent {
		l.onSnapshot(s.current)
	}
	return nil
}

// Unlisten detaches a listener. The caller has already muted it; this is
// the eventual deregistration. Removing the last listener of a target stops
// the underlying subscription.
func (r *Registry) Unlisten(l *Listener) {
	id := l.target.CanonicalID()

	s, ok := r.shares[id]
	if !ok {
		return
	}

	for i, attached := range s.listeners {
		if attached.id == l.id {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			attached.onComplete()
			break
		}
	}

	if len(s.listeners) == 0 {
		delete(r.shares, id)
		if err := r.src.Unlisten(s.target); err != nil {
			r.log.Warn("failed to stop subscription", "target", id, "error", err)
		}
		r.log.Debug("subscription stopped", "target", id)
	}
}

// OnSnapshots delivers one consistent batch of snapshots to the listeners
// of the affected targets, then notifies the snapshots-in-sync listeners.
func (r *Registry) OnSnapshots(snaps []view.Snapshot) {
	for _, snap := range snaps {
		s, ok := r.shares[snap.Query.CanonicalID()]
		if !ok {
			continue
		}
		s.current = snap
		s.hasCurrent = true
		for _, l := range s.listeners {
			l.onSnapshot(snap)
		}
	}

	for _, sl := range r.syncListeners {
		if !sl.muted.Load() {
			sl.fn()
		}
	}
}

// OnError terminally fails every listener of the target and drops the
// subscription. After OnError no further OnNext fires for those listeners.
func (r *Registry) OnError(q query.Query, err error) {
	id := q.CanonicalID()

	s, ok := r.shares[id]
	if !ok {
		return
	}
	delete(r.shares, id)

	for _, l := range s.listeners {
		l.onError(err)
	}
	r.log.Debug("subscription failed", "target", id, "error", err)
}

// ListenSync registers a snapshots-in-sync listener.
func (r *Registry) ListenSync(l *SyncListener) {
	r.syncListeners[l.id] = l
}

// UnlistenSync deregisters a snapshots-in-sync listener.
func (r *Registry) UnlistenSync(l *SyncListener) {
	delete(r.syncListeners, l.id)
}

// Close terminally detaches everything; remaining listeners complete.
func (r *Registry) Close() {
	for id, s := range r.shares {
		delete(r.shares, id)
		for _, l := range s.listeners {
			l.onComplete()
		}
		if err := r.src.Unlisten(s.target); err != nil {
			r.log.Warn("failed to stop subscription", "target", id, "error", err)
		}
	}
	for id := range r.syncListeners {
		delete(r.syncListeners, id)
	}
}
