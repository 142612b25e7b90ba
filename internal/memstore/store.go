// Package memstore is the reference in-memory implementation of the
// client's collaborator interfaces: the local document cache, the optimistic
// mutation overlay, query execution, listener notification and an embedded
// commit channel that acknowledges writes against its own committed state.
//
// It gives the client a fully working embedded mode, the role an in-process
// backend plays during tests, and documents one answer to the rollback
// question: a batch whose commit is rejected is rolled back from the local
// overlay, so failed writes never linger as phantom cache state.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/quilldb/quill.go/pkg/constants"
	"github.com/quilldb/quill.go/pkg/logger"
	"github.com/quilldb/quill.go/pkg/models"
	"github.com/quilldb/quill.go/pkg/query"
	"github.com/quilldb/quill.go/pkg/view"
)

type committedDoc struct {
	data    []byte
	version int64
}

type pendingBatch struct {
	id   int64
	muts []models.Mutation
}

type subscription struct {
	target query.Query
	last   view.Snapshot
}

// Store holds committed state plus the overlay of locally applied,
// not-yet-acknowledged batches. It is owned by one client; the mutex exists
// because the commit channel side is driven from the client's committer
// goroutine while everything else runs on the client's queue.
type Store struct {
	log logger.Logger

	mu        sync.Mutex
	committed map[string]committedDoc
	pending   []pendingBatch

	// committedHere records batches this store itself committed, so that
	// AcknowledgeBatch knows whether the committed state already includes
	// them or the ack came from an external commit channel.
	committedHere map[int64]bool

	nextVersion int64

	subs      map[string]*subscription
	notify    func([]view.Snapshot)
	notifyErr func(q query.Query, err error)
}

// New returns an empty store.
func New(log logger.Logger) *Store {
	return &Store{
		log:           log,
		committed:     make(map[string]committedDoc),
		committedHere: make(map[int64]bool),
		subs:          make(map[string]*subscription),
	}
}

// SetNotifier installs the snapshot sink. Snapshots for all registered
// targets affected by one state change arrive as one batch.
func (s *Store) SetNotifier(fn func([]view.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// SetErrorNotifier installs the sink for terminal subscription failures. A
// target whose snapshot can no longer be computed is reported once and
// dropped; it delivers no further snapshots.
func (s *Store) SetErrorNotifier(fn func(q query.Query, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyErr = fn
}

// localView returns every document visible locally: committed state with
// the pending overlay applied in batch order. The second map marks paths
// that carry pending writes.
func (s *Store) localView() (map[string]models.Document, map[string]bool, error) {
	docs := make(map[string]models.Document, len(s.committed))
	for path, cd := range s.committed {
		key, err := models.ParseDocumentPath(path)
		if err != nil {
			return nil, nil, err
		}
		docs[path] = models.Document{Key: key, Data: cd.data, Version: cd.version}
	}

	dirty := make(map[string]bool)
	for _, b := range s.pending {
		for _, m := range b.muts {
			path := m.Key.Path()
			var existing []byte
			if doc, ok := docs[path]; ok {
				existing = doc.Data
			}
			data, err := m.ApplyTo(existing)
			if err != nil {
				return nil, nil, err
			}
			if data == nil {
				delete(docs, path)
			} else {
				version := int64(0)
				if doc, ok := docs[path]; ok {
					version = doc.Version
				}
				docs[path] = models.Document{Key: m.Key, Data: data, Version: version}
			}
			dirty[path] = true
		}
	}

	return docs, dirty, nil
}

func (s *Store) snapshotLocked(q query.Query, fromCache bool) (view.Snapshot, error) {
	docs, dirty, err := s.localView()
	if err != nil {
		return view.Snapshot{}, err
	}

	all := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		all = append(all, doc)
	}

	result, err := q.Evaluate(all)
	if err != nil {
		return view.Snapshot{}, err
	}

	pending := false
	for _, doc := range result {
		if dirty[doc.Key.Path()] {
			pending = true
			break
		}
	}
	if q.IsDocumentQuery() && dirty[q.Doc.Path()] {
		// An absent-but-pending-delete document still counts as pending.
		pending = true
	}

	return view.Snapshot{
		Query:            q,
		Docs:             result,
		FromCache:        fromCache,
		HasPendingWrites: pending,
	}, nil
}

// ReadDocument returns the current local view of one key, pending writes
// included, so a client's own prior writes are always visible to its reads.
func (s *Store) ReadDocument(ctx context.Context, key models.DocumentKey) (view.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(query.ForDocument(key), false)
}

// ReadDocumentFromCache is ReadDocument without backend confirmation; for
// the embedded store the data is the same but the snapshot says so.
func (s *Store) ReadDocumentFromCache(ctx context.Context, key models.DocumentKey) (view.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(query.ForDocument(key), true)
}

// ExecuteQuery evaluates a query against the current local view.
func (s *Store) ExecuteQuery(ctx context.Context, q query.Query) (view.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(q, false)
}

// ExecuteQueryFromCache evaluates a query without backend confirmation.
func (s *Store) ExecuteQueryFromCache(ctx context.Context, q query.Query) (view.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(q, true)
}

// ApplyMutations applies one batch optimistically. Preconditions are checked
// against the local view so an impossible write fails before it is ever
// sent; the authoritative check still happens at commit time.
func (s *Store) ApplyMutations(ctx context.Context, batchID int64, muts []models.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, _, err := s.localView()
	if err != nil {
		return err
	}
	for _, m := range muts {
		_, exists := docs[m.Key.Path()]
		if !m.Precondition.Check(exists) {
			return fmt.Errorf("%w: %s on %s", constants.ErrPreconditionFailed, m.Precondition, m.Key)
		}
	}

	s.pending = append(s.pending, pendingBatch{id: batchID, muts: muts})
	s.notifyLocked()
	return nil
}

// CommitWrite is the embedded commit channel: it validates preconditions
// against committed state and commits the batch, in submission order because
// the client's committer calls it from a single goroutine.
func (s *Store) CommitWrite(ctx context.Context, batchID int64, muts []models.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range muts {
		_, exists := s.committed[m.Key.Path()]
		if !m.Precondition.Check(exists) {
			return fmt.Errorf("%w: %s on %s", constants.ErrPreconditionFailed, m.Precondition, m.Key)
		}
	}

	if err := s.commitLocked(muts); err != nil {
		return err
	}
	s.committedHere[batchID] = true
	return nil
}

func (s *Store) commitLocked(muts []models.Mutation) error {
	s.nextVersion++
	for _, m := range muts {
		path := m.Key.Path()
		var existing []byte
		if cd, ok := s.committed[path]; ok {
			existing = cd.data
		}
		data, err := m.ApplyTo(existing)
		if err != nil {
			return err
		}
		if data == nil {
			delete(s.committed, path)
		} else {
			s.committed[path] = committedDoc{data: data, version: s.nextVersion}
		}
	}
	return nil
}

// AcknowledgeBatch drops the batch from the pending overlay once its commit
// is acknowledged. When the ack came from an external commit channel the
// batch is folded into committed state here instead.
func (s *Store) AcknowledgeBatch(ctx context.Context, batchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.takeBatchLocked(batchID)
	if !ok {
		return fmt.Errorf("unknown batch %d", batchID)
	}

	if s.committedHere[batchID] {
		delete(s.committedHere, batchID)
	} else if err := s.commitLocked(batch.muts); err != nil {
		return err
	}

	s.notifyLocked()
	return nil
}

// RejectBatch rolls a failed batch back out of the local overlay. Later
// pending batches stay applied; they will succeed or fail on their own.
func (s *Store) RejectBatch(ctx context.Context, batchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.takeBatchLocked(batchID); !ok {
		return fmt.Errorf("unknown batch %d", batchID)
	}

	s.notifyLocked()
	return nil
}

func (s *Store) takeBatchLocked(batchID int64) (pendingBatch, bool) {
	for i, b := range s.pending {
		if b.id == batchID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return b, true
		}
	}
	return pendingBatch{}, false
}

// RegisterListener starts delivering snapshot batches for the target and
// returns its current snapshot.
func (s *Store) RegisterListener(q query.Query) (view.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := q.CanonicalID()
	if _, ok := s.subs[id]; ok {
		return view.Snapshot{}, fmt.Errorf("%w: listener for %s", constants.ErrIDInUse, id)
	}

	snap, err := s.snapshotLocked(q, false)
	if err != nil {
		return view.Snapshot{}, err
	}
	s.subs[id] = &subscription{target: q, last: snap}
	return snap, nil
}

// UnregisterListener stops deliveries for the target.
func (s *Store) UnregisterListener(q query.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, q.CanonicalID())
	return nil
}

// notifyLocked recomputes every registered target and pushes the ones whose
// snapshot changed, in one batch.
func (s *Store) notifyLocked() {
	if s.notify == nil || len(s.subs) == 0 {
		return
	}

	var changed []view.Snapshot
	for id, sub := range s.subs {
		snap, err := s.snapshotLocked(sub.target, false)
		if err != nil {
			// The target can no longer be evaluated; the failure is
			// terminal for its subscription.
			s.log.Error("failed to compute snapshot", "target", id, "error", err)
			delete(s.subs, id)
			if s.notifyErr != nil {
				s.notifyErr(sub.target, err)
			}
			continue
		}
		if snap.ContentEqual(sub.last) &&
			snap.FromCache == sub.last.FromCache &&
			snap.HasPendingWrites == sub.last.HasPendingWrites {
			continue
		}
		sub.last = snap
		changed = append(changed, snap)
	}

	if len(changed) > 0 {
		s.notify(changed)
	}
}
