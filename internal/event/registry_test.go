package event

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldb/quill.go/pkg/logger"
	"github.com/quilldb/quill.go/pkg/models"
	"github.com/quilldb/quill.go/pkg/query"
	"github.com/quilldb/quill.go/pkg/view"
)

type fakeSource struct {
	listens   []string
	unlistens []string
	initial   map[string]view.Snapshot
	listenErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{initial: make(map[string]view.Snapshot)}
}

func (f *fakeSource) Listen(q query.Query) (view.Snapshot, error) {
	if f.listenErr != nil {
		return view.Snapshot{}, f.listenErr
	}
	f.listens = append(f.listens, q.CanonicalID())
	snap, ok := f.initial[q.CanonicalID()]
	if !ok {
		snap = view.Snapshot{Query: q, FromCache: true}
	}
	return snap, nil
}

func (f *fakeSource) Unlisten(q query.Query) error {
	f.unlistens = append(f.unlistens, q.CanonicalID())
	return nil
}

func testLogger() logger.Logger {
	return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testDoc(t *testing.T, path string, fields map[string]any) models.Document {
	t.Helper()
	key, err := models.ParseDocumentPath(path)
	require.NoError(t, err)
	data, err := models.EncodeFields(fields)
	require.NoError(t, err)
	return models.Document{Key: key, Data: data}
}

func snapshotOf(q query.Query, fromCache, pending bool, docs ...models.Document) view.Snapshot {
	return view.Snapshot{Query: q, Docs: docs, FromCache: fromCache, HasPendingWrites: pending}
}

func TestIdenticalTargetsShareOneSubscription(t *testing.T) {
	src := newFakeSource()
	r := NewRegistry(src, testLogger())

	q1 := query.ForCollection("users").Where("age", query.OpGreater, 21)
	q2 := query.ForCollection("users").Where("age", query.OpGreater, 21)

	var got1, got2 int
	require.NoError(t, r.Listen(NewListener(q1, Options{}, Handler{OnNext: func(view.Snapshot) { got1++ }})))
	require.NoError(t, r.Listen(NewListener(q2, Options{}, Handler{OnNext: func(view.Snapshot) { got2++ }})))

	// One upstream subscription, but the second listener was caught up with
	// the current snapshot.
	assert.Len(t, src.listens, 1)
	assert.Equal(t, 1, got1)
	assert.Equal(t, 1, got2)
}

func TestRefcountedUnlisten(t *testing.T) {
	src := newFakeSource()
	r := NewRegistry(src, testLogger())

	q := query.ForCollection("users")
	l1 := NewListener(q, Options{}, Handler{OnNext: func(view.Snapshot) {}})
	l2 := NewListener(q, Options{}, Handler{OnNext: func(view.Snapshot) {}})
	require.NoError(t, r.Listen(l1))
	require.NoError(t, r.Listen(l2))

	l1.Mute()
	r.Unlisten(l1)
	assert.Empty(t, src.unlistens, "subscription should outlive the first unsubscribe")

	l2.Mute()
	r.Unlisten(l2)
	assert.Equal(t, []string{q.CanonicalID()}, src.unlistens)
}

func TestDeliveryOrderPerListener(t *testing.T) {
	src := newFakeSource()
	r := NewRegistry(src, testLogger())

	q := query.ForCollection("users")
	var seen []int
	require.NoError(t, r.Listen(NewListener(q, Options{}, Handler{OnNext: func(s view.Snapshot) {
		seen = append(seen, s.Len())
	}})))

	d1 := testDoc(t, "users/a", map[string]any{"n": 1})
	d2 := testDoc(t, "users/b", map[string]any{"n": 2})
	r.OnSnapshots([]view.Snapshot{snapshotOf(q, false, false, d1)})
	r.OnSnapshots([]view.Snapshot{snapshotOf(q, false, false, d1, d2)})

	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestMetadataOnlyDeliveriesSuppressed(t *testing.T) {
	src := newFakeSource()
	r := NewRegistry(src, testLogger())

	q := query.ForCollection("users")
	doc := testDoc(t, "users/a", map[string]any{"n": 1})
	src.initial[q.CanonicalID()] = snapshotOf(q, true, true, doc)

	var plain, withMeta int
	require.NoError(t, r.Listen(NewListener(q, Options{}, Handler{
		OnNext: func(view.Snapshot) { plain++ },
	})))
	require.NoError(t, r.Listen(NewListener(q, Options{IncludeMetadataChanges: true}, Handler{
		OnNext: func(view.Snapshot) { withMeta++ },
	})))

	// Same content, pending-writes flag cleared: metadata-only change.
	r.OnSnapshots([]view.Snapshot{snapshotOf(q, true, false, doc)})
	assert.Equal(t, 1, plain, "metadata-only delivery must be suppressed")
	assert.Equal(t, 2, withMeta)

	// Identical snapshot again: no change at all, nobody hears it.
	r.OnSnapshots([]view.Snapshot{snapshotOf(q, true, false, doc)})
	assert.Equal(t, 1, plain)
	assert.Equal(t, 2, withMeta)

	// Content change reaches both.
	changed := testDoc(t, "users/a", map[string]any{"n": 2})
	r.OnSnapshots([]view.Snapshot{snapshotOf(q, true, false, changed)})
	assert.Equal(t, 2, plain)
	assert.Equal(t, 3, withMeta)
}

func TestMuteStopsInFlightDelivery(t *testing.T) {
	src := newFakeSource()
	r := NewRegistry(src, testLogger())

	q := query.ForCollection("users")
	var calls int
	l := NewListener(q, Options{}, Handler{OnNext: func(view.Snapshot) { calls++ }})
	require.NoError(t, r.Listen(l))
	require.Equal(t, 1, calls)

	// Mute before the already-scheduled delivery runs: nothing more fires,
	// even though deregistration has not happened yet.
	l.Mute()
	r.OnSnapshots([]view.Snapshot{snapshotOf(q, false, false, testDoc(t, "users/a", map[string]any{"n": 1}))})
	assert.Equal(t, 1, calls)
}

func TestErrorIsTerminal(t *testing.T) {
	src := newFakeSource()
	r := NewRegistry(src, testLogger())

	q := query.ForCollection("users")
	var nexts, errs int
	require.NoError(t, r.Listen(NewListener(q, Options{}, Handler{
		OnNext:  func(view.Snapshot) { nexts++ },
		OnError: func(error) { errs++ },
	})))

	r.OnError(q, errors.New("backend rejected listen"))
	assert.Equal(t, 1, errs)

	// The listener is implicitly removed; further snapshots are dropped.
	r.OnSnapshots([]view.Snapshot{snapshotOf(q, false, false)})
	assert.Equal(t, 1, nexts)
}

func TestSyncListenerFiresPerBatch(t *testing.T) {
	src := newFakeSource()
	r := NewRegistry(src, testLogger())

	q := query.ForCollection("users")
	require.NoError(t, r.Listen(NewListener(q, Options{}, Handler{OnNext: func(view.Snapshot) {}})))

	var syncs int
	sl := NewSyncListener(func() { syncs++ })
	r.ListenSync(sl)

	r.OnSnapshots([]view.Snapshot{snapshotOf(q, false, false)})
	r.OnSnapshots([]view.Snapshot{snapshotOf(q, false, false, testDoc(t, "users/a", map[string]any{"n": 1}))})
	assert.Equal(t, 2, syncs)

	sl.Mute()
	r.UnlistenSync(sl)
	r.OnSnapshots([]view.Snapshot{snapshotOf(q, false, false)})
	assert.Equal(t, 2, syncs)
}

func TestListenSourceFailure(t *testing.T) {
	src := newFakeSource()
	src.listenErr = errors.New("no transport")
	r := NewRegistry(src, testLogger())

	err := r.Listen(NewListener(query.ForCollection("users"), Options{}, Handler{OnNext: func(view.Snapshot) {}}))
	assert.Error(t, err)
}

func TestCloseCompletesListeners(t *testing.T) {
	src := newFakeSource()
	r := NewRegistry(src, testLogger())

	q := query.ForCollection("users")
	var completed bool
	require.NoError(t, r.Listen(NewListener(q, Options{}, Handler{
		OnNext:     func(view.Snapshot) {},
		OnComplete: func() { completed = true },
	})))

	r.Close()
	assert.True(t, completed)
	assert.Equal(t, []string{q.CanonicalID()}, src.unlistens)
}
