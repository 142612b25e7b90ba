package quill_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldb/quill.go/pkg/constants"
	"github.com/quilldb/quill.go/pkg/query"
)

func TestGetDocAbsent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	coll, err := c.Collection("users")
	require.NoError(t, err)

	snap, err := c.GetDoc(ctx, coll.Doc("nobody"))
	require.NoError(t, err)
	assert.False(t, snap.Exists())
	assert.ErrorIs(t, snap.DataAs(&struct{}{}), constants.ErrDocumentAbsent)
}

func TestGetDocsFilterOrderLimit(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	coll, err := c.Collection("users")
	require.NoError(t, err)
	seed := map[string]int{"alice": 30, "bob": 25, "carol": 35, "dave": 17}
	for id, age := range seed {
		require.NoError(t, c.SetDoc(ctx, coll.Doc(id), map[string]any{"name": id, "age": age}))
	}

	q := coll.Query().
		Where("age", query.OpGreaterEqual, 18).
		OrderBy("age", query.Descending).
		WithLimit(2)

	snap, err := c.GetDocs(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Size())

	var first, second user
	require.NoError(t, snap.Docs[0].DataAs(&first))
	require.NoError(t, snap.Docs[1].DataAs(&second))
	assert.Equal(t, "carol", first.Name)
	assert.Equal(t, "alice", second.Name)
}

func TestGetDocsLimitToLast(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	coll, err := c.Collection("users")
	require.NoError(t, err)
	for id, age := range map[string]int{"alice": 30, "bob": 25, "carol": 35} {
		require.NoError(t, c.SetDoc(ctx, coll.Doc(id), map[string]any{"name": id, "age": age}))
	}

	q := coll.Query().OrderBy("age", query.Ascending).WithLimitToLast(2)
	snap, err := c.GetDocs(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Size())

	// The last two in ascending order, still delivered ascending.
	var first, second user
	require.NoError(t, snap.Docs[0].DataAs(&first))
	require.NoError(t, snap.Docs[1].DataAs(&second))
	assert.Equal(t, "alice", first.Name)
	assert.Equal(t, "carol", second.Name)
}

func TestGetDocsLimitToLastRequiresOrder(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	coll, err := c.Collection("users")
	require.NoError(t, err)

	_, err = c.GetDocs(ctx, coll.Query().WithLimitToLast(2))
	assert.ErrorIs(t, err, constants.ErrMissingOrder)
	_, err = c.GetDocsFromCache(ctx, coll.Query().WithLimitToLast(2))
	assert.ErrorIs(t, err, constants.ErrMissingOrder)
}

func TestGetDocsFromCacheMetadata(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	coll, err := c.Collection("users")
	require.NoError(t, err)
	require.NoError(t, c.SetDoc(ctx, coll.Doc("alice"), map[string]any{"name": "Alice"}))

	snap, err := c.GetDocsFromCache(ctx, coll.Query())
	require.NoError(t, err)
	require.Equal(t, 1, snap.Size())
	assert.True(t, snap.Metadata.FromCache)
	assert.True(t, snap.Docs[0].Metadata.FromCache)

	confirmed, err := c.GetDocs(ctx, coll.Query())
	require.NoError(t, err)
	assert.False(t, confirmed.Metadata.FromCache)
}

func TestRefPaths(t *testing.T) {
	c := newTestClient(t)

	coll, err := c.Collection("users")
	require.NoError(t, err)
	assert.Equal(t, "users", coll.Path())

	ref := coll.Doc("alice")
	assert.Equal(t, "alice", ref.ID())
	assert.Equal(t, "users/alice", ref.Path())

	byPath, err := c.Doc("users/alice")
	require.NoError(t, err)
	assert.Equal(t, ref.Key(), byPath.Key())

	_, err = c.Collection("users/alice")
	assert.ErrorIs(t, err, constants.ErrInvalidPath)
	_, err = c.Doc("users")
	assert.ErrorIs(t, err, constants.ErrInvalidPath)
}
