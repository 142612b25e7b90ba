package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldb/quill.go/pkg/constants"
	"github.com/quilldb/quill.go/pkg/models"
)

func doc(t *testing.T, path string, fields map[string]any) models.Document {
	t.Helper()
	key, err := models.ParseDocumentPath(path)
	require.NoError(t, err)
	data, err := models.EncodeFields(fields)
	require.NoError(t, err)
	return models.Document{Key: key, Data: data}
}

func TestValidateLimitToLastRequiresOrder(t *testing.T) {
	q := ForCollection("users").WithLimitToLast(5)
	assert.ErrorIs(t, q.Validate(), constants.ErrMissingOrder)

	q = ForCollection("users").OrderBy("age", Descending).WithLimitToLast(5)
	assert.NoError(t, q.Validate())
}

func TestCanonicalIDDedup(t *testing.T) {
	a := ForCollection("users").Where("age", OpGreater, 21).OrderBy("age", Ascending).WithLimit(10)
	b := ForCollection("users").Where("age", OpGreater, 21).OrderBy("age", Ascending).WithLimit(10)
	c := ForCollection("users").Where("age", OpGreater, 22).OrderBy("age", Ascending).WithLimit(10)

	assert.Equal(t, a.CanonicalID(), b.CanonicalID())
	assert.NotEqual(t, a.CanonicalID(), c.CanonicalID())
}

func TestCanonicalIDDistinguishesFilterValueTypes(t *testing.T) {
	qInt := ForCollection("users").Where("age", OpEqual, 30)
	qStr := ForCollection("users").Where("age", OpEqual, "30")

	// The two queries match different documents, so they must not alias to
	// one shared subscription.
	d := doc(t, "users/alice", map[string]any{"age": 30})
	matchesInt, err := qInt.Matches(d)
	require.NoError(t, err)
	assert.True(t, matchesInt)
	matchesStr, err := qStr.Matches(d)
	require.NoError(t, err)
	assert.False(t, matchesStr)

	assert.NotEqual(t, qInt.CanonicalID(), qStr.CanonicalID())
}

func TestBuildersDoNotMutateReceiver(t *testing.T) {
	base := ForCollection("users").Where("age", OpGreater, 21)
	withOrder := base.OrderBy("age", Ascending)
	withMore := base.Where("name", OpEqual, "x")

	assert.Len(t, base.Orders, 0)
	assert.Len(t, base.Filters, 1)
	assert.Len(t, withOrder.Orders, 1)
	assert.Len(t, withMore.Filters, 2)
}

func TestMatchesFilters(t *testing.T) {
	q := ForCollection("users").Where("age", OpGreaterEqual, 18)

	adult := doc(t, "users/alice", map[string]any{"age": 30})
	minor := doc(t, "users/bob", map[string]any{"age": 12})
	missing := doc(t, "users/carol", map[string]any{"name": "carol"})
	elsewhere := doc(t, "rooms/r1", map[string]any{"age": 99})

	for _, tc := range []struct {
		doc  models.Document
		want bool
	}{
		{adult, true},
		{minor, false},
		{missing, false},
		{elsewhere, false},
	} {
		got, err := q.Matches(tc.doc)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "doc %s", tc.doc.Key)
	}
}

func TestMatchesDocumentQuery(t *testing.T) {
	key := models.DocumentKey{Collection: "users", ID: "alice"}
	q := ForDocument(key)

	ok, err := q.Matches(doc(t, "users/alice", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Matches(doc(t, "users/bob", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateOrderAndLimit(t *testing.T) {
	docs := []models.Document{
		doc(t, "users/a", map[string]any{"age": 20}),
		doc(t, "users/b", map[string]any{"age": 40}),
		doc(t, "users/c", map[string]any{"age": 30}),
		doc(t, "users/d", map[string]any{"age": 10}),
	}

	q := ForCollection("users").OrderBy("age", Ascending).WithLimit(2)
	got, err := q.Evaluate(docs)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "users/d", got[0].Key.Path())
	assert.Equal(t, "users/a", got[1].Key.Path())
}

func TestEvaluateLimitToLastKeepsQueryOrder(t *testing.T) {
	docs := []models.Document{
		doc(t, "users/a", map[string]any{"age": 20}),
		doc(t, "users/b", map[string]any{"age": 40}),
		doc(t, "users/c", map[string]any{"age": 30}),
	}

	q := ForCollection("users").OrderBy("age", Ascending).WithLimitToLast(2)
	got, err := q.Evaluate(docs)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Last two of the ascending ordering, still ascending.
	assert.Equal(t, "users/c", got[0].Key.Path())
	assert.Equal(t, "users/b", got[1].Key.Path())
}

func TestEvaluateDescending(t *testing.T) {
	docs := []models.Document{
		doc(t, "users/a", map[string]any{"age": 20}),
		doc(t, "users/b", map[string]any{"age": 40}),
	}

	q := ForCollection("users").OrderBy("age", Descending)
	got, err := q.Evaluate(docs)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "users/b", got[0].Key.Path())
}

func TestCompareValuesMixedNumericWidths(t *testing.T) {
	cmp, ok := CompareValues(uint64(3), int64(4))
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = CompareValues(float64(3), uint64(3))
	require.True(t, ok)
	assert.Equal(t, 0, cmp)
}

func TestCompareValuesIncomparable(t *testing.T) {
	_, ok := CompareValues(map[string]any{}, 1)
	assert.False(t, ok)
}
