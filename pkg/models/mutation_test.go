package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldb/quill.go/pkg/constants"
)

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := EncodeFields(v)
	require.NoError(t, err)
	return data
}

func TestEncodeFieldsRejectsNonMaps(t *testing.T) {
	_, err := EncodeFields("just a string")
	assert.ErrorIs(t, err, constants.ErrInvalidValue)

	_, err = EncodeFields([]int{1, 2, 3})
	assert.ErrorIs(t, err, constants.ErrInvalidValue)
}

func TestEncodeFieldsDeterministic(t *testing.T) {
	a := mustEncode(t, map[string]any{"b": 1, "a": 2})
	b := mustEncode(t, map[string]any{"a": 2, "b": 1})
	assert.Equal(t, a, b)
}

func TestSetMutationApply(t *testing.T) {
	key := DocumentKey{Collection: "users", ID: "alice"}
	data := mustEncode(t, map[string]any{"name": "alice"})

	m := NewSet(key, data, PreconditionNone)
	got, err := m.ApplyTo(nil)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDeleteMutationApply(t *testing.T) {
	key := DocumentKey{Collection: "users", ID: "alice"}
	existing := mustEncode(t, map[string]any{"name": "alice"})

	m := NewDelete(key)
	got, err := m.ApplyTo(existing)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPatchMutationApply(t *testing.T) {
	key := DocumentKey{Collection: "users", ID: "alice"}
	existing := mustEncode(t, map[string]any{
		"a": map[string]any{"b": "old"},
		"c": "keep",
	})

	v1, err := EncodeValue(1)
	require.NoError(t, err)
	v2, err := EncodeValue(2)
	require.NoError(t, err)

	m := NewPatch(key, []FieldUpdate{
		{Path: "a.b", Value: v1},
		{Path: "d", Value: v2},
	}, PreconditionMustExist)

	got, err := m.ApplyTo(existing)
	require.NoError(t, err)

	fields, err := Document{Key: key, Data: got}.Fields()
	require.NoError(t, err)

	nested, ok := LookupField(fields, "a.b")
	require.True(t, ok)
	assert.EqualValues(t, 1, nested)

	kept, ok := LookupField(fields, "c")
	require.True(t, ok)
	assert.Equal(t, "keep", kept)

	added, ok := LookupField(fields, "d")
	require.True(t, ok)
	assert.EqualValues(t, 2, added)
}

func TestPatchCreatesIntermediateMaps(t *testing.T) {
	key := DocumentKey{Collection: "users", ID: "alice"}

	v, err := EncodeValue("deep")
	require.NoError(t, err)

	m := NewPatch(key, []FieldUpdate{{Path: "x.y.z", Value: v}}, PreconditionNone)
	got, err := m.ApplyTo(nil)
	require.NoError(t, err)

	fields, err := Document{Key: key, Data: got}.Fields()
	require.NoError(t, err)

	value, ok := LookupField(fields, "x.y.z")
	require.True(t, ok)
	assert.Equal(t, "deep", value)
}

func TestPreconditionCheck(t *testing.T) {
	assert.True(t, PreconditionNone.Check(true))
	assert.True(t, PreconditionNone.Check(false))
	assert.True(t, PreconditionMustExist.Check(true))
	assert.False(t, PreconditionMustExist.Check(false))
	assert.True(t, PreconditionMustNotExist.Check(false))
	assert.False(t, PreconditionMustNotExist.Check(true))
}

func TestDocumentDataAs(t *testing.T) {
	type user struct {
		Name string `cbor:"name"`
		Age  int    `cbor:"age"`
	}

	doc := Document{
		Key:  DocumentKey{Collection: "users", ID: "alice"},
		Data: mustEncode(t, user{Name: "alice", Age: 30}),
	}

	var got user
	require.NoError(t, doc.DataAs(&got))
	assert.Equal(t, user{Name: "alice", Age: 30}, got)
}
