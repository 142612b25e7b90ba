package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldb/quill.go/pkg/constants"
)

func TestParseDocumentPath(t *testing.T) {
	key, err := ParseDocumentPath("users/alice")
	require.NoError(t, err)
	assert.Equal(t, "users", key.Collection)
	assert.Equal(t, "alice", key.ID)
	assert.Equal(t, "users/alice", key.Path())

	key, err = ParseDocumentPath("users/alice/posts/p1")
	require.NoError(t, err)
	assert.Equal(t, "users/alice/posts", key.Collection)
	assert.Equal(t, "p1", key.ID)
}

func TestParseDocumentPathRejectsCollections(t *testing.T) {
	for _, path := range []string{"", "users", "users/alice/posts", "users//x"} {
		_, err := ParseDocumentPath(path)
		assert.ErrorIs(t, err, constants.ErrInvalidPath, "path %q", path)
	}
}

func TestParseCollectionPath(t *testing.T) {
	path, err := ParseCollectionPath("users/alice/posts")
	require.NoError(t, err)
	assert.Equal(t, "users/alice/posts", path)

	_, err = ParseCollectionPath("users/alice")
	assert.ErrorIs(t, err, constants.ErrInvalidPath)
}
