// Package models defines the value types shared between the client core and
// its collaborator engines: document keys, documents, field paths and
// mutations.
//
// Document data is carried as deterministic CBOR throughout, using
// [github.com/fxamacker/cbor/v2]. Keeping the encoded form canonical lets the
// core compare two document states with a plain byte comparison, which the
// listener multiplexer relies on to tell content changes from
// metadata-only changes.
package models

import (
	"fmt"
	"strings"

	"github.com/quilldb/quill.go/pkg/constants"
)

// DocumentKey identifies a single document: the slash-separated path of the
// collection that holds it, plus the document ID within that collection.
type DocumentKey struct {
	Collection string
	ID         string
}

// ParseDocumentPath parses a full document path like "users/alice" or
// "users/alice/posts/p1". A document path has an even, non-zero number of
// non-empty segments.
func ParseDocumentPath(path string) (DocumentKey, error) {
	segments, err := splitPath(path)
	if err != nil {
		return DocumentKey{}, err
	}
	if len(segments)%2 != 0 {
		return DocumentKey{}, fmt.Errorf("%w: %q does not point to a document", constants.ErrInvalidPath, path)
	}
	return DocumentKey{
		Collection: strings.Join(segments[:len(segments)-1], "/"),
		ID:         segments[len(segments)-1],
	}, nil
}

// ParseCollectionPath parses a collection path like "users" or
// "users/alice/posts". A collection path has an odd number of non-empty
// segments.
func ParseCollectionPath(path string) (string, error) {
	segments, err := splitPath(path)
	if err != nil {
		return "", err
	}
	if len(segments)%2 == 0 {
		return "", fmt.Errorf("%w: %q does not point to a collection", constants.ErrInvalidPath, path)
	}
	return strings.Join(segments, "/"), nil
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", constants.ErrInvalidPath)
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: %q contains an empty segment", constants.ErrInvalidPath, path)
		}
	}
	return segments, nil
}

// Path returns the full slash-separated document path.
func (k DocumentKey) Path() string {
	return k.Collection + "/" + k.ID
}

func (k DocumentKey) String() string {
	return k.Path()
}

// IsZero reports whether the key is the zero value.
func (k DocumentKey) IsZero() bool {
	return k.Collection == "" && k.ID == ""
}
