// Package view defines the immutable snapshot values the cache/sync engine
// hands to the client core.
package view

import (
	"github.com/quilldb/quill.go/pkg/models"
	"github.com/quilldb/quill.go/pkg/query"
)

// Snapshot is a point-in-time result set for one query or one document,
// annotated with its provenance. The core consumes snapshots but never
// mutates them.
type Snapshot struct {
	Query query.Query

	// Docs are the result documents in query order.
	Docs []models.Document

	// FromCache is true when the snapshot has not been confirmed against
	// the backend.
	FromCache bool

	// HasPendingWrites is true when at least one document in the result set
	// carries a locally-applied write that the backend has not acknowledged.
	HasPendingWrites bool
}

// Len returns the number of documents in the result set.
func (s Snapshot) Len() int {
	return len(s.Docs)
}

// ContentEqual reports whether two snapshots carry the same documents with
// the same data, ignoring the FromCache and HasPendingWrites flags. A
// delivery whose previous delivery is content-equal differs in metadata
// only.
func (s Snapshot) ContentEqual(other Snapshot) bool {
	if len(s.Docs) != len(other.Docs) {
		return false
	}
	for i := range s.Docs {
		if !s.Docs[i].ContentEqual(other.Docs[i]) {
			return false
		}
	}
	return true
}
