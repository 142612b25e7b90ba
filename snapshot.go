package quill

import (
	"fmt"

	"github.com/quilldb/quill.go/pkg/constants"
	"github.com/quilldb/quill.go/pkg/models"
	"github.com/quilldb/quill.go/pkg/query"
	"github.com/quilldb/quill.go/pkg/view"
)

// SnapshotMetadata records where a snapshot's data came from.
type SnapshotMetadata struct {
	// FromCache is true when the data has not been confirmed against the
	// backend.
	FromCache bool
	// HasPendingWrites is true when the snapshot reflects writes of this
	// client that the backend has not yet acknowledged.
	HasPendingWrites bool
}

// DocumentSnapshot is the point-in-time state of one document, existing or
// not.
type DocumentSnapshot struct {
	Key      models.DocumentKey
	Metadata SnapshotMetadata

	doc    models.Document
	exists bool
}

// Exists reports whether the document was present.
func (s DocumentSnapshot) Exists() bool {
	return s.exists
}

// DataAs unmarshals the document's fields into dst. It fails with
// constants.ErrDocumentAbsent when the document does not exist.
func (s DocumentSnapshot) DataAs(dst any) error {
	if !s.exists {
		return fmt.Errorf("%w: %s", constants.ErrDocumentAbsent, s.Key)
	}
	return s.doc.DataAs(dst)
}

// Data decodes the document's field map. It fails with
// constants.ErrDocumentAbsent when the document does not exist.
func (s DocumentSnapshot) Data() (map[string]any, error) {
	if !s.exists {
		return nil, fmt.Errorf("%w: %s", constants.ErrDocumentAbsent, s.Key)
	}
	return s.doc.Fields()
}

// QuerySnapshot is the point-in-time result set of one query, in query
// order.
type QuerySnapshot struct {
	Query    query.Query
	Docs     []DocumentSnapshot
	Metadata SnapshotMetadata
}

// Size returns the number of documents in the result set.
func (s QuerySnapshot) Size() int {
	return len(s.Docs)
}

// documentSnapshotFromView narrows a view snapshot to the single-document
// shape. A document-keyed view holding more than one document, or a
// document under a different key, is a collaborator contract breach, not a
// user error, and fails hard.
func documentSnapshotFromView(key models.DocumentKey, snap view.Snapshot) DocumentSnapshot {
	if snap.Len() > 1 {
		panic(fmt.Sprintf("view snapshot for document %s contains %d documents", key, snap.Len()))
	}

	ds := DocumentSnapshot{
		Key: key,
		Metadata: SnapshotMetadata{
			FromCache:        snap.FromCache,
			HasPendingWrites: snap.HasPendingWrites,
		},
	}
	if snap.Len() == 1 {
		doc := snap.Docs[0]
		if doc.Key != key {
			panic(fmt.Sprintf("view snapshot for document %s contains document %s", key, doc.Key))
		}
		ds.doc = doc
		ds.exists = true
	}
	return ds
}

// querySnapshotFromView widens a view snapshot to the multi-document shape,
// preserving the ordering the result set already carries.
func querySnapshotFromView(snap view.Snapshot) QuerySnapshot {
	meta := SnapshotMetadata{
		FromCache:        snap.FromCache,
		HasPendingWrites: snap.HasPendingWrites,
	}

	docs := make([]DocumentSnapshot, 0, snap.Len())
	for _, doc := range snap.Docs {
		docs = append(docs, DocumentSnapshot{
			Key:      doc.Key,
			Metadata: meta,
			doc:      doc,
			exists:   true,
		})
	}

	return QuerySnapshot{Query: snap.Query, Docs: docs, Metadata: meta}
}
