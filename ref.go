package quill

import (
	"github.com/quilldb/quill.go/internal/rand"
	"github.com/quilldb/quill.go/pkg/models"
	"github.com/quilldb/quill.go/pkg/query"
)

// CollectionRef points at a collection of a client.
type CollectionRef struct {
	c    *Client
	path string
}

// Collection resolves a collection path like "users" or
// "users/alice/posts".
func (c *Client) Collection(path string) (CollectionRef, error) {
	p, err := models.ParseCollectionPath(path)
	if err != nil {
		return CollectionRef{}, err
	}
	return CollectionRef{c: c, path: p}, nil
}

// Path returns the slash-separated collection path.
func (r CollectionRef) Path() string {
	return r.path
}

// Doc returns a reference to the document with the given ID.
func (r CollectionRef) Doc(id string) DocumentRef {
	return DocumentRef{c: r.c, key: models.DocumentKey{Collection: r.path, ID: id}}
}

// NewDoc returns a reference with a fresh, collision-free document ID. The
// document itself does not exist until it is written.
func (r CollectionRef) NewDoc() DocumentRef {
	return r.Doc(rand.DocumentID())
}

// Query returns a query over all documents of the collection, ready for
// filter, order and limit terms.
func (r CollectionRef) Query() query.Query {
	return query.ForCollection(r.path)
}

// DocumentRef points at a single document of a client.
type DocumentRef struct {
	c   *Client
	key models.DocumentKey
}

// Doc resolves a document path like "users/alice".
func (c *Client) Doc(path string) (DocumentRef, error) {
	key, err := models.ParseDocumentPath(path)
	if err != nil {
		return DocumentRef{}, err
	}
	return DocumentRef{c: c, key: key}, nil
}

// Key returns the document's key.
func (r DocumentRef) Key() models.DocumentKey {
	return r.key
}

// ID returns the document ID within its collection.
func (r DocumentRef) ID() string {
	return r.key.ID
}

// Path returns the full document path.
func (r DocumentRef) Path() string {
	return r.key.Path()
}
