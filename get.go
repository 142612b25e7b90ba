package quill

import (
	"context"

	"github.com/quilldb/quill.go/internal/queue"
	"github.com/quilldb/quill.go/pkg/models"
	"github.com/quilldb/quill.go/pkg/query"
	"github.com/quilldb/quill.go/pkg/view"
)

// GetDoc reads one document, reflecting every write this client submitted
// before the call. The context bounds only the caller's wait; the read
// itself still runs in its queue slot.
func (c *Client) GetDoc(ctx context.Context, ref DocumentRef) (DocumentSnapshot, error) {
	return c.getDoc(ctx, ref.key, c.engine.ReadDocument)
}

// GetDocFromCache reads one document from the local cache only, with no
// network access.
func (c *Client) GetDocFromCache(ctx context.Context, ref DocumentRef) (DocumentSnapshot, error) {
	return c.getDoc(ctx, ref.key, c.engine.ReadDocumentFromCache)
}

func (c *Client) getDoc(
	ctx context.Context,
	key models.DocumentKey,
	read func(context.Context, models.DocumentKey) (view.Snapshot, error),
) (DocumentSnapshot, error) {
	if err := c.checkTerminated(); err != nil {
		return DocumentSnapshot{}, err
	}

	d, err := queue.Run(c.queue, func(taskCtx context.Context) (view.Snapshot, error) {
		return read(taskCtx, key)
	})
	if err != nil {
		return DocumentSnapshot{}, err
	}

	snap, err := d.Await(ctx)
	if err != nil {
		return DocumentSnapshot{}, err
	}
	return documentSnapshotFromView(key, snap), nil
}

// GetDocs executes a query. The query's terms are validated before anything
// is enqueued; an invalid query never reaches the cache or the network.
func (c *Client) GetDocs(ctx context.Context, q query.Query) (QuerySnapshot, error) {
	return c.getDocs(ctx, q, c.engine.ExecuteQuery)
}

// GetDocsFromCache executes a query against the local cache only.
func (c *Client) GetDocsFromCache(ctx context.Context, q query.Query) (QuerySnapshot, error) {
	return c.getDocs(ctx, q, c.engine.ExecuteQueryFromCache)
}

func (c *Client) getDocs(
	ctx context.Context,
	q query.Query,
	execute func(context.Context, query.Query) (view.Snapshot, error),
) (QuerySnapshot, error) {
	if err := c.checkTerminated(); err != nil {
		return QuerySnapshot{}, err
	}
	if err := q.Validate(); err != nil {
		return QuerySnapshot{}, err
	}

	d, err := queue.Run(c.queue, func(taskCtx context.Context) (view.Snapshot, error) {
		return execute(taskCtx, q)
	})
	if err != nil {
		return QuerySnapshot{}, err
	}

	snap, err := d.Await(ctx)
	if err != nil {
		return QuerySnapshot{}, err
	}
	return querySnapshotFromView(snap), nil
}
