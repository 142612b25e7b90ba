package quill

import (
	"context"
	"fmt"
	"sort"

	"github.com/quilldb/quill.go/internal/queue"
	"github.com/quilldb/quill.go/pkg/constants"
	"github.com/quilldb/quill.go/pkg/models"
)

// SetOption adjusts how SetDoc writes its data.
type SetOption func(*setConfig)

type setConfig struct {
	merge bool
}

// Merge makes SetDoc update the data's fields without replacing the rest of
// the document.
func Merge() SetOption {
	return func(cfg *setConfig) {
		cfg.merge = true
	}
}

// SetDoc writes a whole document. With Merge the given fields are folded
// into the existing document instead of replacing it. The call returns once
// the backend acknowledged the commit; the write is visible to this
// client's reads as soon as the call is accepted.
func (c *Client) SetDoc(ctx context.Context, ref DocumentRef, data any, opts ...SetOption) error {
	if err := c.checkTerminated(); err != nil {
		return err
	}

	var cfg setConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	encoded, err := models.EncodeFields(data)
	if err != nil {
		return err
	}

	var mut models.Mutation
	if cfg.merge {
		updates, err := topLevelUpdates(encoded)
		if err != nil {
			return err
		}
		mut = models.NewPatch(ref.key, updates, models.PreconditionNone)
	} else {
		mut = models.NewSet(ref.key, encoded, models.PreconditionNone)
	}

	return c.executeWrite(ctx, []models.Mutation{mut})
}

// topLevelUpdates turns an encoded document into one field update per
// top-level field. Maps carry no caller order, so the updates are keyed in
// sorted order, which is deterministic and order-independent for disjoint
// top-level fields.
func topLevelUpdates(encoded []byte) ([]models.FieldUpdate, error) {
	doc := models.Document{Data: encoded}
	fields, err := doc.Fields()
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(fields))
	for path := range fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	updates := make([]models.FieldUpdate, 0, len(paths))
	for _, path := range paths {
		value, err := models.EncodeValue(fields[path])
		if err != nil {
			return nil, err
		}
		updates = append(updates, models.FieldUpdate{Path: path, Value: value})
	}
	return updates, nil
}

// UpdateDoc updates individual fields of an existing document. The varargs
// are alternating field-path/value pairs, like
//
//	client.UpdateDoc(ctx, ref, "a.b", 1, "c", 2)
//
// which produces exactly two field mutations on "a.b" and "c". Zero pairs,
// an odd trailing argument or a non-string field path is rejected before
// anything is enqueued. The document must exist.
func (c *Client) UpdateDoc(ctx context.Context, ref DocumentRef, fieldsAndValues ...any) error {
	if err := c.checkTerminated(); err != nil {
		return err
	}

	updates, err := pairUpdates(fieldsAndValues)
	if err != nil {
		return err
	}

	mut := models.NewPatch(ref.key, updates, models.PreconditionMustExist)
	return c.executeWrite(ctx, []models.Mutation{mut})
}

func pairUpdates(fieldsAndValues []any) ([]models.FieldUpdate, error) {
	if len(fieldsAndValues) == 0 {
		return nil, fmt.Errorf("%w: no field/value pairs", constants.ErrInvalidUpdate)
	}
	if len(fieldsAndValues)%2 != 0 {
		return nil, fmt.Errorf("%w: dangling field %v", constants.ErrInvalidUpdate, fieldsAndValues[len(fieldsAndValues)-1])
	}

	updates := make([]models.FieldUpdate, 0, len(fieldsAndValues)/2)
	for i := 0; i < len(fieldsAndValues); i += 2 {
		path, ok := fieldsAndValues[i].(string)
		if !ok {
			return nil, fmt.Errorf("%w: field path %v is not a string", constants.ErrInvalidUpdate, fieldsAndValues[i])
		}
		if _, err := models.SplitFieldPath(path); err != nil {
			return nil, err
		}
		value, err := models.EncodeValue(fieldsAndValues[i+1])
		if err != nil {
			return nil, err
		}
		updates = append(updates, models.FieldUpdate{Path: path, Value: value})
	}
	return updates, nil
}

// DeleteDoc deletes a document. Deleting an absent document is not an
// error. Once the call returns, cache reads report the document absent.
func (c *Client) DeleteDoc(ctx context.Context, ref DocumentRef) error {
	if err := c.checkTerminated(); err != nil {
		return err
	}
	return c.executeWrite(ctx, []models.Mutation{models.NewDelete(ref.key)})
}

// AddDoc creates a document under a fresh collision-free ID and returns its
// reference. The reference is surfaced only after the backend confirmed the
// document; if the write fails, no reference is returned.
func (c *Client) AddDoc(ctx context.Context, coll CollectionRef, data any) (DocumentRef, error) {
	if err := c.checkTerminated(); err != nil {
		return DocumentRef{}, err
	}

	encoded, err := models.EncodeFields(data)
	if err != nil {
		return DocumentRef{}, err
	}

	ref := coll.NewDoc()
	mut := models.NewSet(ref.key, encoded, models.PreconditionMustNotExist)
	if err := c.executeWrite(ctx, []models.Mutation{mut}); err != nil {
		return DocumentRef{}, err
	}
	return ref, nil
}

// executeWrite is the single funnel for all writes: it enqueues the
// optimistic local apply, hands the batch to the committer in submission
// order, and waits for the commit acknowledgment. The context bounds only
// the wait; an accepted write runs to completion either way.
func (c *Client) executeWrite(ctx context.Context, muts []models.Mutation) error {
	batchID := c.nextBatch.Add(1)
	result := queue.NewDeferred[struct{}]()

	err := c.queue.Enqueue(func(taskCtx context.Context) error {
		if err := c.engine.ApplyMutations(taskCtx, batchID, muts); err != nil {
			result.Reject(err)
			return err
		}
		c.commits <- commitJob{batchID: batchID, muts: muts, result: result}
		return nil
	})
	if err != nil {
		return err
	}

	_, err = result.Await(ctx)
	return err
}
