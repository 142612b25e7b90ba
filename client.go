package quill

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/quilldb/quill.go/internal/event"
	"github.com/quilldb/quill.go/internal/memstore"
	"github.com/quilldb/quill.go/internal/queue"
	"github.com/quilldb/quill.go/pkg/constants"
	"github.com/quilldb/quill.go/pkg/logger"
	"github.com/quilldb/quill.go/pkg/models"
	"github.com/quilldb/quill.go/pkg/query"
	"github.com/quilldb/quill.go/pkg/view"
)

// Engine is the cache/sync collaborator: it owns document storage, query
// execution and the optimistic mutation overlay. The client never inspects
// its internals; it only sequences calls to it through the operation queue.
type Engine interface {
	// ReadDocument returns the current view of one key, the client's own
	// pending writes included.
	ReadDocument(ctx context.Context, key models.DocumentKey) (view.Snapshot, error)
	// ReadDocumentFromCache is ReadDocument without backend confirmation.
	ReadDocumentFromCache(ctx context.Context, key models.DocumentKey) (view.Snapshot, error)
	// ExecuteQuery evaluates a query against the current view.
	ExecuteQuery(ctx context.Context, q query.Query) (view.Snapshot, error)
	// ExecuteQueryFromCache evaluates a query cache-only, no network.
	ExecuteQueryFromCache(ctx context.Context, q query.Query) (view.Snapshot, error)

	// ApplyMutations applies one write batch optimistically.
	ApplyMutations(ctx context.Context, batchID int64, muts []models.Mutation) error
	// AcknowledgeBatch marks a batch committed by the backend.
	AcknowledgeBatch(ctx context.Context, batchID int64) error
	// RejectBatch removes a batch whose commit failed.
	RejectBatch(ctx context.Context, batchID int64) error

	// RegisterListener starts snapshot deliveries for a target and returns
	// its current snapshot; UnregisterListener stops them.
	RegisterListener(q query.Query) (view.Snapshot, error)
	UnregisterListener(q query.Query) error
	// SetNotifier installs the sink that receives one batch of snapshots
	// per engine state change.
	SetNotifier(fn func([]view.Snapshot))
	// SetErrorNotifier installs the sink for terminal subscription
	// failures: a target the engine can no longer serve is reported once,
	// after which it delivers no more snapshots.
	SetErrorNotifier(fn func(q query.Query, err error))
}

// CommitChannel carries write batches to the backend. CommitWrite blocks for
// the full round-trip and returns once the backend acknowledged or rejected
// the batch; this is the one suspension point in the client that spans the
// network.
type CommitChannel interface {
	CommitWrite(ctx context.Context, batchID int64, muts []models.Mutation) error
}

// Config carries the client's collaborators. Zero values select the
// embedded defaults.
type Config struct {
	// Engine is the cache/sync engine. Defaults to the embedded in-memory
	// engine.
	Engine Engine

	// Commit is the commit channel. Defaults to the Engine when it
	// implements CommitChannel, as the embedded engine does.
	Commit CommitChannel

	// Logger receives the client's diagnostics. Defaults to a JSON slog
	// logger on stdout.
	Logger logger.Logger
}

type commitJob struct {
	batchID int64
	muts    []models.Mutation
	result  *queue.Deferred[struct{}]
}

// Client is one instance of the consistency layer. All of its collaborators
// are owned by it exclusively and accessed only from within its queue;
// sharing them across clients is not supported.
type Client struct {
	log      logger.Logger
	engine   Engine
	commit   CommitChannel
	queue    *queue.Queue
	registry *event.Registry

	commits     chan commitJob
	committerWG sync.WaitGroup
	closeOnce   sync.Once

	terminated atomic.Bool
	nextBatch  atomic.Int64
}

// New builds a client. See Config for the defaults; New(Config{}) gives a
// fully functional embedded client.
func New(cfg Config) (*Client, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	engine := cfg.Engine
	if engine == nil {
		engine = memstore.New(log)
	}

	commit := cfg.Commit
	if commit == nil {
		embedded, ok := engine.(CommitChannel)
		if !ok {
			return nil, constants.ErrNoCommitChannel
		}
		commit = embedded
	}

	c := &Client{
		log:     log,
		engine:  engine,
		commit:  commit,
		queue:   queue.New(log),
		commits: make(chan commitJob, 128),
	}
	c.registry = event.NewRegistry(engineSource{engine: engine}, log)

	// Engine notifications can originate on any goroutine; they join the
	// lane like every other registry mutation.
	engine.SetNotifier(func(snaps []view.Snapshot) {
		err := c.queue.Enqueue(func(context.Context) error {
			c.registry.OnSnapshots(snaps)
			return nil
		})
		if err != nil {
			c.log.Debug("dropping snapshot batch after termination")
		}
	})
	engine.SetErrorNotifier(func(q query.Query, failure error) {
		err := c.queue.Enqueue(func(context.Context) error {
			c.registry.OnError(q, failure)
			return nil
		})
		if err != nil {
			c.log.Debug("dropping subscription failure after termination", "error", failure)
		}
	})

	c.committerWG.Add(1)
	go c.runCommitter()

	return c, nil
}

// checkTerminated is the fail-fast gate every public entry point passes
// before any validation or enqueue.
func (c *Client) checkTerminated() error {
	if c.terminated.Load() {
		return constants.ErrTerminated
	}
	return nil
}

// Close terminates the client: new operations fail fast, already-accepted
// queue tasks drain, in-flight commits settle, and remaining listeners
// complete. The context bounds the drain wait.
func (c *Client) Close(ctx context.Context) error {
	c.terminated.Store(true)

	if err := c.queue.Close(ctx); err != nil {
		return err
	}

	c.closeOnce.Do(func() {
		close(c.commits)
	})
	c.committerWG.Wait()

	// The queue is drained and refuses new tasks, so registry state can be
	// touched directly.
	c.registry.Close()
	return nil
}

// runCommitter forwards write batches to the commit channel one at a time,
// preserving submission order end to end, and reports the outcome back
// through the queue.
func (c *Client) runCommitter() {
	defer c.committerWG.Done()

	for job := range c.commits {
		// Deliberately context.Background(): a write runs to completion
		// once accepted, even if its caller stopped waiting.
		err := c.commit.CommitWrite(context.Background(), job.batchID, job.muts)
		c.settleCommit(job, err)
	}
}

func (c *Client) settleCommit(job commitJob, commitErr error) {
	task := func(ctx context.Context) error {
		if commitErr != nil {
			if rbErr := c.engine.RejectBatch(ctx, job.batchID); rbErr != nil {
				c.log.Error("failed to roll back rejected batch", "batch_id", job.batchID, "error", rbErr)
			}
			job.result.Reject(commitErr)
			return commitErr
		}
		if err := c.engine.AcknowledgeBatch(ctx, job.batchID); err != nil {
			c.log.Error("failed to acknowledge batch", "batch_id", job.batchID, "error", err)
		}
		job.result.Resolve(struct{}{})
		return nil
	}

	// After termination the queue refuses the task; the drain guarantee
	// still holds, so settle inline instead of dropping the result.
	if err := c.queue.Enqueue(task); err != nil {
		_ = task(context.Background())
	}
}

// engineSource adapts the engine's listener transport to the registry.
type engineSource struct {
	engine Engine
}

func (s engineSource) Listen(q query.Query) (view.Snapshot, error) {
	return s.engine.RegisterListener(q)
}

func (s engineSource) Unlisten(q query.Query) error {
	return s.engine.UnregisterListener(q)
}
