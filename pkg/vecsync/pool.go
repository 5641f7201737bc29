// Package vecsync provides an asynchronous worker pool that mirrors graph
// writes into the vector router.
//
// The pool decouples vector index maintenance from the write hot path so
// graph mutations never wait on the vector backend. The two stores are
// eventually consistent: a mirror job that fails is retried with bounded
// backoff so the embedding index does not permanently diverge from the
// graph record it indexes.
package vecsync

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/embeddings"
	"github.com/anatolykoptev/MemOS/pkg/graph"
	"github.com/anatolykoptev/MemOS/pkg/vecstore"
)

var (
	defaultNumWorkers  uint = 3
	defaultQueueSize   uint = 256
	defaultMaxAttempts uint = 3
	defaultRetryBase        = 100 * time.Millisecond
)

// Mirror is the subset of the vector router the pool writes through.
type Mirror interface {
	Upsert(ctx context.Context, collection string, items []vecstore.Item) error
	Delete(ctx context.Context, collection string, ids []string) error
}

type jobKind int

const (
	jobUpsert jobKind = iota
	jobDelete
)

// job is a unit of mirror work for the worker pool to execute against.
type job struct {
	kind  jobKind
	nodes []*graph.Node
	ids   []string
}

// Config is the configuration options for the mirror pool.
type Config struct {
	// Mirror is the vector router (or a single store facade) jobs are
	// written through.
	Mirror Mirror

	// Collection is the router collection mirrored writes land in.
	Collection string

	// Embedder fills in vectors for nodes that don't carry one. The whole
	// job is embedded in one batch call. Optional; without it, vectorless
	// nodes are skipped with a warning.
	Embedder embeddings.Embedder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// MaxAttempts bounds the retries per job (defaults to 3).
	MaxAttempts uint

	// RetryBase is the first backoff delay; it doubles per attempt
	// (defaults to 100ms).
	RetryBase time.Duration

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool mirrors graph writes into the vector router asynchronously.
type Pool struct {
	config *Config
	queue  chan job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new mirror pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Mirror == nil {
		return nil, fmt.Errorf("mirror is required")
	}
	if c.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if c.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = defaultRetryBase
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		config: c,
		queue:  make(chan job, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// EnqueueUpsert submits nodes for mirroring into the vector collection.
// Returns true if enqueued, false if the queue is full and the job was
// dropped.
func (p *Pool) EnqueueUpsert(nodes ...*graph.Node) bool {
	if len(nodes) == 0 {
		return true
	}

	select {
	case p.queue <- job{kind: jobUpsert, nodes: nodes}:
		p.logger.Debug("mirror upsert queued",
			zap.Int("nodes", len(nodes)),
		)
		return true
	default:
		p.logger.Error("mirror upsert dropped, queue full",
			zap.Int("nodes", len(nodes)),
		)
		return false
	}
}

// EnqueueDelete submits ids for removal from the vector collection.
// Returns true if enqueued, false if the queue is full and the job was
// dropped.
func (p *Pool) EnqueueDelete(ids ...string) bool {
	if len(ids) == 0 {
		return true
	}

	select {
	case p.queue <- job{kind: jobDelete, ids: ids}:
		p.logger.Debug("mirror delete queued",
			zap.Int("ids", len(ids)),
		)
		return true
	default:
		p.logger.Error("mirror delete dropped, queue full",
			zap.Int("ids", len(ids)),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the write surfaces have
// stopped enqueueing.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("mirror worker started", zap.Uint("worker_id", id))

	for j := range p.queue {
		p.process(j)
	}

	p.logger.Debug("mirror worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) process(j job) {
	ctx := context.Background()

	switch j.kind {
	case jobUpsert:
		items, err := p.buildItems(ctx, j.nodes)
		if err != nil {
			p.logger.Error("mirror upsert failed to build items", zap.Error(err))
			return
		}
		if len(items) == 0 {
			return
		}
		p.withRetry(ctx, "upsert", len(items), func(ctx context.Context) error {
			return p.config.Mirror.Upsert(ctx, p.config.Collection, items)
		})

	case jobDelete:
		p.withRetry(ctx, "delete", len(j.ids), func(ctx context.Context) error {
			return p.config.Mirror.Delete(ctx, p.config.Collection, j.ids)
		})
	}
}

// buildItems translates graph nodes into canonical vector items. Nodes
// without a stored vector are embedded in one batch call for the whole
// job.
func (p *Pool) buildItems(ctx context.Context, nodes []*graph.Node) ([]vecstore.Item, error) {
	items := make([]vecstore.Item, 0, len(nodes))
	var missingTexts []string
	var missingAt []int

	for _, node := range nodes {
		payload := make(map[string]any, len(node.Metadata))
		for k, v := range node.Metadata {
			if k == graph.KeyEmbedding {
				continue
			}
			payload[k] = v
		}

		item := vecstore.Item{
			ID:      node.ID,
			Vector:  node.Embedding(),
			Payload: payload,
			Memory:  node.Memory,
		}
		if len(item.Vector) == 0 {
			missingTexts = append(missingTexts, node.Memory)
			missingAt = append(missingAt, len(items))
		}
		items = append(items, item)
	}

	if len(missingTexts) > 0 {
		if p.config.Embedder == nil {
			p.logger.Warn("skipping nodes without embeddings, no embedder configured",
				zap.Int("skipped", len(missingTexts)),
			)
			return withoutVectorless(items), nil
		}

		vectors, err := p.config.Embedder.Embed(ctx, missingTexts)
		if err != nil {
			return nil, fmt.Errorf("embedding %d nodes: %w", len(missingTexts), err)
		}
		if len(vectors) != len(missingTexts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missingTexts))
		}
		for k, i := range missingAt {
			items[i].Vector = vectors[k]
		}
	}

	return items, nil
}

func withoutVectorless(items []vecstore.Item) []vecstore.Item {
	out := items[:0]
	for _, item := range items {
		if len(item.Vector) == 0 {
			continue
		}
		out = append(out, item)
	}
	return out
}

// withRetry runs op with bounded exponential backoff. Retrying here is
// what keeps the vector index from permanently diverging from the graph.
func (p *Pool) withRetry(ctx context.Context, op string, size int, fn func(context.Context) error) {
	backoff := p.config.RetryBase
	for attempt := uint(1); attempt <= p.config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			p.logger.Debug("mirror write applied",
				zap.String("op", op),
				zap.Int("size", size),
				zap.Uint("attempt", attempt),
			)
			return
		}

		if attempt == p.config.MaxAttempts {
			p.logger.Error("mirror write failed, giving up",
				zap.String("op", op),
				zap.Int("size", size),
				zap.Uint("attempts", attempt),
				zap.Error(err),
			)
			return
		}

		p.logger.Warn("mirror write failed, retrying",
			zap.String("op", op),
			zap.Uint("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		time.Sleep(backoff)
		backoff *= 2
	}
}
