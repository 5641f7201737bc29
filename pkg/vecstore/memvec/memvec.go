// Package memvec provides an in-memory vector store for embedded
// deployments and tests.
package memvec

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/vecstore"
)

// Store implements vecstore.Store entirely in memory with brute-force
// cosine similarity search.
type Store struct {
	collection string
	dimension  int
	logger     *zap.Logger

	mu      sync.RWMutex
	items   map[string]vecstore.Item
	seq     map[string]int
	nextSeq int
}

// Config holds configuration for the in-memory store.
type Config struct {
	// Collection is the logical collection name.
	Collection string

	// Dimension is the required embedding width. Vectors of any other
	// width are rejected on write.
	Dimension int
}

var (
	_ vecstore.Store             = (*Store)(nil)
	_ vecstore.CollectionDropper = (*Store)(nil)
)

// NewStore creates an empty in-memory vector store.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	if c.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if c.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	return &Store{
		collection: c.Collection,
		dimension:  c.Dimension,
		logger:     logger,
		items:      map[string]vecstore.Item{},
		seq:        map[string]int{},
	}, nil
}

// Collection returns the collection name this store is bound to.
func (s *Store) Collection() string {
	return s.collection
}

// Search finds the topK records most similar to the given vector.
func (s *Store) Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]vecstore.Item, error) {
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []vecstore.Item
	for _, item := range s.items {
		if len(item.Vector) == 0 {
			continue
		}
		if !vecstore.MatchesPayload(item.Payload, filter) {
			continue
		}
		scored := cloneItem(item)
		scored.Score = cosineSimilarity(vector, item.Vector)
		results = append(results, scored)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return s.seq[results[i].ID] < s.seq[results[j].ID]
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// GetByID retrieves a single record, or nil when the id is unknown.
func (s *Store) GetByID(ctx context.Context, id string) (*vecstore.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	clone := cloneItem(item)
	return &clone, nil
}

// GetByIDs retrieves the records for the given ids, omitting misses.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]vecstore.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]vecstore.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			results = append(results, cloneItem(item))
		}
	}
	return results, nil
}

// GetByFilter retrieves every record whose payload satisfies the filter.
func (s *Store) GetByFilter(ctx context.Context, filter map[string]any) ([]vecstore.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []vecstore.Item
	for _, item := range s.items {
		if vecstore.MatchesPayload(item.Payload, filter) {
			results = append(results, cloneItem(item))
		}
	}
	s.sortBySeq(results)
	return results, nil
}

// GetAll retrieves every record in the collection.
func (s *Store) GetAll(ctx context.Context) ([]vecstore.Item, error) {
	return s.GetByFilter(ctx, nil)
}

// Count returns the number of records satisfying the filter.
func (s *Store) Count(ctx context.Context, filter map[string]any) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, item := range s.items {
		if vecstore.MatchesPayload(item.Payload, filter) {
			n++
		}
	}
	return n, nil
}

// Add stores records, replacing any that reuse an existing id.
func (s *Store) Add(ctx context.Context, items []vecstore.Item) error {
	return s.Upsert(ctx, items)
}

// Update stores item under the given id, replacing any existing record.
func (s *Store) Update(ctx context.Context, id string, item vecstore.Item) error {
	item.ID = id
	return s.Upsert(ctx, []vecstore.Item{item})
}

// Upsert inserts or replaces records by id.
func (s *Store) Upsert(ctx context.Context, items []vecstore.Item) error {
	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("item id is required")
		}
		if len(item.Vector) > 0 && len(item.Vector) != s.dimension {
			return fmt.Errorf("item %s: embedding has %d dimensions, store expects %d", item.ID, len(item.Vector), s.dimension)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if _, ok := s.seq[item.ID]; !ok {
			s.seq[item.ID] = s.nextSeq
			s.nextSeq++
		}
		s.items[item.ID] = cloneItem(item)
	}
	return nil
}

// Delete removes records by id. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.items, id)
		delete(s.seq, id)
	}
	return nil
}

// EnsurePayloadIndexes is a no-op; every payload field is scanned anyway.
func (s *Store) EnsurePayloadIndexes(ctx context.Context, fields []string) error {
	return nil
}

// DropCollection discards every stored record.
func (s *Store) DropCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = map[string]vecstore.Item{}
	s.seq = map[string]int{}
	s.nextSeq = 0
	return nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	return nil
}

// Len reports the number of stored records. Intended for tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) sortBySeq(items []vecstore.Item) {
	sort.Slice(items, func(i, j int) bool {
		return s.seq[items[i].ID] < s.seq[items[j].ID]
	})
}

func cloneItem(item vecstore.Item) vecstore.Item {
	clone := item
	if item.Vector != nil {
		clone.Vector = append([]float32(nil), item.Vector...)
	}
	if item.Payload != nil {
		clone.Payload = make(map[string]any, len(item.Payload))
		for k, v := range item.Payload {
			clone.Payload[k] = v
		}
	}
	return clone
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
