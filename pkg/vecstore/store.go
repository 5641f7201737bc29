package vecstore

import "context"

// Store handles storage and retrieval of vector records for a single
// collection. Filters arrive pre-flattened as flat equality mappings; a
// nil filter matches everything. Items cross this boundary in backend
// shape, with the canonical fields already folded into the payload.
type Store interface {
	// Collection returns the collection name this store is bound to.
	Collection() string

	// Search finds the topK records most similar to the given vector,
	// restricted to records whose payload satisfies the filter. Results
	// come back ordered by descending similarity score.
	Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Item, error)

	// GetByID retrieves a single record, or nil when the id is unknown.
	GetByID(ctx context.Context, id string) (*Item, error)

	// GetByIDs retrieves the records for the given ids, omitting misses.
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)

	// GetByFilter retrieves every record whose payload satisfies the
	// filter.
	GetByFilter(ctx context.Context, filter map[string]any) ([]Item, error)

	// GetAll retrieves every record in the collection.
	GetAll(ctx context.Context) ([]Item, error)

	// Count returns the number of records satisfying the filter.
	Count(ctx context.Context, filter map[string]any) (int64, error)

	// Add stores records. Records reusing an existing id replace the
	// stored record.
	Add(ctx context.Context, items []Item) error

	// Update stores item under the given id, replacing any existing
	// record.
	Update(ctx context.Context, id string, item Item) error

	// Upsert inserts or replaces records by id.
	Upsert(ctx context.Context, items []Item) error

	// Delete removes records by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// EnsurePayloadIndexes makes sure payload indexes exist for the given
	// fields. Backends without payload indexing treat this as a no-op.
	EnsurePayloadIndexes(ctx context.Context, fields []string) error

	// Close releases any resources held by the store.
	Close() error
}

// CollectionDropper is an optional capability for stores that can drop
// their backing collection outright, records and schema both.
type CollectionDropper interface {
	DropCollection(ctx context.Context) error
}
