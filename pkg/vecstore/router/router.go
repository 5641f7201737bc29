// Package router fans vector store operations out to per-collection
// backends and keeps the canonical item and filter shapes at the
// boundary.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/vecstore"
)

// BuildFunc constructs the backend store for one collection. The router
// calls it once per configured collection at startup, so every
// collection shares the same backend configuration specialized only by
// name.
type BuildFunc func(collection string) (vecstore.Store, error)

// Router routes vector operations to the store bound to the named
// collection. Items cross the router in canonical shape; conversion to
// and from the backend shape happens here.
type Router struct {
	stores map[string]vecstore.Store
	names  []string
	logger *zap.Logger
}

// New builds one store per collection and wires them into a router.
func New(collections []string, build BuildFunc, logger *zap.Logger) (*Router, error) {
	if len(collections) == 0 {
		return nil, fmt.Errorf("at least one collection is required")
	}

	r := &Router{
		stores: make(map[string]vecstore.Store, len(collections)),
		logger: logger,
	}
	for _, name := range collections {
		if name == "" {
			r.closeAll()
			return nil, fmt.Errorf("collection names must be non-empty")
		}
		if _, dup := r.stores[name]; dup {
			continue
		}
		store, err := build(name)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("building store for collection %q: %w", name, err)
		}
		r.stores[name] = store
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	logger.Info("vector router initialized",
		zap.Strings("collections", r.names),
	)

	return r, nil
}

// Collections returns the configured collection names in sorted order.
func (r *Router) Collections() []string {
	return append([]string(nil), r.names...)
}

// Has reports whether the router was configured with the collection.
func (r *Router) Has(collection string) bool {
	_, ok := r.stores[collection]
	return ok
}

func (r *Router) route(collection string) (vecstore.Store, error) {
	store, ok := r.stores[collection]
	if !ok {
		return nil, &vecstore.UnknownCollectionError{Name: collection, Known: r.names}
	}
	return store, nil
}

// Search finds the topK most similar records in the named collection.
func (r *Router) Search(ctx context.Context, collection string, vector []float32, topK int, filter vecstore.Filter) ([]vecstore.Item, error) {
	store, err := r.route(collection)
	if err != nil {
		return nil, err
	}
	flat, err := vecstore.Flatten(filter)
	if err != nil {
		return nil, err
	}

	items, err := store.Search(ctx, vector, topK, flat)
	if err != nil {
		return nil, err
	}
	return canonicalizeAll(items), nil
}

// GetByID retrieves one record, or nil when the id is unknown.
func (r *Router) GetByID(ctx context.Context, collection, id string) (*vecstore.Item, error) {
	store, err := r.route(collection)
	if err != nil {
		return nil, err
	}
	item, err := store.GetByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	canonical := vecstore.Canonicalize(*item)
	return &canonical, nil
}

// GetByIDs retrieves the records for the given ids, omitting misses.
func (r *Router) GetByIDs(ctx context.Context, collection string, ids []string) ([]vecstore.Item, error) {
	store, err := r.route(collection)
	if err != nil {
		return nil, err
	}
	items, err := store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return canonicalizeAll(items), nil
}

// GetByFilter retrieves every record whose payload satisfies the filter.
func (r *Router) GetByFilter(ctx context.Context, collection string, filter vecstore.Filter) ([]vecstore.Item, error) {
	store, err := r.route(collection)
	if err != nil {
		return nil, err
	}
	flat, err := vecstore.Flatten(filter)
	if err != nil {
		return nil, err
	}

	items, err := store.GetByFilter(ctx, flat)
	if err != nil {
		return nil, err
	}
	return canonicalizeAll(items), nil
}

// GetAll retrieves every record in the named collection.
func (r *Router) GetAll(ctx context.Context, collection string) ([]vecstore.Item, error) {
	return r.GetByFilter(ctx, collection, nil)
}

// Count returns the number of records satisfying the filter.
func (r *Router) Count(ctx context.Context, collection string, filter vecstore.Filter) (int64, error) {
	store, err := r.route(collection)
	if err != nil {
		return 0, err
	}
	flat, err := vecstore.Flatten(filter)
	if err != nil {
		return 0, err
	}
	return store.Count(ctx, flat)
}

// Add stores records in the named collection.
func (r *Router) Add(ctx context.Context, collection string, items []vecstore.Item) error {
	store, err := r.route(collection)
	if err != nil {
		return err
	}
	return store.Add(ctx, backendAll(items))
}

// Update stores item under the given id, replacing any existing record.
func (r *Router) Update(ctx context.Context, collection, id string, item vecstore.Item) error {
	store, err := r.route(collection)
	if err != nil {
		return err
	}
	return store.Update(ctx, id, vecstore.ForBackend(item))
}

// Upsert inserts or replaces records by id.
func (r *Router) Upsert(ctx context.Context, collection string, items []vecstore.Item) error {
	store, err := r.route(collection)
	if err != nil {
		return err
	}
	return store.Upsert(ctx, backendAll(items))
}

// Delete removes records by id. Unknown ids are ignored.
func (r *Router) Delete(ctx context.Context, collection string, ids []string) error {
	store, err := r.route(collection)
	if err != nil {
		return err
	}
	return store.Delete(ctx, ids)
}

// DeleteByFilter removes every record whose payload satisfies the
// filter and reports how many were removed. Deletion by filter is
// composed from a filter read and an id delete, so it works on any
// backend.
func (r *Router) DeleteByFilter(ctx context.Context, collection string, filter vecstore.Filter) (int, error) {
	store, err := r.route(collection)
	if err != nil {
		return 0, err
	}
	flat, err := vecstore.Flatten(filter)
	if err != nil {
		return 0, err
	}

	items, err := store.GetByFilter(ctx, flat)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	if err := store.Delete(ctx, ids); err != nil {
		return 0, err
	}

	r.logger.Info("deleted records by filter",
		zap.String("collection", collection),
		zap.Int("count", len(ids)),
	)

	return len(ids), nil
}

// EnsurePayloadIndexes makes sure payload indexes exist for the given
// fields in every configured collection.
func (r *Router) EnsurePayloadIndexes(ctx context.Context, fields []string) error {
	for _, name := range r.names {
		if err := r.stores[name].EnsurePayloadIndexes(ctx, fields); err != nil {
			return fmt.Errorf("ensuring payload indexes for %q: %w", name, err)
		}
	}
	return nil
}

// DropCollection deletes the named collection's records and schema on
// backends that support it.
func (r *Router) DropCollection(ctx context.Context, collection string) error {
	store, err := r.route(collection)
	if err != nil {
		return err
	}
	dropper, ok := store.(vecstore.CollectionDropper)
	if !ok {
		return fmt.Errorf("collection %q: backend does not support dropping collections", collection)
	}
	if err := dropper.DropCollection(ctx); err != nil {
		return err
	}

	r.logger.Info("dropped collection",
		zap.String("collection", collection),
	)

	return nil
}

// Close closes every configured store.
func (r *Router) Close() error {
	var errs []error
	for _, name := range r.names {
		if err := r.stores[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store for %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Router) closeAll() {
	for _, store := range r.stores {
		store.Close()
	}
}

func canonicalizeAll(items []vecstore.Item) []vecstore.Item {
	out := make([]vecstore.Item, len(items))
	for i, item := range items {
		out[i] = vecstore.Canonicalize(item)
	}
	return out
}

func backendAll(items []vecstore.Item) []vecstore.Item {
	out := make([]vecstore.Item, len(items))
	for i, item := range items {
		out[i] = vecstore.ForBackend(item)
	}
	return out
}
