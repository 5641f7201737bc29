package graph

import (
	"context"

	"go.uber.org/zap"
)

// Store is the memory graph contract. It is the single point of truth for
// node/edge lifecycle and dispatches every retrieval modality. Concrete
// engines live in subpackages (inmemory, postgres, sqlite) and are selected
// at construction time via utils.NewStore.
type Store interface {
	// AddNode creates a node. Fails with DuplicateIDError when the id
	// already exists.
	AddNode(ctx context.Context, id, memory string, metadata map[string]any) error

	// AddNodes batch-creates nodes all-or-nothing: every node is validated
	// first and the whole batch is rejected on any failure. A non-empty
	// userName stamps ownership on nodes that don't carry one.
	AddNodes(ctx context.Context, nodes []*Node, userName string) error

	// UpdateNode partially updates a node. Only the given fields are
	// mutated; a "memory" key updates the content, everything else lands
	// in metadata. Fails with NotFoundError when the id is absent.
	UpdateNode(ctx context.Context, id string, fields map[string]any) error

	// DeleteNode removes a node and cascades to every edge referencing it
	// as source or target. The cascade is atomic: readers never observe a
	// deleted node with stale edges.
	DeleteNode(ctx context.Context, id string) error

	// DeleteNodesByParams bulk-deletes nodes matching the params and
	// returns the count removed.
	DeleteNodesByParams(ctx context.Context, params DeleteParams) (int, error)

	// AddEdge creates a directed typed edge. Idempotent: adding an
	// existing triple is a no-op.
	AddEdge(ctx context.Context, source, target, edgeType string) error

	// DeleteEdge removes an edge by exact triple. Deleting a non-existent
	// triple is a no-op, not an error.
	DeleteEdge(ctx context.Context, source, target, edgeType string) error

	// EdgeExists checks for an exact edge triple.
	EdgeExists(ctx context.Context, source, target, edgeType string) (bool, error)

	// GetEdges returns edges touching the node. EdgeTypeAny and
	// DirectionAny act as wildcards.
	GetEdges(ctx context.Context, id, edgeType string, direction Direction) ([]Edge, error)

	// GetNode hydrates a node by id. A missing id yields (nil, nil), never
	// an error. includeEmbedding toggles whether the vector is returned.
	GetNode(ctx context.Context, id string, includeEmbedding bool) (*Node, error)

	// GetNodes hydrates nodes by id; missing ids are omitted.
	GetNodes(ctx context.Context, ids []string, includeEmbedding bool) ([]*Node, error)

	// GetNeighbors returns ids connected through edges of the given type
	// in the given direction (in, out, or both).
	GetNeighbors(ctx context.Context, id, edgeType string, direction Direction) ([]string, error)

	// GetPath returns the first path found from source to target within
	// maxDepth hops, searching breadth-first with neighbors visited in
	// lexicographic id order. Empty when unreachable within the bound.
	GetPath(ctx context.Context, sourceID, targetID string, maxDepth int) ([]string, error)

	// GetSubgraph returns the ids reachable within depth hops of center,
	// center included.
	GetSubgraph(ctx context.Context, centerID string, depth int) ([]string, error)

	// GetContextChain follows a single relationship type transitively in
	// the outgoing direction, starting at id, until no further edge of
	// that type exists. Cycles terminate: each node appears at most once.
	// An empty edgeType follows EdgeTypeFollows.
	GetContextChain(ctx context.Context, id, edgeType string) ([]string, error)

	// SearchByEmbedding ranks nodes by vector similarity, highest score
	// first, ties broken by stable insertion order.
	SearchByEmbedding(ctx context.Context, vector []float32, topK int) ([]SearchHit, error)

	// GetByMetadata returns ids matching every filter clause, optionally
	// narrowed to a status value.
	GetByMetadata(ctx context.Context, filters []Filter, status string) ([]string, error)

	// GetNeighborsByTag ranks candidate nodes by count of overlapping tags
	// with the given set, excluding excludeIDs and nodes below minOverlap,
	// returning topK by descending overlap with ascending-id tie-break.
	GetNeighborsByTag(ctx context.Context, tags, excludeIDs []string, topK, minOverlap int) ([]*Node, error)

	// GetAllMemoryItems returns every node in the given scope, optionally
	// status-filtered. An unrecognized scope fails with InvalidScopeError.
	GetAllMemoryItems(ctx context.Context, scope string, includeEmbedding bool, status string) ([]*Node, error)

	// GetStructureOptimizationCandidates returns nodes in scope that are
	// isolated, have empty background, have exactly one child, or are the
	// sole child of a parent with exactly one child. Each candidate
	// appears once.
	GetStructureOptimizationCandidates(ctx context.Context, scope string, includeEmbedding bool) ([]*Node, error)

	// MergeNodes collapses two nodes into one surviving node and returns
	// the survivor's id. The absorbed node's edges are re-pointed to the
	// survivor (self-loops and duplicate triples dropped) and the absorbed
	// node is deleted, all as one atomic step.
	MergeNodes(ctx context.Context, id1, id2 string) (string, error)

	// ExportGraph produces a snapshot of all nodes and edges.
	ExportGraph(ctx context.Context, includeEmbedding bool) (*Snapshot, error)

	// ImportGraph recreates nodes and edges from a snapshot. Existing
	// records with the same identity are overwritten.
	ImportGraph(ctx context.Context, snap *Snapshot) error

	// Clear destroys all nodes and edges. Irreversible.
	Clear(ctx context.Context) error

	// GetUserNamesByMemoryIDs returns the distinct user names owning the
	// given ids.
	GetUserNamesByMemoryIDs(ctx context.Context, memoryIDs []string) ([]string, error)

	// ExistUserName checks whether any node is owned by the user.
	ExistUserName(ctx context.Context, userName string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// FulltextSearcher is an optional capability. Stores that can rank nodes
// by full-text relevance implement it; callers go through SearchFulltext
// which degrades to empty results when the store can't.
type FulltextSearcher interface {
	SearchByFulltext(ctx context.Context, queryWords []string, topK int) ([]SearchHit, error)
}

// KeywordSearcher is an optional capability for LIKE-pattern and TF-IDF
// keyword retrieval.
type KeywordSearcher interface {
	SearchByKeywordsLike(ctx context.Context, queryWord string, topK int) ([]SearchHit, error)
	SearchByKeywordsTFIDF(ctx context.Context, queryWords []string, topK int) ([]SearchHit, error)
}

// SearchFulltext dispatches to the store's full-text capability when
// present. Stores without it yield empty results; failures degrade to
// empty results with a warning since full-text is a best-effort modality.
func SearchFulltext(ctx context.Context, s Store, queryWords []string, topK int, logger *zap.Logger) []SearchHit {
	ft, ok := s.(FulltextSearcher)
	if !ok {
		return nil
	}
	hits, err := ft.SearchByFulltext(ctx, queryWords, topK)
	if err != nil {
		logger.Warn("fulltext search degraded to empty result", zap.Error(err))
		return nil
	}
	return hits
}

// SearchKeywordsLike dispatches to the store's LIKE-pattern capability
// when present, degrading to empty results otherwise.
func SearchKeywordsLike(ctx context.Context, s Store, queryWord string, topK int, logger *zap.Logger) []SearchHit {
	ks, ok := s.(KeywordSearcher)
	if !ok {
		return nil
	}
	hits, err := ks.SearchByKeywordsLike(ctx, queryWord, topK)
	if err != nil {
		logger.Warn("keyword search degraded to empty result", zap.Error(err))
		return nil
	}
	return hits
}

// SearchKeywordsTFIDF dispatches to the store's TF-IDF capability when
// present, degrading to empty results otherwise.
func SearchKeywordsTFIDF(ctx context.Context, s Store, queryWords []string, topK int, logger *zap.Logger) []SearchHit {
	ks, ok := s.(KeywordSearcher)
	if !ok {
		return nil
	}
	hits, err := ks.SearchByKeywordsTFIDF(ctx, queryWords, topK)
	if err != nil {
		logger.Warn("tfidf search degraded to empty result", zap.Error(err))
		return nil
	}
	return hits
}
