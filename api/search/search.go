// Package search provides shared semantic search types and logic over the
// memory graph. It is used by the REST API endpoint, the MCP server tool,
// and the CLI search command.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/embeddings"
	"github.com/anatolykoptev/MemOS/pkg/graph"
	"github.com/anatolykoptev/MemOS/pkg/utils"
)

// DefaultTopK is the number of results returned when the caller does not
// ask for a specific count.
const DefaultTopK = 5

// previewLen caps the preview text attached to each result.
const previewLen = 160

// SearchInput represents the input arguments for a search request.
type SearchInput struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// SearchResult represents a single ranked memory node.
type SearchResult struct {
	ID         string   `json:"id"`
	Score      float32  `json:"score"`
	Memory     string   `json:"memory"`
	Preview    string   `json:"preview"`
	MemoryType string   `json:"memory_type,omitempty"`
	Status     string   `json:"status,omitempty"`
	UserName   string   `json:"user_name,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// SearchOutput represents the output of a search operation.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// Search performs a semantic search over the memory graph. It embeds the
// query text in a single batch call, ranks nodes through the store's
// vector modality, then hydrates the matching nodes.
func Search(
	ctx context.Context,
	query string,
	topK int,
	embedder embeddings.Embedder,
	store graph.Store,
	logger *zap.Logger,
) (*SearchOutput, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	logger.Debug("search request",
		zap.String("query", query),
		zap.Int("topK", topK),
	)

	vectors, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected one query embedding, got %d", len(vectors))
	}

	hits, err := store.SearchByEmbedding(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search by embedding: %w", err)
	}

	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}

	nodes, err := store.GetNodes(ctx, ids, false)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate results: %w", err)
	}

	byID := make(map[string]*graph.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	// Hits whose node vanished between ranking and hydration are skipped
	// rather than failing the whole search.
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		node, ok := byID[hit.ID]
		if !ok {
			logger.Warn("ranked node missing from graph",
				zap.String("id", hit.ID),
			)
			continue
		}
		results = append(results, BuildSearchResult(hit, node))
	}

	return &SearchOutput{
		Query:   query,
		Results: results,
		Count:   len(results),
	}, nil
}

// BuildSearchResult converts a ranked hit and its hydrated node into a
// SearchResult.
func BuildSearchResult(hit graph.SearchHit, node *graph.Node) SearchResult {
	return SearchResult{
		ID:         hit.ID,
		Score:      hit.Score,
		Memory:     node.Memory,
		Preview:    utils.Truncate(node.Memory, previewLen),
		MemoryType: node.MemoryType(),
		Status:     node.Status(),
		UserName:   node.UserName(),
		Tags:       node.Tags(),
	}
}
