package websearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/embeddings"
	"github.com/anatolykoptev/MemOS/pkg/graph"
)

// RetrieverConfig holds the collaborators a retriever writes through.
type RetrieverConfig struct {
	// Client is the search client results are fetched with.
	Client *Client

	// Embedder vectorizes the result texts, one batch call per query.
	Embedder embeddings.Embedder

	// Store is the graph the resulting nodes are added to.
	Store graph.Store

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Retriever converts web search hits into stored long-term memories.
type Retriever struct {
	config *RetrieverConfig
	logger *zap.Logger
}

// NewRetriever creates a retriever from its configuration.
func NewRetriever(c *RetrieverConfig) (*Retriever, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if c.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if c.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if c.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Retriever{
		config: c,
		logger: c.Logger,
	}, nil
}

// RetrieveFromInternet searches the web for query, converts up to topK
// hits into activated long-term memory nodes owned by userName, and
// batch-adds them to the store. Returns the stored nodes.
func (r *Retriever) RetrieveFromInternet(ctx context.Context, query string, topK int, userName string) ([]*graph.Node, error) {
	results, err := r.config.Client.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	if len(results) == 0 {
		r.logger.Info("web search returned no results", zap.String("query", query))
		return nil, nil
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = fmt.Sprintf("Title: %s\nSummary: %s\nSource: %s", res.Title, res.Content, res.URL)
	}

	// One embedding call for the whole result set.
	vectors, err := r.config.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d results: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d results", len(vectors), len(texts))
	}

	now := time.Now().UTC().Format(time.RFC3339)
	tags := append([]string{"web_search"}, queryTerms(query)...)

	nodes := make([]*graph.Node, len(results))
	for i, res := range results {
		metadata := map[string]any{
			"type":              "fact",
			"source":            "web",
			"confidence":        85,
			"key":               res.Title,
			graph.KeyMemoryType: graph.ScopeLongTermMemory,
			graph.KeyStatus:     graph.StatusActivated,
			graph.KeyTags:       append([]string(nil), tags...),
			graph.KeyBackground: "web search result",
			graph.KeyCreatedAt:  now,
			graph.KeyUpdatedAt:  now,
			graph.KeyEmbedding:  vectors[i],
		}
		nodes[i] = &graph.Node{
			ID:       uuid.New().String(),
			Memory:   texts[i],
			Metadata: metadata,
		}
	}

	if err := r.config.Store.AddNodes(ctx, nodes, userName); err != nil {
		return nil, fmt.Errorf("storing %d nodes: %w", len(nodes), err)
	}

	r.logger.Info("web search results stored",
		zap.String("query", query),
		zap.Int("nodes", len(nodes)),
	)
	return nodes, nil
}

// queryTerms lowercases and splits the query into unique tag terms.
func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
	}
	return terms
}
