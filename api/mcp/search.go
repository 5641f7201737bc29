package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	apisearch "github.com/anatolykoptev/MemOS/api/search"
)

var (
	searchToolName    = "memory_search"
	searchDescription = "Search stored memories using semantic similarity. Returns the most relevant memory nodes for the query text, ranked by score, with content previews."
)

// SearchInput represents the input arguments for the memory_search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query text to find relevant memories"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
}

// handleMemorySearch processes a memory search request.
func (s *Server) handleMemorySearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, apisearch.SearchOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP memory search request",
		zap.String("query", input.Query),
		zap.Int("topK", input.TopK),
	)

	if input.Query == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "query is required"},
			},
		}, apisearch.SearchOutput{}, nil
	}

	output, err := apisearch.Search(ctx, input.Query, input.TopK, s.config.Embedder, s.config.Store, logger)
	if err != nil {
		logger.Error("memory search failed", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Search failed: %v", err)},
			},
		}, apisearch.SearchOutput{}, nil
	}

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, apisearch.SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, *output, nil
}
