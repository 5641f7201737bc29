package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/MemOS/pkg/graph"
)

var (
	chainToolName    = "context_chain"
	chainDescription = "Follow a relationship type transitively from a memory node and return the ordered chain of memories, starting node first. Defaults to the FOLLOWS relationship. Use this to reconstruct the context a memory belongs to."
)

// ChainInput represents the input arguments for the context_chain tool.
type ChainInput struct {
	ID   string `json:"id" jsonschema:"the id of the memory node to start the chain from"`
	Type string `json:"type,omitempty" jsonschema:"the edge type to follow (default: FOLLOWS)"`
}

// ChainLink is a single memory in the chain.
type ChainLink struct {
	ID     string `json:"id"`
	Memory string `json:"memory"`
}

// ChainOutput represents the structured output of a context chain.
type ChainOutput struct {
	ID    string      `json:"id"`
	Type  string      `json:"type"`
	Chain []ChainLink `json:"chain"`
	Count int         `json:"count"`
}

// handleContextChain processes a context chain request via MCP.
func (s *Server) handleContextChain(ctx context.Context, _ *mcp.CallToolRequest, input ChainInput) (*mcp.CallToolResult, ChainOutput, error) {
	if input.ID == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "id is required"},
			},
		}, ChainOutput{}, nil
	}

	edgeType := input.Type
	if edgeType == "" {
		edgeType = graph.EdgeTypeFollows
	}

	ids, err := s.config.Store.GetContextChain(ctx, input.ID, edgeType)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Context chain failed: %v", err)},
			},
		}, ChainOutput{}, nil
	}
	if ids == nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("no memory with id %q", input.ID)},
			},
		}, ChainOutput{}, nil
	}

	nodes, err := s.config.Store.GetNodes(ctx, ids, false)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to hydrate chain: %v", err)},
			},
		}, ChainOutput{}, nil
	}

	byID := make(map[string]*graph.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	// Preserve chain order while tolerating nodes deleted mid-walk.
	links := make([]ChainLink, 0, len(ids))
	for _, id := range ids {
		node, ok := byID[id]
		if !ok {
			continue
		}
		links = append(links, ChainLink{ID: id, Memory: node.Memory})
	}

	output := ChainOutput{
		ID:    input.ID,
		Type:  edgeType,
		Chain: links,
		Count: len(links),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, ChainOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
