// Package api provides the HTTP API server for managing and querying the
// memory graph.
package api

import (
	"net/http"

	"github.com/anatolykoptev/MemOS/pkg/embeddings"
	"github.com/anatolykoptev/MemOS/pkg/eventstream"
	"github.com/anatolykoptev/MemOS/pkg/graph"
)

// Syncer mirrors graph writes into the vector index asynchronously.
// vecsync.Pool implements it.
type Syncer interface {
	EnqueueUpsert(nodes ...*graph.Node) bool
	EnqueueDelete(ids ...string) bool
}

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Embedder converts query text to vectors for semantic search. The
	// search endpoint reports 503 when unset.
	Embedder embeddings.Embedder

	// MCP is the Model Context Protocol handler, mounted at /mcp when set.
	MCP http.Handler

	// Sync mirrors successful node writes into the vector router.
	// Optional; nil disables mirroring.
	Sync Syncer

	// Publisher receives node write events. Optional; nil drops them.
	// Publish failures are logged and never fail the write.
	Publisher eventstream.Publisher
}
