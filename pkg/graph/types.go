// Package graph defines the memory graph store contract: typed nodes and
// edges, the retrieval modalities over them, and the shared types every
// backend implements against.
package graph

import (
	"time"
)

// Memory type scopes. Every node carries one under the memory_type
// metadata key; several queries partition on it.
const (
	ScopeWorkingMemory  = "WorkingMemory"
	ScopeLongTermMemory = "LongTermMemory"
	ScopeUserMemory     = "UserMemory"
)

// Scopes lists the recognized memory-type labels.
var Scopes = []string{ScopeWorkingMemory, ScopeLongTermMemory, ScopeUserMemory}

// ValidScope reports whether scope is a recognized memory-type label.
func ValidScope(scope string) bool {
	for _, s := range Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Node status values. Engines may store others.
const (
	StatusActivated = "activated"
	StatusArchived  = "archived"
)

// Well-known metadata keys.
const (
	KeyUserName   = "user_name"
	KeyStatus     = "status"
	KeyMemoryType = "memory_type"
	KeyTags       = "tags"
	KeyEmbedding  = "embedding"
	KeyCreatedAt  = "created_at"
	KeyUpdatedAt  = "updated_at"
	KeyBackground = "background"
	KeyMergedFrom = "merged_from"
	KeyFileIDs    = "file_ids"
)

// Edge type wildcard accepted by GetEdges.
const EdgeTypeAny = "ANY"

// EdgeTypeFollows is the default relationship followed by GetContextChain.
const EdgeTypeFollows = "FOLLOWS"

// EdgeTypeParent is the relationship that defines the parent→child
// hierarchy used by structure-optimization discovery.
const EdgeTypeParent = "PARENT"

// EdgeTypeRelated is a generic association between two memories.
const EdgeTypeRelated = "RELATED"

// Direction selects which edges to follow relative to a node.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"

	// DirectionAny matches edges in either direction; accepted by GetEdges.
	DirectionAny Direction = "ANY"
)

// Node is a unit of stored memory. ID is immutable once created; Memory is
// the raw textual content; Metadata is an open attribute mapping (tags,
// importance, status, memory_type, timestamps, owning user, optional
// embedding vector).
type Node struct {
	ID       string         `json:"id"`
	Memory   string         `json:"memory"`
	Metadata map[string]any `json:"metadata"`
}

// Edge is a directed, typed relationship between two nodes. The
// (source, target, type) triple is the natural key; duplicates are never
// stored.
type Edge struct {
	Source string `json:"from"`
	Target string `json:"to"`
	Type   string `json:"type"`
}

// SearchHit is an ephemeral retrieval result, ranked by descending score.
type SearchHit struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// Snapshot is the serializable form of a whole graph, produced by
// ExportGraph and consumed by ImportGraph. Node embeddings ride inside
// node metadata and may be absent.
type Snapshot struct {
	Nodes []*Node `json:"nodes"`
	Edges []Edge  `json:"edges"`
}

// DeleteParams selects nodes for bulk deletion. All provided dimensions
// are combined conjunctively; empty dimensions are ignored.
type DeleteParams struct {
	// MemoryIDs deletes by exact node id.
	MemoryIDs []string

	// UserNames deletes nodes owned by any of the given user_name values.
	UserNames []string

	// FileIDs deletes nodes whose file_ids metadata intersects the set.
	FileIDs []string

	// Filters applies additional conjunctive metadata clauses.
	Filters []Filter
}

// Empty reports whether no selection dimension was provided. Backends
// reject empty params rather than deleting everything.
func (p DeleteParams) Empty() bool {
	return len(p.MemoryIDs) == 0 && len(p.UserNames) == 0 && len(p.FileIDs) == 0 && len(p.Filters) == 0
}

// Clone returns a deep copy of the node. Metadata values that are
// themselves containers are copied one level deep, which covers the
// shapes the store produces (tag slices, embedding vectors).
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	md := make(map[string]any, len(n.Metadata))
	for k, v := range n.Metadata {
		switch vv := v.(type) {
		case []string:
			md[k] = append([]string(nil), vv...)
		case []float32:
			md[k] = append([]float32(nil), vv...)
		case []any:
			md[k] = append([]any(nil), vv...)
		case map[string]any:
			inner := make(map[string]any, len(vv))
			for ik, iv := range vv {
				inner[ik] = iv
			}
			md[k] = inner
		default:
			md[k] = v
		}
	}
	return &Node{ID: n.ID, Memory: n.Memory, Metadata: md}
}

// WithoutEmbedding returns a copy of the node with the embedding metadata
// stripped, for read paths that do not want the vector hydrated.
func (n *Node) WithoutEmbedding() *Node {
	c := n.Clone()
	if c != nil {
		delete(c.Metadata, KeyEmbedding)
	}
	return c
}

// Tags returns the node's tag list, tolerating both []string and the
// []any shape JSON decoding produces.
func (n *Node) Tags() []string {
	return StringsValue(n.Metadata, KeyTags)
}

// UserName returns the owning user, or "" when unowned.
func (n *Node) UserName() string {
	return StringValue(n.Metadata, KeyUserName)
}

// Status returns the node's status value, or "" when unset.
func (n *Node) Status() string {
	return StringValue(n.Metadata, KeyStatus)
}

// MemoryType returns the node's scope label, or "" when unset.
func (n *Node) MemoryType() string {
	return StringValue(n.Metadata, KeyMemoryType)
}

// Background returns the background metadata field, or "" when unset.
func (n *Node) Background() string {
	return StringValue(n.Metadata, KeyBackground)
}

// Embedding returns the node's embedding vector, tolerating []float32,
// []float64 and the []any shape JSON decoding produces. Returns nil when
// the node carries no embedding.
func (n *Node) Embedding() []float32 {
	return EmbeddingValue(n.Metadata, KeyEmbedding)
}

// StringValue reads a string metadata field, returning "" for missing or
// non-string values.
func StringValue(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	if s, ok := md[key].(string); ok {
		return s
	}
	return ""
}

// StringsValue reads a string-slice metadata field, tolerating the []any
// shape JSON decoding produces.
func StringsValue(md map[string]any, key string) []string {
	if md == nil {
		return nil
	}
	switch v := md[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// EmbeddingValue reads a float32 vector metadata field, tolerating the
// numeric shapes JSON decoding produces.
func EmbeddingValue(md map[string]any, key string) []float32 {
	if md == nil {
		return nil
	}
	switch v := md[key].(type) {
	case []float32:
		return v
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out
	case []any:
		out := make([]float32, 0, len(v))
		for _, item := range v {
			switch f := item.(type) {
			case float64:
				out = append(out, float32(f))
			case float32:
				out = append(out, f)
			case int:
				out = append(out, float32(f))
			default:
				return nil
			}
		}
		return out
	}
	return nil
}

// EnsureTimestamps stamps created_at on first write and refreshes
// updated_at. Timestamps are RFC 3339 strings so metadata stays
// JSON-serializable.
func EnsureTimestamps(md map[string]any, now time.Time) {
	ts := now.UTC().Format(time.RFC3339)
	if StringValue(md, KeyCreatedAt) == "" {
		md[KeyCreatedAt] = ts
	}
	md[KeyUpdatedAt] = ts
}

// ApplyUserName stamps the owning user when the node does not already
// carry one.
func ApplyUserName(md map[string]any, userName string) {
	if userName == "" {
		return
	}
	if StringValue(md, KeyUserName) == "" {
		md[KeyUserName] = userName
	}
}
