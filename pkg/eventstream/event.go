package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeNodeAdded is emitted after a memory node is persisted.
	EventTypeNodeAdded = "memos.node.added.v1"

	// EventTypeNodeUpdated is emitted after a memory node is updated.
	EventTypeNodeUpdated = "memos.node.updated.v1"

	// EventTypeNodeDeleted is emitted after a memory node is deleted.
	EventTypeNodeDeleted = "memos.node.deleted.v1"

	// EventTypeNodesMerged is emitted after two memory nodes are merged.
	EventTypeNodesMerged = "memos.nodes.merged.v1"
)

// NodeEventV1 is a transport-neutral event payload for a graph write.
type NodeEventV1 struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	NodeID        string    `json:"node_id"`
	Scope         string    `json:"scope,omitempty"`
	UserName      string    `json:"user_name,omitempty"`
	Source        string    `json:"source,omitempty"`

	// MergedFrom carries the absorbed node ids on merge events.
	MergedFrom []string `json:"merged_from,omitempty"`
}

// NewNodeEvent builds a v1 event with a fresh id and emission timestamp.
func NewNodeEvent(eventType, nodeID string) *NodeEventV1 {
	return &NodeEventV1{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		NodeID:        nodeID,
	}
}
