package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/eventstream"
	"github.com/anatolykoptev/MemOS/pkg/graph"
	"github.com/anatolykoptev/MemOS/pkg/vecstore"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AddNodeRequest is the body for creating a single node.
type AddNodeRequest struct {
	ID       string         `json:"id,omitempty"`
	Memory   string         `json:"memory"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AddNodeResponse returns the id of the created node.
type AddNodeResponse struct {
	ID string `json:"id"`
}

// AddNodesRequest is the body for batch node creation. UserName stamps
// ownership on nodes that don't carry one.
type AddNodesRequest struct {
	Nodes    []*graph.Node `json:"nodes"`
	UserName string        `json:"user_name,omitempty"`
}

// AddNodesResponse reports the ids written by a batch.
type AddNodesResponse struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// EdgeRequest is the body for edge creation and deletion.
type EdgeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// NeighborsResponse lists ids adjacent to a node.
type NeighborsResponse struct {
	ID        string   `json:"id"`
	Neighbors []string `json:"neighbors"`
}

// EdgesResponse lists the edges touching a node.
type EdgesResponse struct {
	ID    string       `json:"id"`
	Edges []graph.Edge `json:"edges"`
	Count int          `json:"count"`
}

// ChainResponse is the ordered context chain starting at a node.
type ChainResponse struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Chain []string `json:"chain"`
}

// ImportResponse reports what an import recreated.
type ImportResponse struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleAddNode creates a single node, generating an id when the caller
// does not supply one.
func (s *Server) handleAddNode(c *fiber.Ctx) error {
	var req AddNodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Memory == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "memory is required"})
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	if err := s.store.AddNode(c.Context(), id, req.Memory, req.Metadata); err != nil {
		return s.storeError(c, err)
	}

	s.mirrorUpsert(&graph.Node{ID: id, Memory: req.Memory, Metadata: req.Metadata})
	s.publishEvent(c.Context(), eventstream.EventTypeNodeAdded, id)

	return c.Status(fiber.StatusCreated).JSON(AddNodeResponse{ID: id})
}

// handleAddNodes batch-creates nodes. The batch is all-or-nothing: any
// invalid node rejects the whole request.
func (s *Server) handleAddNodes(c *fiber.Ctx) error {
	var req AddNodesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if len(req.Nodes) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "nodes are required"})
	}

	ids := make([]string, len(req.Nodes))
	for i, node := range req.Nodes {
		if node == nil || node.Memory == "" {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: fmt.Sprintf("node %d: memory is required", i)})
		}
		if node.ID == "" {
			node.ID = uuid.New().String()
		}
		ids[i] = node.ID
	}

	if err := s.store.AddNodes(c.Context(), req.Nodes, req.UserName); err != nil {
		return s.storeError(c, err)
	}

	s.mirrorUpsert(req.Nodes...)
	for _, id := range ids {
		s.publishEvent(c.Context(), eventstream.EventTypeNodeAdded, id)
	}

	return c.Status(fiber.StatusCreated).JSON(AddNodesResponse{IDs: ids, Count: len(ids)})
}

// handleGetNode returns a single node by id. ?embedding=true includes the
// stored vector.
func (s *Server) handleGetNode(c *fiber.Ctx) error {
	id := c.Params("id")

	node, err := s.store.GetNode(c.Context(), id, c.QueryBool("embedding"))
	if err != nil {
		return s.storeError(c, err)
	}
	if node == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "node not found"})
	}

	return c.JSON(node)
}

// handleUpdateNode partially updates a node. A "memory" field replaces
// the content, everything else lands in metadata.
func (s *Server) handleUpdateNode(c *fiber.Ctx) error {
	id := c.Params("id")

	var fields map[string]any
	if err := c.BodyParser(&fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if len(fields) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "at least one field is required"})
	}

	if err := s.store.UpdateNode(c.Context(), id, fields); err != nil {
		return s.storeError(c, err)
	}

	node, err := s.store.GetNode(c.Context(), id, false)
	if err != nil {
		return s.storeError(c, err)
	}

	s.mirrorUpsert(node)
	s.publishEvent(c.Context(), eventstream.EventTypeNodeUpdated, id)

	return c.JSON(node)
}

// handleDeleteNode removes a node and cascades to its edges.
func (s *Server) handleDeleteNode(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.store.DeleteNode(c.Context(), id); err != nil {
		return s.storeError(c, err)
	}

	s.mirrorDelete(id)
	s.publishEvent(c.Context(), eventstream.EventTypeNodeDeleted, id)

	return c.SendStatus(fiber.StatusNoContent)
}

// handleGetNeighbors returns ids adjacent to a node. type defaults to the
// ANY wildcard and direction to both.
func (s *Server) handleGetNeighbors(c *fiber.Ctx) error {
	id := c.Params("id")
	edgeType := c.Query("type", graph.EdgeTypeAny)
	direction := graph.Direction(c.Query("direction", string(graph.DirectionBoth)))

	neighbors, err := s.store.GetNeighbors(c.Context(), id, edgeType, direction)
	if err != nil {
		return s.storeError(c, err)
	}
	if neighbors == nil {
		neighbors = []string{}
	}

	return c.JSON(NeighborsResponse{ID: id, Neighbors: neighbors})
}

// handleGetEdges returns the edges touching a node.
func (s *Server) handleGetEdges(c *fiber.Ctx) error {
	id := c.Params("id")
	edgeType := c.Query("type", graph.EdgeTypeAny)
	direction := graph.Direction(c.Query("direction", string(graph.DirectionAny)))

	edges, err := s.store.GetEdges(c.Context(), id, edgeType, direction)
	if err != nil {
		return s.storeError(c, err)
	}
	if edges == nil {
		edges = []graph.Edge{}
	}

	return c.JSON(EdgesResponse{ID: id, Edges: edges, Count: len(edges)})
}

// handleGetContextChain follows a relationship type transitively from a
// node. type defaults to FOLLOWS.
func (s *Server) handleGetContextChain(c *fiber.Ctx) error {
	id := c.Params("id")
	edgeType := c.Query("type", graph.EdgeTypeFollows)

	chain, err := s.store.GetContextChain(c.Context(), id, edgeType)
	if err != nil {
		return s.storeError(c, err)
	}
	if chain == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "node not found"})
	}

	return c.JSON(ChainResponse{ID: id, Type: edgeType, Chain: chain})
}

// handleAddEdge creates a directed typed edge. Adding an existing triple
// is a no-op.
func (s *Server) handleAddEdge(c *fiber.Ctx) error {
	var req EdgeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.From == "" || req.To == "" || req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "from, to and type are required"})
	}

	if err := s.store.AddEdge(c.Context(), req.From, req.To, req.Type); err != nil {
		return s.storeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(graph.Edge{Source: req.From, Target: req.To, Type: req.Type})
}

// handleDeleteEdge removes an edge by exact triple. The triple rides in
// the request body.
func (s *Server) handleDeleteEdge(c *fiber.Ctx) error {
	var req EdgeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.From == "" || req.To == "" || req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "from, to and type are required"})
	}

	if err := s.store.DeleteEdge(c.Context(), req.From, req.To, req.Type); err != nil {
		return s.storeError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// handleExportGraph produces a snapshot of the whole graph.
// ?embedding=true includes stored vectors.
func (s *Server) handleExportGraph(c *fiber.Ctx) error {
	snap, err := s.store.ExportGraph(c.Context(), c.QueryBool("embedding"))
	if err != nil {
		return s.storeError(c, err)
	}

	return c.JSON(snap)
}

// handleImportGraph recreates nodes and edges from a snapshot. Existing
// records with the same identity are overwritten.
func (s *Server) handleImportGraph(c *fiber.Ctx) error {
	var snap graph.Snapshot
	if err := c.BodyParser(&snap); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid snapshot body"})
	}

	if err := s.store.ImportGraph(c.Context(), &snap); err != nil {
		return s.storeError(c, err)
	}

	s.mirrorUpsert(snap.Nodes...)

	return c.JSON(ImportResponse{Nodes: len(snap.Nodes), Edges: len(snap.Edges)})
}

// mirrorUpsert hands written nodes to the vector sync pool when one is
// configured. A full queue only warns; the graph write already succeeded.
func (s *Server) mirrorUpsert(nodes ...*graph.Node) {
	if s.config.Sync == nil || len(nodes) == 0 {
		return
	}
	if !s.config.Sync.EnqueueUpsert(nodes...) {
		s.logger.Warn("vector mirror queue full, upsert dropped", zap.Int("nodes", len(nodes)))
	}
}

// mirrorDelete hands deleted ids to the vector sync pool when one is
// configured.
func (s *Server) mirrorDelete(ids ...string) {
	if s.config.Sync == nil || len(ids) == 0 {
		return
	}
	if !s.config.Sync.EnqueueDelete(ids...) {
		s.logger.Warn("vector mirror queue full, delete dropped", zap.Int("ids", len(ids)))
	}
}

// publishEvent emits a node write event. Publish failures are logged and
// never fail the write that produced them.
func (s *Server) publishEvent(ctx context.Context, eventType, nodeID string) {
	if s.config.Publisher == nil {
		return
	}
	event := eventstream.NewNodeEvent(eventType, nodeID)
	event.Source = "api"
	if err := s.config.Publisher.PublishNodeEvent(ctx, event); err != nil {
		s.logger.Warn("publishing node event",
			zap.String("event_type", eventType),
			zap.String("node_id", nodeID),
			zap.Error(err),
		)
	}
}

// storeError renders a store failure with the mapped HTTP status.
func (s *Server) storeError(c *fiber.Ctx, err error) error {
	return c.Status(statusForError(err)).JSON(ErrorResponse{Error: err.Error()})
}

// statusForError maps store errors onto HTTP status codes: missing nodes
// are 404, id collisions 409, bad scopes and unsupported filters 400,
// backend outages 503, anything else 500.
func statusForError(err error) int {
	var (
		notFound  graph.NotFoundError
		duplicate graph.DuplicateIDError
		badScope  graph.InvalidScopeError
		badFilter *vecstore.UnsupportedFilterError
	)

	switch {
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &duplicate):
		return fiber.StatusConflict
	case errors.As(err, &badScope), errors.As(err, &badFilter):
		return fiber.StatusBadRequest
	case errors.Is(err, graph.ErrBackendUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
