// Package sqlite implements the graph store contract on SQLite with the
// sqlite-vec extension for embedding search.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/graph"
)

// Store implements graph.Store on SQLite. Nodes live in memory_nodes with
// metadata as a JSON text column queried through json_extract; edges live
// in memory_edges keyed by the (source, target, type) triple. Embeddings
// live in a vec0 virtual table; vec0 rowids are integers, so
// node_embedding_ids maps string node ids to rowids.
type Store struct {
	db        *sql.DB
	dimension int
	logger    *zap.Logger
}

// Config holds configuration for the SQLite store.
type Config struct {
	// Path is the SQLite database file. ":memory:" keeps the graph
	// in-process, which the test suites use.
	Path string

	// Dimension is the embedding width for the vec0 table.
	Dimension int
}

var (
	_ graph.Store            = (*Store)(nil)
	_ graph.FulltextSearcher = (*Store)(nil)
	_ graph.KeywordSearcher  = (*Store)(nil)
)

// NewStore opens the database and provisions the schema. sqlite-vec must
// be loadable or construction fails.
func NewStore(ctx context.Context, c Config, logger *zap.Logger) (*Store, error) {
	sqlite_vec.Auto()

	if c.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	db, err := sql.Open("sqlite3", c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows a single writer, and each pooled connection to
	// ":memory:" would otherwise open its own empty database.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRowContext(ctx, `SELECT vec_version()`).Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite-vec not available: %v", graph.ErrBackendUnavailable, err)
	}

	s := &Store{db: db, dimension: c.Dimension, logger: logger}
	if err := s.provision(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite graph store initialized",
		zap.String("path", c.Path),
		zap.Int("dimension", c.Dimension),
		zap.String("vec_version", vecVersion),
	)

	return s, nil
}

func (s *Store) provision(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_nodes (
			id TEXT PRIMARY KEY,
			memory TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS memory_edges (
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			type TEXT NOT NULL,
			PRIMARY KEY (source, target, type)
		)`,
		`CREATE TABLE IF NOT EXISTS node_embedding_ids (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id TEXT NOT NULL UNIQUE
		)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS node_embeddings USING vec0(embedding float[%d])`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_memory_edges_source ON memory_edges (source)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_edges_target ON memory_edges (target)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("provisioning schema: %w", err)
		}
	}
	return nil
}

func (s *Store) AddNode(ctx context.Context, id, memory string, metadata map[string]any) error {
	if id == "" {
		return errors.New("node id is required")
	}

	meta := cloneMetadata(metadata)
	graph.EnsureTimestamps(meta, time.Now())
	metaJSON, embedding, err := s.writeValues(meta)
	if err != nil {
		return fmt.Errorf("node %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO memory_nodes (id, memory, metadata) VALUES (?, ?, ?)
	`, id, memory, string(metaJSON))
	if err != nil {
		return fmt.Errorf("inserting node %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting node %s: %w", id, err)
	}
	if affected == 0 {
		return graph.DuplicateIDError{ID: id}
	}

	if err := s.setEmbedding(ctx, tx, id, embedding); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert: %w", err)
	}
	return nil
}

func (s *Store) AddNodes(ctx context.Context, nodes []*graph.Node, userName string) error {
	seen := make(map[string]struct{}, len(nodes))
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			return errors.New("batch contains a node without an id")
		}
		if _, dup := seen[n.ID]; dup {
			return graph.DuplicateIDError{ID: n.ID}
		}
		seen[n.ID] = struct{}{}
		ids = append(ids, n.ID)
	}
	if len(nodes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`SELECT id FROM memory_nodes WHERE id IN (%s)`, placeholders(len(ids)))
	rows, err := tx.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("checking batch ids: %w", err)
	}
	var existing string
	for rows.Next() {
		if err := rows.Scan(&existing); err != nil {
			rows.Close()
			return fmt.Errorf("scanning batch id: %w", err)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating batch ids: %w", err)
	}
	if existing != "" {
		return graph.DuplicateIDError{ID: existing}
	}

	now := time.Now()
	for _, n := range nodes {
		meta := cloneMetadata(n.Metadata)
		graph.ApplyUserName(meta, userName)
		graph.EnsureTimestamps(meta, now)
		metaJSON, embedding, err := s.writeValues(meta)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_nodes (id, memory, metadata) VALUES (?, ?, ?)
		`, n.ID, n.Memory, string(metaJSON)); err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
		if err := s.setEmbedding(ctx, tx, n.ID, embedding); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}

	s.logger.Debug("added node batch",
		zap.Int("count", len(nodes)),
		zap.String("user_name", userName),
	)

	return nil
}

func (s *Store) UpdateNode(ctx context.Context, id string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	node, err := loadNodeTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if node == nil {
		return graph.NotFoundError{ID: id}
	}

	for k, v := range fields {
		if k == "memory" {
			if str, isStr := v.(string); isStr {
				node.Memory = str
			}
			continue
		}
		if v == nil {
			delete(node.Metadata, k)
			continue
		}
		node.Metadata[k] = v
	}
	node.Metadata[graph.KeyUpdatedAt] = time.Now().UTC().Format(time.RFC3339)

	metaJSON, embedding, err := s.writeValues(node.Metadata)
	if err != nil {
		return fmt.Errorf("node %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE memory_nodes SET memory = ?, metadata = ? WHERE id = ?
	`, node.Memory, string(metaJSON), id); err != nil {
		return fmt.Errorf("updating node %s: %w", id, err)
	}
	if err := s.setEmbedding(ctx, tx, id, embedding); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	return nil
}

func (s *Store) DeleteNode(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_edges WHERE source = ? OR target = ?`, id, id); err != nil {
		return fmt.Errorf("deleting edges of %s: %w", id, err)
	}
	if err := deleteEmbeddings(ctx, tx, []string{id}); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting node %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

func (s *Store) DeleteNodesByParams(ctx context.Context, params graph.DeleteParams) (int, error) {
	if params.Empty() {
		return 0, errors.New("delete params: no selection provided")
	}

	query := `SELECT id, memory, metadata FROM memory_nodes`
	var args []any
	if len(params.MemoryIDs) > 0 {
		query += fmt.Sprintf(` WHERE id IN (%s)`, placeholders(len(params.MemoryIDs)))
		args = stringArgs(params.MemoryIDs)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("querying delete candidates: %w", err)
	}
	var doomed []string
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		if graph.MatchesDeleteParams(node, params) {
			doomed = append(doomed, node.ID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating delete candidates: %w", err)
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	in := placeholders(len(doomed))
	doomedArgs := stringArgs(doomed)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM memory_edges WHERE source IN (%s) OR target IN (%s)`, in, in),
		append(doomedArgs, doomedArgs...)...); err != nil {
		return 0, fmt.Errorf("deleting edges: %w", err)
	}
	if err := deleteEmbeddings(ctx, tx, doomed); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM memory_nodes WHERE id IN (%s)`, in),
		doomedArgs...); err != nil {
		return 0, fmt.Errorf("deleting nodes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Info("deleted nodes by params",
		zap.Int("count", len(doomed)),
	)

	return len(doomed), nil
}

func (s *Store) AddEdge(ctx context.Context, source, target, edgeType string) error {
	if source == "" || target == "" || edgeType == "" {
		return errors.New("edge requires source, target and type")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO memory_edges (source, target, type) VALUES (?, ?, ?)
	`, source, target, edgeType)
	if err != nil {
		return fmt.Errorf("inserting edge %s-%s-%s: %w", source, edgeType, target, err)
	}
	return nil
}

func (s *Store) DeleteEdge(ctx context.Context, source, target, edgeType string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_edges WHERE source = ? AND target = ? AND type = ?
	`, source, target, edgeType)
	if err != nil {
		return fmt.Errorf("deleting edge %s-%s-%s: %w", source, edgeType, target, err)
	}
	return nil
}

func (s *Store) EdgeExists(ctx context.Context, source, target, edgeType string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM memory_edges WHERE source = ? AND target = ? AND type = ?
		)
	`, source, target, edgeType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking edge %s-%s-%s: %w", source, edgeType, target, err)
	}
	return exists, nil
}

func (s *Store) GetEdges(ctx context.Context, id, edgeType string, direction graph.Direction) ([]graph.Edge, error) {
	query := `SELECT source, target, type FROM memory_edges WHERE `
	args := []any{id}
	switch direction {
	case graph.DirectionOut:
		query += `source = ?`
	case graph.DirectionIn:
		query += `target = ?`
	default:
		query += `(source = ? OR target = ?)`
		args = append(args, id)
	}
	if edgeType != "" && edgeType != graph.EdgeTypeAny {
		query += ` AND type = ?`
		args = append(args, edgeType)
	}
	query += ` ORDER BY source, target, type`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying edges of %s: %w", id, err)
	}
	defer rows.Close()

	var out []graph.Edge
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.Source, &e.Target, &e.Type); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}
	return out, nil
}

func (s *Store) GetNode(ctx context.Context, id string, includeEmbedding bool) (*graph.Node, error) {
	var memory string
	var metaRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT memory, metadata FROM memory_nodes WHERE id = ?
	`, id).Scan(&memory, &metaRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading node %s: %w", id, err)
	}

	node, err := buildNode(id, memory, metaRaw)
	if err != nil {
		return nil, err
	}
	if includeEmbedding {
		if err := s.attachEmbedding(ctx, node); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func (s *Store) GetNodes(ctx context.Context, ids []string, includeEmbedding bool) ([]*graph.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, memory, metadata FROM memory_nodes WHERE id IN (%s)
	`, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}

	// Collect rows before issuing embedding lookups; the pool holds a
	// single connection.
	byID := make(map[string]*graph.Node, len(ids))
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		byID[node.ID] = node
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}

	out := make([]*graph.Node, 0, len(byID))
	for _, id := range ids {
		node, ok := byID[id]
		if !ok {
			continue
		}
		if includeEmbedding {
			if err := s.attachEmbedding(ctx, node); err != nil {
				return nil, err
			}
		}
		out = append(out, node)
	}
	return out, nil
}

func (s *Store) GetNeighbors(ctx context.Context, id, edgeType string, direction graph.Direction) ([]string, error) {
	edges, err := s.GetEdges(ctx, id, edgeType, graph.DirectionAny)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, e := range edges {
		if (direction == graph.DirectionOut || direction == graph.DirectionBoth || direction == graph.DirectionAny) && e.Source == id {
			set[e.Target] = struct{}{}
		}
		if (direction == graph.DirectionIn || direction == graph.DirectionBoth || direction == graph.DirectionAny) && e.Target == id {
			set[e.Source] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

// outgoing returns each frontier node's outgoing neighbors in sorted
// order, one batched query per BFS level.
func (s *Store) outgoing(ctx context.Context, ids []string, edgeType string) (map[string][]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT source, target FROM memory_edges WHERE source IN (%s)`, placeholders(len(ids)))
	args := stringArgs(ids)
	if edgeType != "" && edgeType != graph.EdgeTypeAny {
		query += ` AND type = ?`
		args = append(args, edgeType)
	}
	query += ` ORDER BY source, target`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outgoing edges: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		out[source] = append(out[source], target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}
	return out, nil
}

// touching returns each frontier node's neighbors in either direction,
// deduplicated and sorted.
func (s *Store) touching(ctx context.Context, ids []string) (map[string][]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	in := placeholders(len(ids))
	query := fmt.Sprintf(`SELECT source, target FROM memory_edges WHERE source IN (%s) OR target IN (%s)`, in, in)
	args := append(stringArgs(ids), stringArgs(ids)...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying touching edges: %w", err)
	}
	defer rows.Close()

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	sets := make(map[string]map[string]struct{})
	add := func(node, neighbor string) {
		if _, ok := wanted[node]; !ok {
			return
		}
		if sets[node] == nil {
			sets[node] = make(map[string]struct{})
		}
		sets[node][neighbor] = struct{}{}
	}
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		add(source, target)
		add(target, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}

	out := make(map[string][]string, len(sets))
	for node, set := range sets {
		out[node] = sortedKeys(set)
	}
	return out, nil
}

func (s *Store) nodeExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM memory_nodes WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking node %s: %w", id, err)
	}
	return exists, nil
}

func (s *Store) GetPath(ctx context.Context, sourceID, targetID string, maxDepth int) ([]string, error) {
	exists, err := s.nodeExists(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	if sourceID == targetID {
		return []string{sourceID}, nil
	}

	// Breadth-first over outgoing edges, neighbors in lexicographic order,
	// so equal-length paths resolve the same way on every backend.
	parent := map[string]string{sourceID: ""}
	frontier := []string{sourceID}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		neighbors, err := s.outgoing(ctx, frontier, graph.EdgeTypeAny)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, current := range frontier {
			for _, neighbor := range neighbors[current] {
				if _, visited := parent[neighbor]; visited {
					continue
				}
				parent[neighbor] = current
				if neighbor == targetID {
					return buildPath(parent, targetID), nil
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return nil, nil
}

func buildPath(parent map[string]string, target string) []string {
	var reversed []string
	for current := target; current != ""; current = parent[current] {
		reversed = append(reversed, current)
	}
	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

func (s *Store) GetSubgraph(ctx context.Context, centerID string, depth int) ([]string, error) {
	exists, err := s.nodeExists(ctx, centerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	visited := map[string]struct{}{centerID: {}}
	frontier := []string{centerID}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		neighbors, err := s.touching(ctx, frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, current := range frontier {
			for _, neighbor := range neighbors[current] {
				if _, seen := visited[neighbor]; seen {
					continue
				}
				visited[neighbor] = struct{}{}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return sortedKeys(visited), nil
}

func (s *Store) GetContextChain(ctx context.Context, id, edgeType string) ([]string, error) {
	if edgeType == "" {
		edgeType = graph.EdgeTypeFollows
	}

	exists, err := s.nodeExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	chain := []string{id}
	visited := map[string]struct{}{id: {}}
	current := id
	for {
		neighbors, err := s.outgoing(ctx, []string{current}, edgeType)
		if err != nil {
			return nil, err
		}
		advanced := false
		for _, successor := range neighbors[current] {
			if _, seen := visited[successor]; seen {
				continue
			}
			chain = append(chain, successor)
			visited[successor] = struct{}{}
			current = successor
			advanced = true
			break
		}
		if !advanced {
			return chain, nil
		}
	}
}

func (s *Store) SearchByEmbedding(ctx context.Context, vector []float32, topK int) ([]graph.SearchHit, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query embedding has %d dimensions, store expects %d", len(vector), s.dimension)
	}

	// vec0 KNN requires an explicit k; an unbounded search uses the full
	// population count.
	k := topK
	if k <= 0 {
		var total int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM node_embedding_ids`).Scan(&total); err != nil {
			return nil, fmt.Errorf("counting embeddings: %w", err)
		}
		if total == 0 {
			return nil, nil
		}
		k = total
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT n.node_id, ve.distance
		FROM node_embeddings ve
		INNER JOIN node_embedding_ids n ON n.rowid = ve.rowid
		WHERE ve.embedding MATCH ? AND ve.k = ?
		ORDER BY ve.distance
	`, serializeFloat32(vector), k)
	if err != nil {
		return nil, fmt.Errorf("searching by embedding: %w", err)
	}
	defer rows.Close()

	var hits []graph.SearchHit
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, graph.SearchHit{
			ID: id,
			// Lower distance means higher similarity.
			Score: float32(1.0 / (1.0 + distance)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return hits, nil
}

func (s *Store) GetByMetadata(ctx context.Context, filters []graph.Filter, status string) ([]string, error) {
	query := `SELECT id, memory, metadata FROM memory_nodes`
	var args []any
	if status != "" {
		query += ` WHERE json_extract(metadata, '$.status') = ?`
		args = append(args, status)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying by metadata: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		if graph.MatchesFilters(node, filters) {
			ids = append(ids, node.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetNeighborsByTag(ctx context.Context, tags, excludeIDs []string, topK, minOverlap int) ([]*graph.Node, error) {
	if minOverlap < 1 {
		minOverlap = 1
	}
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory, metadata FROM memory_nodes
		WHERE json_extract(metadata, '$.tags') IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("querying tagged nodes: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		node    *graph.Node
		overlap int
	}
	var candidates []candidate
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		if _, skip := excluded[node.ID]; skip {
			continue
		}
		overlap := 0
		seen := make(map[string]struct{})
		for _, tag := range node.Tags() {
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			if _, ok := want[tag]; ok {
				overlap++
			}
		}
		if overlap >= minOverlap {
			candidates = append(candidates, candidate{node: node, overlap: overlap})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tagged nodes: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].node.ID < candidates[j].node.ID
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]*graph.Node, len(candidates))
	for i, c := range candidates {
		out[i] = c.node
	}
	return out, nil
}

func (s *Store) GetAllMemoryItems(ctx context.Context, scope string, includeEmbedding bool, status string) ([]*graph.Node, error) {
	if !graph.ValidScope(scope) {
		return nil, graph.InvalidScopeError{Scope: scope}
	}

	query := `
		SELECT id, memory, metadata FROM memory_nodes
		WHERE json_extract(metadata, '$.memory_type') = ?
	`
	args := []any{scope}
	if status != "" {
		query += ` AND json_extract(metadata, '$.status') = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memory items: %w", err)
	}

	var out []*graph.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, node)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memory items: %w", err)
	}

	if includeEmbedding {
		for _, node := range out {
			if err := s.attachEmbedding(ctx, node); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (s *Store) GetStructureOptimizationCandidates(ctx context.Context, scope string, includeEmbedding bool) ([]*graph.Node, error) {
	if !graph.ValidScope(scope) {
		return nil, graph.InvalidScopeError{Scope: scope}
	}

	edgeRows, err := s.db.QueryContext(ctx, `SELECT source, target, type FROM memory_edges`)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	childCount := make(map[string]int)
	parentsOf := make(map[string][]string)
	touched := make(map[string]struct{})
	for edgeRows.Next() {
		var source, target, kind string
		if err := edgeRows.Scan(&source, &target, &kind); err != nil {
			edgeRows.Close()
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		touched[source] = struct{}{}
		touched[target] = struct{}{}
		if kind == graph.EdgeTypeParent {
			childCount[source]++
			parentsOf[target] = append(parentsOf[target], source)
		}
	}
	edgeRows.Close()
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory, metadata FROM memory_nodes
		WHERE json_extract(metadata, '$.memory_type') = ?
		ORDER BY id
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}

	var out []*graph.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}

		_, hasEdges := touched[node.ID]
		isolated := !hasEdges
		emptyBackground := node.Background() == ""
		oneChild := childCount[node.ID] == 1
		soleChild := false
		for _, p := range parentsOf[node.ID] {
			if childCount[p] == 1 {
				soleChild = true
				break
			}
		}

		if isolated || emptyBackground || oneChild || soleChild {
			out = append(out, node)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}

	if includeEmbedding {
		for _, node := range out {
			if err := s.attachEmbedding(ctx, node); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (s *Store) MergeNodes(ctx context.Context, id1, id2 string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	n1, err := loadNodeTx(ctx, tx, id1)
	if err != nil {
		return "", err
	}
	if n1 == nil {
		return "", graph.NotFoundError{ID: id1}
	}
	if id1 == id2 {
		return id1, nil
	}
	n2, err := loadNodeTx(ctx, tx, id2)
	if err != nil {
		return "", err
	}
	if n2 == nil {
		return "", graph.NotFoundError{ID: id2}
	}

	survivor, absorbed := graph.MergeSurvivor(n1, n2)
	graph.AbsorbMetadata(survivor, absorbed, time.Now())

	metaJSON, embedding, err := s.writeValues(survivor.Metadata)
	if err != nil {
		return "", fmt.Errorf("node %s: %w", survivor.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE memory_nodes SET memory = ?, metadata = ? WHERE id = ?
	`, survivor.Memory, string(metaJSON), survivor.ID); err != nil {
		return "", fmt.Errorf("updating survivor %s: %w", survivor.ID, err)
	}
	if err := s.setEmbedding(ctx, tx, survivor.ID, embedding); err != nil {
		return "", err
	}

	// Re-point the absorbed node's edges, dropping self-loops; the
	// composite primary key absorbs duplicate triples.
	edgeRows, err := tx.QueryContext(ctx, `
		SELECT source, target, type FROM memory_edges WHERE source = ? OR target = ?
	`, absorbed.ID, absorbed.ID)
	if err != nil {
		return "", fmt.Errorf("querying absorbed edges: %w", err)
	}
	var absorbedEdges []graph.Edge
	for edgeRows.Next() {
		var e graph.Edge
		if err := edgeRows.Scan(&e.Source, &e.Target, &e.Type); err != nil {
			edgeRows.Close()
			return "", fmt.Errorf("scanning absorbed edge: %w", err)
		}
		absorbedEdges = append(absorbedEdges, e)
	}
	edgeRows.Close()
	if err := edgeRows.Err(); err != nil {
		return "", fmt.Errorf("iterating absorbed edges: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM memory_edges WHERE source = ? OR target = ?
	`, absorbed.ID, absorbed.ID); err != nil {
		return "", fmt.Errorf("deleting absorbed edges: %w", err)
	}
	for _, e := range absorbedEdges {
		if e.Source == absorbed.ID {
			e.Source = survivor.ID
		}
		if e.Target == absorbed.ID {
			e.Target = survivor.ID
		}
		if e.Source == e.Target {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO memory_edges (source, target, type) VALUES (?, ?, ?)
		`, e.Source, e.Target, e.Type); err != nil {
			return "", fmt.Errorf("re-pointing edge: %w", err)
		}
	}

	if err := deleteEmbeddings(ctx, tx, []string{absorbed.ID}); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_nodes WHERE id = ?`, absorbed.ID); err != nil {
		return "", fmt.Errorf("deleting absorbed node %s: %w", absorbed.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing merge: %w", err)
	}

	s.logger.Debug("merged nodes",
		zap.String("survivor", survivor.ID),
		zap.String("absorbed", absorbed.ID),
	)

	return survivor.ID, nil
}

func (s *Store) ExportGraph(ctx context.Context, includeEmbedding bool) (*graph.Snapshot, error) {
	snap := &graph.Snapshot{Nodes: []*graph.Node{}, Edges: []graph.Edge{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory, metadata FROM memory_nodes ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.Nodes = append(snap.Nodes, node)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}

	if includeEmbedding {
		for _, node := range snap.Nodes {
			if err := s.attachEmbedding(ctx, node); err != nil {
				return nil, err
			}
		}
	}

	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT source, target, type FROM memory_edges ORDER BY source, target, type
	`)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var e graph.Edge
		if err := edgeRows.Scan(&e.Source, &e.Target, &e.Type); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		snap.Edges = append(snap.Edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}
	return snap, nil
}

func (s *Store) ImportGraph(ctx context.Context, snap *graph.Snapshot) error {
	if snap == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, node := range snap.Nodes {
		if node == nil || node.ID == "" {
			continue
		}
		metaJSON, embedding, err := s.writeValues(node.Metadata)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_nodes (id, memory, metadata) VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET memory = excluded.memory, metadata = excluded.metadata
		`, node.ID, node.Memory, string(metaJSON)); err != nil {
			return fmt.Errorf("importing node %s: %w", node.ID, err)
		}
		if err := s.setEmbedding(ctx, tx, node.ID, embedding); err != nil {
			return err
		}
	}
	for _, e := range snap.Edges {
		if e.Source == "" || e.Target == "" || e.Type == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO memory_edges (source, target, type) VALUES (?, ?, ?)
		`, e.Source, e.Target, e.Type); err != nil {
			return fmt.Errorf("importing edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM memory_edges`,
		`DELETE FROM node_embeddings`,
		`DELETE FROM node_embedding_ids`,
		`DELETE FROM memory_nodes`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing graph: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing clear: %w", err)
	}
	return nil
}

func (s *Store) GetUserNamesByMemoryIDs(ctx context.Context, memoryIDs []string) ([]string, error) {
	if len(memoryIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT json_extract(metadata, '$.user_name')
		FROM memory_nodes
		WHERE id IN (%s) AND COALESCE(json_extract(metadata, '$.user_name'), '') <> ''
		ORDER BY 1
	`, placeholders(len(memoryIDs)))
	rows, err := s.db.QueryContext(ctx, query, stringArgs(memoryIDs)...)
	if err != nil {
		return nil, fmt.Errorf("querying user names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning user name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user names: %w", err)
	}
	return names, nil
}

func (s *Store) ExistUserName(ctx context.Context, userName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM memory_nodes WHERE json_extract(metadata, '$.user_name') = ?
		)
	`, userName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking user name: %w", err)
	}
	return exists, nil
}

// SearchByFulltext requires every query word and ranks matches in Go by
// occurrence count, since SQLite carries no ts_rank equivalent here.
func (s *Store) SearchByFulltext(ctx context.Context, queryWords []string, topK int) ([]graph.SearchHit, error) {
	words := cleanWords(queryWords)
	if len(words) == 0 {
		return nil, nil
	}

	conds := make([]string, len(words))
	args := make([]any, len(words))
	for i, w := range words {
		conds[i] = `memory LIKE '%' || ? || '%'`
		args[i] = w
	}
	query := `SELECT id, memory FROM memory_nodes WHERE ` + strings.Join(conds, " AND ")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying fulltext candidates: %w", err)
	}
	defer rows.Close()

	var hits []graph.SearchHit
	for rows.Next() {
		var id, memory string
		if err := rows.Scan(&id, &memory); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		lower := strings.ToLower(memory)
		occurrences := 0
		for _, w := range words {
			occurrences += strings.Count(lower, strings.ToLower(w))
		}
		hits = append(hits, graph.SearchHit{ID: id, Score: float32(occurrences)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}

	sortHits(hits)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// SearchByKeywordsLike matches the memory text with a case-insensitive
// substring pattern. LIKE has no rank, so every hit scores 1.
func (s *Store) SearchByKeywordsLike(ctx context.Context, queryWord string, topK int) ([]graph.SearchHit, error) {
	if strings.TrimSpace(queryWord) == "" {
		return nil, nil
	}

	query := `
		SELECT id FROM memory_nodes
		WHERE memory LIKE '%' || ? || '%'
		ORDER BY id
	`
	args := []any{queryWord}
	if topK > 0 {
		query += ` LIMIT ?`
		args = append(args, topK)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying keyword hits: %w", err)
	}
	defer rows.Close()

	var hits []graph.SearchHit
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, graph.SearchHit{ID: id, Score: 1})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return hits, nil
}

// SearchByKeywordsTFIDF ranks candidates matching any query word by
// term-frequency times inverse document frequency, computed in Go over
// the candidate set.
func (s *Store) SearchByKeywordsTFIDF(ctx context.Context, queryWords []string, topK int) ([]graph.SearchHit, error) {
	words := cleanWords(queryWords)
	if len(words) == 0 {
		return nil, nil
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_nodes`).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting nodes: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	conds := make([]string, len(words))
	args := make([]any, len(words))
	for i, w := range words {
		conds[i] = `memory LIKE '%' || ? || '%'`
		args[i] = w
	}
	query := `SELECT id, memory FROM memory_nodes WHERE ` + strings.Join(conds, " OR ")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tfidf candidates: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id     string
		counts []int
		tokens int
	}
	var candidates []candidate
	docFreq := make([]int, len(words))
	for rows.Next() {
		var id, memory string
		if err := rows.Scan(&id, &memory); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		lower := strings.ToLower(memory)
		c := candidate{id: id, counts: make([]int, len(words)), tokens: len(strings.Fields(memory))}
		for i, w := range words {
			c.counts[i] = strings.Count(lower, strings.ToLower(w))
			if c.counts[i] > 0 {
				docFreq[i]++
			}
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}

	var hits []graph.SearchHit
	for _, c := range candidates {
		tokens := c.tokens
		if tokens == 0 {
			tokens = 1
		}
		score := 0.0
		for i := range words {
			if c.counts[i] == 0 {
				continue
			}
			tf := float64(c.counts[i]) / float64(tokens)
			idf := math.Log(float64(total+1)/float64(docFreq[i]+1)) + 1
			score += tf * idf
		}
		if score > 0 {
			hits = append(hits, graph.SearchHit{ID: c.id, Score: float32(score)})
		}
	}

	sortHits(hits)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// writeValues splits a metadata map into the JSON document and the
// embedding vector. The embedding key never persists inside the JSON.
func (s *Store) writeValues(metadata map[string]any) ([]byte, []float32, error) {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if k == graph.KeyEmbedding {
			continue
		}
		meta[k] = v
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	vec := graph.EmbeddingValue(metadata, graph.KeyEmbedding)
	if len(vec) == 0 {
		return metaJSON, nil, nil
	}
	if s.dimension > 0 && len(vec) != s.dimension {
		return nil, nil, fmt.Errorf("embedding has %d dimensions, store expects %d", len(vec), s.dimension)
	}
	return metaJSON, vec, nil
}

// setEmbedding reconciles the vec0 row for a node inside the caller's
// transaction. An empty vector removes any stored embedding; vec0 does
// not support UPDATE, so replacement is DELETE + INSERT.
func (s *Store) setEmbedding(ctx context.Context, tx *sql.Tx, id string, vec []float32) error {
	var rowID int64
	err := tx.QueryRowContext(ctx,
		`SELECT rowid FROM node_embedding_ids WHERE node_id = ?`, id,
	).Scan(&rowID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if len(vec) == 0 {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO node_embedding_ids (node_id) VALUES (?)`, id)
		if err != nil {
			return fmt.Errorf("mapping embedding for %s: %w", id, err)
		}
		rowID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("mapping embedding for %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO node_embeddings (rowid, embedding) VALUES (?, ?)`,
			rowID, serializeFloat32(vec)); err != nil {
			return fmt.Errorf("inserting embedding for %s: %w", id, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("looking up embedding for %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM node_embeddings WHERE rowid = ?`, rowID); err != nil {
		return fmt.Errorf("deleting old embedding for %s: %w", id, err)
	}
	if len(vec) == 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM node_embedding_ids WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("unmapping embedding for %s: %w", id, err)
		}
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO node_embeddings (rowid, embedding) VALUES (?, ?)`,
		rowID, serializeFloat32(vec)); err != nil {
		return fmt.Errorf("re-inserting embedding for %s: %w", id, err)
	}
	return nil
}

// deleteEmbeddings removes vec0 rows and their mappings for the given
// node ids inside the caller's transaction.
func deleteEmbeddings(ctx context.Context, tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`SELECT rowid FROM node_embedding_ids WHERE node_id IN (%s)`, placeholders(len(ids)))
	rows, err := tx.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("querying embedding rowids: %w", err)
	}
	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM node_embeddings WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}
	del := fmt.Sprintf(`DELETE FROM node_embedding_ids WHERE node_id IN (%s)`, placeholders(len(ids)))
	if _, err := tx.ExecContext(ctx, del, stringArgs(ids)...); err != nil {
		return fmt.Errorf("deleting embedding mappings: %w", err)
	}
	return nil
}

// attachEmbedding loads a node's vector, if any, into its metadata.
func (s *Store) attachEmbedding(ctx context.Context, node *graph.Node) error {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT ve.embedding
		FROM node_embedding_ids n
		INNER JOIN node_embeddings ve ON ve.rowid = n.rowid
		WHERE n.node_id = ?
	`, node.ID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading embedding of %s: %w", node.ID, err)
	}
	if len(blob) == 0 {
		return nil
	}

	vec, err := deserializeFloat32(blob)
	if err != nil {
		return fmt.Errorf("embedding of %s: %w", node.ID, err)
	}
	if len(vec) > 0 {
		node.Metadata[graph.KeyEmbedding] = vec
	}
	return nil
}

// loadNodeTx loads a node with its embedding inside a transaction,
// returning nil when the id is absent.
func loadNodeTx(ctx context.Context, tx *sql.Tx, id string) (*graph.Node, error) {
	var memory string
	var metaRaw []byte
	err := tx.QueryRowContext(ctx, `
		SELECT memory, metadata FROM memory_nodes WHERE id = ?
	`, id).Scan(&memory, &metaRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading node %s: %w", id, err)
	}

	node, err := buildNode(id, memory, metaRaw)
	if err != nil {
		return nil, err
	}

	var blob []byte
	err = tx.QueryRowContext(ctx, `
		SELECT ve.embedding
		FROM node_embedding_ids n
		INNER JOIN node_embeddings ve ON ve.rowid = n.rowid
		WHERE n.node_id = ?
	`, id).Scan(&blob)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loading embedding of %s: %w", id, err)
	}
	if len(blob) > 0 {
		vec, err := deserializeFloat32(blob)
		if err != nil {
			return nil, fmt.Errorf("embedding of %s: %w", id, err)
		}
		if len(vec) > 0 {
			node.Metadata[graph.KeyEmbedding] = vec
		}
	}
	return node, nil
}

// serializeFloat32 converts a vector to the little-endian BLOB format
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func scanNode(rows *sql.Rows) (*graph.Node, error) {
	var id, memory string
	var metaRaw []byte
	if err := rows.Scan(&id, &memory, &metaRaw); err != nil {
		return nil, fmt.Errorf("scanning node: %w", err)
	}
	return buildNode(id, memory, metaRaw)
}

func buildNode(id, memory string, metaRaw []byte) (*graph.Node, error) {
	meta := make(map[string]any)
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata of %s: %w", id, err)
		}
	}
	delete(meta, graph.KeyEmbedding)
	return &graph.Node{ID: id, Memory: memory, Metadata: meta}, nil
}

func cloneMetadata(metadata map[string]any) map[string]any {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return meta
}

func cleanWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if trimmed := strings.TrimSpace(w); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// sortHits orders by score descending with ascending-id tie-break.
func sortHits(hits []graph.SearchHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
