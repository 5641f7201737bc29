// Package inmemory implements the graph store contract with in-process
// maps. It is the reference backend: deterministic, dependency-free, and
// the one the test suites and the maintenance engine's unit tests run
// against.
package inmemory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/anatolykoptev/MemOS/pkg/graph"
)

type edgeKey struct {
	source string
	target string
	kind   string
}

// Store implements graph.Store with RWMutex-guarded maps. Mutations take
// the write lock for their whole span, which gives the per-id
// serialization and cascade atomicity the contract requires.
type Store struct {
	mu sync.RWMutex

	// nodes maps node id to the authoritative copy of the node.
	nodes map[string]*graph.Node

	// edges is the set of edge triples; the triple is the natural key.
	edges map[edgeKey]struct{}

	// seq records insertion order per node id for stable similarity ties.
	seq     map[string]int
	nextSeq int
}

var _ graph.Store = (*Store)(nil)

// NewStore creates an empty in-memory graph store.
func NewStore() *Store {
	return &Store{
		nodes: make(map[string]*graph.Node),
		edges: make(map[edgeKey]struct{}),
		seq:   make(map[string]int),
	}
}

func (s *Store) AddNode(_ context.Context, id, memory string, metadata map[string]any) error {
	if id == "" {
		return errors.New("node id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addNodeLocked(id, memory, metadata)
}

func (s *Store) addNodeLocked(id, memory string, metadata map[string]any) error {
	if _, ok := s.nodes[id]; ok {
		return graph.DuplicateIDError{ID: id}
	}

	node := (&graph.Node{ID: id, Memory: memory, Metadata: metadata}).Clone()
	if node.Metadata == nil {
		node.Metadata = make(map[string]any)
	}
	graph.EnsureTimestamps(node.Metadata, time.Now())

	s.nodes[id] = node
	s.seq[id] = s.nextSeq
	s.nextSeq++
	return nil
}

func (s *Store) AddNodes(_ context.Context, nodes []*graph.Node, userName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before touching state: the batch is
	// all-or-nothing.
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			return errors.New("batch contains a node without an id")
		}
		if _, dup := seen[n.ID]; dup {
			return graph.DuplicateIDError{ID: n.ID}
		}
		if _, exists := s.nodes[n.ID]; exists {
			return graph.DuplicateIDError{ID: n.ID}
		}
		seen[n.ID] = struct{}{}
	}

	for _, n := range nodes {
		c := n.Clone()
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		graph.ApplyUserName(c.Metadata, userName)
		if err := s.addNodeLocked(c.ID, c.Memory, c.Metadata); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateNode(_ context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
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
	return nil
}

func (s *Store) DeleteNode(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteNodeLocked(id)
	return nil
}

// deleteNodeLocked removes a node and every edge touching it; holding the
// write lock for the whole span makes the cascade atomic.
func (s *Store) deleteNodeLocked(id string) {
	delete(s.nodes, id)
	delete(s.seq, id)
	for k := range s.edges {
		if k.source == id || k.target == id {
			delete(s.edges, k)
		}
	}
}

func (s *Store) DeleteNodesByParams(_ context.Context, params graph.DeleteParams) (int, error) {
	if params.Empty() {
		return 0, errors.New("delete params: no selection provided")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var doomed []string
	for id, node := range s.nodes {
		if !graph.MatchesDeleteParams(node, params) {
			continue
		}
		doomed = append(doomed, id)
	}
	for _, id := range doomed {
		s.deleteNodeLocked(id)
	}
	return len(doomed), nil
}

func (s *Store) AddEdge(_ context.Context, source, target, edgeType string) error {
	if source == "" || target == "" || edgeType == "" {
		return errors.New("edge requires source, target and type")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotent: the triple set cannot hold duplicates.
	s.edges[edgeKey{source, target, edgeType}] = struct{}{}
	return nil
}

func (s *Store) DeleteEdge(_ context.Context, source, target, edgeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.edges, edgeKey{source, target, edgeType})
	return nil
}

func (s *Store) EdgeExists(_ context.Context, source, target, edgeType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.edges[edgeKey{source, target, edgeType}]
	return ok, nil
}

func (s *Store) GetEdges(_ context.Context, id, edgeType string, direction graph.Direction) ([]graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graph.Edge
	for k := range s.edges {
		if edgeType != graph.EdgeTypeAny && k.kind != edgeType {
			continue
		}
		switch direction {
		case graph.DirectionOut:
			if k.source != id {
				continue
			}
		case graph.DirectionIn:
			if k.target != id {
				continue
			}
		default:
			if k.source != id && k.target != id {
				continue
			}
		}
		out = append(out, graph.Edge{Source: k.source, Target: k.target, Type: k.kind})
	}
	sortEdges(out)
	return out, nil
}

func (s *Store) GetNode(_ context.Context, id string, includeEmbedding bool) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	if includeEmbedding {
		return node.Clone(), nil
	}
	return node.WithoutEmbedding(), nil
}

func (s *Store) GetNodes(_ context.Context, ids []string, includeEmbedding bool) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*graph.Node, 0, len(ids))
	for _, id := range ids {
		node, ok := s.nodes[id]
		if !ok {
			continue
		}
		if includeEmbedding {
			out = append(out, node.Clone())
		} else {
			out = append(out, node.WithoutEmbedding())
		}
	}
	return out, nil
}

func (s *Store) GetNeighbors(_ context.Context, id, edgeType string, direction graph.Direction) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.neighborsLocked(id, edgeType, direction), nil
}

func (s *Store) neighborsLocked(id, edgeType string, direction graph.Direction) []string {
	set := make(map[string]struct{})
	for k := range s.edges {
		if edgeType != graph.EdgeTypeAny && k.kind != edgeType {
			continue
		}
		if (direction == graph.DirectionOut || direction == graph.DirectionBoth || direction == graph.DirectionAny) && k.source == id {
			set[k.target] = struct{}{}
		}
		if (direction == graph.DirectionIn || direction == graph.DirectionBoth || direction == graph.DirectionAny) && k.target == id {
			set[k.source] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func (s *Store) GetPath(_ context.Context, sourceID, targetID string, maxDepth int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[sourceID]; !ok {
		return nil, nil
	}
	if sourceID == targetID {
		return []string{sourceID}, nil
	}

	// Breadth-first over outgoing edges, visiting neighbors in
	// lexicographic order so equal-length paths resolve deterministically.
	parent := map[string]string{sourceID: ""}
	frontier := []string{sourceID}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, current := range frontier {
			for _, neighbor := range s.neighborsLocked(current, graph.EdgeTypeAny, graph.DirectionOut) {
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

func (s *Store) GetSubgraph(_ context.Context, centerID string, depth int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[centerID]; !ok {
		return nil, nil
	}

	visited := map[string]struct{}{centerID: {}}
	frontier := []string{centerID}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, current := range frontier {
			for _, neighbor := range s.neighborsLocked(current, graph.EdgeTypeAny, graph.DirectionBoth) {
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

func (s *Store) GetContextChain(_ context.Context, id, edgeType string) ([]string, error) {
	if edgeType == "" {
		edgeType = graph.EdgeTypeFollows
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[id]; !ok {
		return nil, nil
	}

	// The visited set breaks cycles: a chain revisiting a node terminates
	// rather than looping forever.
	chain := []string{id}
	visited := map[string]struct{}{id: {}}
	current := id
	for {
		successors := s.neighborsLocked(current, edgeType, graph.DirectionOut)
		advanced := false
		for _, successor := range successors {
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

func (s *Store) SearchByEmbedding(_ context.Context, vector []float32, topK int) ([]graph.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		hit graph.SearchHit
		seq int
	}
	var results []scored
	for id, node := range s.nodes {
		embedding := node.Embedding()
		if len(embedding) == 0 {
			continue
		}
		score, ok := cosineSimilarity(vector, embedding)
		if !ok {
			continue
		}
		results = append(results, scored{hit: graph.SearchHit{ID: id, Score: score}, seq: s.seq[id]})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].hit.Score != results[j].hit.Score {
			return results[i].hit.Score > results[j].hit.Score
		}
		return results[i].seq < results[j].seq
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	hits := make([]graph.SearchHit, len(results))
	for i, r := range results {
		hits[i] = r.hit
	}
	return hits, nil
}

func cosineSimilarity(a, b []float32) (float32, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), true
}

func (s *Store) GetByMetadata(_ context.Context, filters []graph.Filter, status string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, node := range s.nodes {
		if status != "" && node.Status() != status {
			continue
		}
		if !graph.MatchesFilters(node, filters) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetNeighborsByTag(_ context.Context, tags, excludeIDs []string, topK, minOverlap int) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

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

	type candidate struct {
		node    *graph.Node
		overlap int
	}
	var candidates []candidate
	for id, node := range s.nodes {
		if _, skip := excluded[id]; skip {
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
		out[i] = c.node.WithoutEmbedding()
	}
	return out, nil
}

func (s *Store) GetAllMemoryItems(_ context.Context, scope string, includeEmbedding bool, status string) ([]*graph.Node, error) {
	if !graph.ValidScope(scope) {
		return nil, graph.InvalidScopeError{Scope: scope}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*graph.Node
	for _, node := range s.nodes {
		if node.MemoryType() != scope {
			continue
		}
		if status != "" && node.Status() != status {
			continue
		}
		if includeEmbedding {
			out = append(out, node.Clone())
		} else {
			out = append(out, node.WithoutEmbedding())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetStructureOptimizationCandidates(_ context.Context, scope string, includeEmbedding bool) ([]*graph.Node, error) {
	if !graph.ValidScope(scope) {
		return nil, graph.InvalidScopeError{Scope: scope}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	childCount := make(map[string]int)
	parentsOf := make(map[string][]string)
	touched := make(map[string]struct{})
	for k := range s.edges {
		touched[k.source] = struct{}{}
		touched[k.target] = struct{}{}
		if k.kind == graph.EdgeTypeParent {
			childCount[k.source]++
			parentsOf[k.target] = append(parentsOf[k.target], k.source)
		}
	}

	var out []*graph.Node
	for id, node := range s.nodes {
		if node.MemoryType() != scope {
			continue
		}

		_, hasEdges := touched[id]
		isolated := !hasEdges
		emptyBackground := node.Background() == ""
		oneChild := childCount[id] == 1
		soleChild := false
		for _, p := range parentsOf[id] {
			if childCount[p] == 1 {
				soleChild = true
				break
			}
		}

		if isolated || emptyBackground || oneChild || soleChild {
			if includeEmbedding {
				out = append(out, node.Clone())
			} else {
				out = append(out, node.WithoutEmbedding())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MergeNodes(_ context.Context, id1, id2 string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n1, ok := s.nodes[id1]
	if !ok {
		return "", graph.NotFoundError{ID: id1}
	}
	n2, ok := s.nodes[id2]
	if !ok {
		return "", graph.NotFoundError{ID: id2}
	}
	if id1 == id2 {
		return id1, nil
	}

	survivor, absorbed := graph.MergeSurvivor(n1, n2)
	graph.AbsorbMetadata(survivor, absorbed, time.Now())

	// Re-point the absorbed node's edges, dropping self-loops; the set
	// representation drops duplicate triples on its own.
	for k := range s.edges {
		if k.source != absorbed.ID && k.target != absorbed.ID {
			continue
		}
		delete(s.edges, k)
		next := k
		if next.source == absorbed.ID {
			next.source = survivor.ID
		}
		if next.target == absorbed.ID {
			next.target = survivor.ID
		}
		if next.source == next.target {
			continue
		}
		s.edges[next] = struct{}{}
	}

	delete(s.nodes, absorbed.ID)
	delete(s.seq, absorbed.ID)
	return survivor.ID, nil
}

func (s *Store) ExportGraph(_ context.Context, includeEmbedding bool) (*graph.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &graph.Snapshot{
		Nodes: make([]*graph.Node, 0, len(s.nodes)),
		Edges: make([]graph.Edge, 0, len(s.edges)),
	}
	for _, node := range s.nodes {
		if includeEmbedding {
			snap.Nodes = append(snap.Nodes, node.Clone())
		} else {
			snap.Nodes = append(snap.Nodes, node.WithoutEmbedding())
		}
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })

	for k := range s.edges {
		snap.Edges = append(snap.Edges, graph.Edge{Source: k.source, Target: k.target, Type: k.kind})
	}
	sortEdges(snap.Edges)
	return snap, nil
}

func (s *Store) ImportGraph(_ context.Context, snap *graph.Snapshot) error {
	if snap == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, node := range snap.Nodes {
		if node == nil || node.ID == "" {
			continue
		}
		c := node.Clone()
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		if _, exists := s.nodes[c.ID]; !exists {
			s.seq[c.ID] = s.nextSeq
			s.nextSeq++
		}
		s.nodes[c.ID] = c
	}
	for _, e := range snap.Edges {
		if e.Source == "" || e.Target == "" || e.Type == "" {
			continue
		}
		s.edges[edgeKey{e.Source, e.Target, e.Type}] = struct{}{}
	}
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*graph.Node)
	s.edges = make(map[edgeKey]struct{})
	s.seq = make(map[string]int)
	return nil
}

func (s *Store) GetUserNamesByMemoryIDs(_ context.Context, memoryIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{})
	for _, id := range memoryIDs {
		node, ok := s.nodes[id]
		if !ok {
			continue
		}
		if owner := node.UserName(); owner != "" {
			set[owner] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (s *Store) ExistUserName(_ context.Context, userName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, node := range s.nodes {
		if node.UserName() == userName {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of nodes in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func sortEdges(edges []graph.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		if edges[i].Target != edges[j].Target {
			return edges[i].Target < edges[j].Target
		}
		return edges[i].Type < edges[j].Type
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
