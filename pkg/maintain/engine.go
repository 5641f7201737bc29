// Package maintain provides the structure maintenance engine layered on
// top of the graph store: near-duplicate collapse, conflict detection,
// merge orchestration, and structure-optimization candidate reporting.
//
// The engine never talks to a backend directly. It reads through the
// store contract, compares node contents by embedding similarity, and
// hands every mutation to the store so the backend can keep merges
// atomic. Maintenance runs are batch work — the serve surface exposes
// them through the maintain CLI command, not the request path.
package maintain

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/embeddings"
	"github.com/anatolykoptev/MemOS/pkg/eventstream"
	"github.com/anatolykoptev/MemOS/pkg/graph"
)

const (
	// DefaultSimilarityThreshold is the cosine similarity at or above
	// which two nodes are treated as near-duplicates.
	DefaultSimilarityThreshold = 0.92

	// DefaultConflictFloor is the cosine similarity at or above which two
	// nodes are close enough in subject for contradiction checks to be
	// meaningful.
	DefaultConflictFloor = 0.75
)

// DefaultConflictMarkers are the negation markers the conflict detector
// looks for. A pair conflicts when the texts are similar in subject but
// disagree on negation.
var DefaultConflictMarkers = []string{
	"not", "no longer", "never", "isn't", "doesn't", "won't", "cannot", "false",
}

// Config holds configuration for the maintenance engine.
type Config struct {
	// Store is the graph store maintenance operates on.
	Store graph.Store

	// Embedder fills in vectors for nodes that don't carry one. Missing
	// vectors for a whole scope are computed in a single batch call.
	Embedder embeddings.Embedder

	// Publisher receives merge events. Optional; nil drops them.
	Publisher eventstream.Publisher

	// SimilarityThreshold overrides DefaultSimilarityThreshold when > 0.
	SimilarityThreshold float32

	// ConflictFloor overrides DefaultConflictFloor when > 0.
	ConflictFloor float32

	// ConflictMarkers overrides DefaultConflictMarkers when non-empty.
	ConflictMarkers []string

	// Logger is the configured zap logger.
	Logger *zap.Logger
}

// Engine runs maintenance passes over one memory scope at a time.
type Engine struct {
	store     graph.Store
	embedder  embeddings.Embedder
	publisher eventstream.Publisher
	threshold float32
	floor     float32
	markers   []string
	logger    *zap.Logger
}

// Merge records one collapse performed by a deduplication pass.
type Merge struct {
	Survivor   string  `json:"survivor"`
	Absorbed   string  `json:"absorbed"`
	Similarity float32 `json:"similarity"`
}

// DedupReport summarizes a deduplication pass.
type DedupReport struct {
	Scope    string  `json:"scope"`
	Examined int     `json:"examined"`
	Merges   []Merge `json:"merges"`
}

// ConflictPair is a pair of node ids whose contents disagree. The pair is
// ordered so ID1 < ID2.
type ConflictPair struct {
	ID1        string  `json:"id1"`
	ID2        string  `json:"id2"`
	Similarity float32 `json:"similarity"`
}

// NewEngine validates the configuration and builds an engine.
func NewEngine(c Config) (*Engine, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("graph store is required")
	}
	if c.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if c.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	threshold := c.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	floor := c.ConflictFloor
	if floor <= 0 {
		floor = DefaultConflictFloor
	}
	markers := c.ConflictMarkers
	if len(markers) == 0 {
		markers = DefaultConflictMarkers
	}

	return &Engine{
		store:     c.Store,
		embedder:  c.Embedder,
		publisher: c.Publisher,
		threshold: threshold,
		floor:     floor,
		markers:   markers,
		logger:    c.Logger,
	}, nil
}

// DeduplicateNodes collapses near-duplicate nodes in the scope. Nodes are
// paired by cosine similarity of their embeddings; every pair at or above
// the threshold is merged through the store, which re-points the absorbed
// node's edges to the survivor as one atomic step. Edges are never lost.
func (e *Engine) DeduplicateNodes(ctx context.Context, scope string) (*DedupReport, error) {
	nodes, vectors, err := e.scopeVectors(ctx, scope)
	if err != nil {
		return nil, err
	}

	report := &DedupReport{Scope: scope, Examined: len(nodes)}

	// Pairs are visited in lexicographic id order and absorbed ids are
	// skipped, so a node merges at most once per pass and the outcome is
	// deterministic.
	absorbed := make(map[string]struct{})
	for i := 0; i < len(nodes); i++ {
		if _, gone := absorbed[nodes[i].ID]; gone {
			continue
		}
		for j := i + 1; j < len(nodes); j++ {
			if _, gone := absorbed[nodes[j].ID]; gone {
				continue
			}

			similarity, ok := cosine(vectors[i], vectors[j])
			if !ok || similarity < e.threshold {
				continue
			}

			survivor, err := e.store.MergeNodes(ctx, nodes[i].ID, nodes[j].ID)
			if err != nil {
				return report, fmt.Errorf("merging %s and %s: %w", nodes[i].ID, nodes[j].ID, err)
			}

			loser := nodes[j].ID
			if survivor == nodes[j].ID {
				loser = nodes[i].ID
			}
			absorbed[loser] = struct{}{}

			report.Merges = append(report.Merges, Merge{
				Survivor:   survivor,
				Absorbed:   loser,
				Similarity: similarity,
			})
			e.publishMerge(ctx, scope, survivor, loser)

			e.logger.Info("merged near-duplicate nodes",
				zap.String("survivor", survivor),
				zap.String("absorbed", loser),
				zap.Float32("similarity", similarity),
			)

			if loser == nodes[i].ID {
				break
			}
		}
	}

	return report, nil
}

// DetectConflicts returns pairs of nodes whose contents are similar in
// subject but disagree on negation. The detector never mutates the graph;
// resolving a conflict is the caller's decision.
func (e *Engine) DetectConflicts(ctx context.Context, scope string) ([]ConflictPair, error) {
	nodes, vectors, err := e.scopeVectors(ctx, scope)
	if err != nil {
		return nil, err
	}

	var pairs []ConflictPair
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			similarity, ok := cosine(vectors[i], vectors[j])
			if !ok || similarity < e.floor {
				continue
			}
			if !e.negationDisagreement(nodes[i].Memory, nodes[j].Memory) {
				continue
			}
			pairs = append(pairs, ConflictPair{
				ID1:        nodes[i].ID,
				ID2:        nodes[j].ID,
				Similarity: similarity,
			})
		}
	}

	e.logger.Debug("conflict detection pass finished",
		zap.String("scope", scope),
		zap.Int("examined", len(nodes)),
		zap.Int("conflicts", len(pairs)),
	)

	return pairs, nil
}

// MergeNodes merges two nodes through the store and publishes the merge
// event. The store keeps the re-point plus delete atomic.
func (e *Engine) MergeNodes(ctx context.Context, id1, id2 string) (string, error) {
	survivor, err := e.store.MergeNodes(ctx, id1, id2)
	if err != nil {
		return "", err
	}

	loser := id2
	if survivor == id2 {
		loser = id1
	}
	e.publishMerge(ctx, "", survivor, loser)

	return survivor, nil
}

// StructureCandidates reports the nodes flagged for restructuring:
// isolated, empty background, exactly one child, or the sole child of a
// single-child parent.
func (e *Engine) StructureCandidates(ctx context.Context, scope string) ([]*graph.Node, error) {
	return e.store.GetStructureOptimizationCandidates(ctx, scope, false)
}

// scopeVectors loads every node of the scope and ensures each has a
// comparison vector, embedding all missing texts in one batch call.
func (e *Engine) scopeVectors(ctx context.Context, scope string) ([]*graph.Node, [][]float32, error) {
	nodes, err := e.store.GetAllMemoryItems(ctx, scope, true, "")
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	vectors := make([][]float32, len(nodes))
	var missingTexts []string
	var missingAt []int
	for i, node := range nodes {
		if v := node.Embedding(); len(v) > 0 {
			vectors[i] = v
			continue
		}
		missingTexts = append(missingTexts, node.Memory)
		missingAt = append(missingAt, i)
	}

	if len(missingTexts) > 0 {
		embedded, err := e.embedder.Embed(ctx, missingTexts)
		if err != nil {
			return nil, nil, fmt.Errorf("embedding %d nodes: %w", len(missingTexts), err)
		}
		if len(embedded) != len(missingTexts) {
			return nil, nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embedded), len(missingTexts))
		}
		for k, i := range missingAt {
			vectors[i] = embedded[k]
		}
	}

	return nodes, vectors, nil
}

// negationDisagreement reports whether exactly one of the two texts
// carries a negation marker, which reads as the pair disagreeing about
// the same subject.
func (e *Engine) negationDisagreement(a, b string) bool {
	return e.negated(a) != e.negated(b)
}

func (e *Engine) negated(text string) bool {
	lowered := " " + strings.ToLower(text) + " "
	for _, marker := range e.markers {
		if strings.Contains(lowered, " "+marker+" ") {
			return true
		}
	}
	return false
}

func (e *Engine) publishMerge(ctx context.Context, scope, survivor, absorbed string) {
	if e.publisher == nil {
		return
	}

	event := eventstream.NewNodeEvent(eventstream.EventTypeNodesMerged, survivor)
	event.Scope = scope
	event.MergedFrom = []string{absorbed}
	if err := e.publisher.PublishNodeEvent(ctx, event); err != nil {
		e.logger.Warn("failed to publish merge event",
			zap.String("survivor", survivor),
			zap.Error(err),
		)
	}
}

func cosine(a, b []float32) (float32, bool) {
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
