package inmemory_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/anatolykoptev/MemOS/pkg/graph"
	"github.com/anatolykoptev/MemOS/pkg/graph/inmemory"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *inmemory.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore()
	})

	addNode := func(id, memory string, metadata map[string]any) {
		GinkgoHelper()
		Expect(store.AddNode(ctx, id, memory, metadata)).To(Succeed())
	}

	Describe("AddNode", func() {
		It("stores a node retrievable by id", func() {
			addNode("n1", "the sky is blue", map[string]any{"memory_type": graph.ScopeLongTermMemory})

			node, err := store.GetNode(ctx, "n1", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node).NotTo(BeNil())
			Expect(node.Memory).To(Equal("the sky is blue"))
			Expect(node.MemoryType()).To(Equal(graph.ScopeLongTermMemory))
		})

		It("stamps created_at and updated_at", func() {
			addNode("n1", "m", nil)

			node, err := store.GetNode(ctx, "n1", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node.Metadata[graph.KeyCreatedAt]).NotTo(BeEmpty())
			Expect(node.Metadata[graph.KeyUpdatedAt]).NotTo(BeEmpty())
		})

		It("rejects a duplicate id", func() {
			addNode("n1", "first", nil)

			err := store.AddNode(ctx, "n1", "second", nil)
			var dup graph.DuplicateIDError
			Expect(errors.As(err, &dup)).To(BeTrue())
			Expect(dup.ID).To(Equal("n1"))
		})

		It("does not share metadata with the caller", func() {
			md := map[string]any{"tags": []string{"a"}}
			addNode("n1", "m", md)
			md["tags"] = []string{"mutated"}

			node, err := store.GetNode(ctx, "n1", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node.Tags()).To(Equal([]string{"a"}))
		})
	})

	Describe("AddNodes", func() {
		It("adds every node and stamps the user", func() {
			nodes := []*graph.Node{
				{ID: "b1", Memory: "one"},
				{ID: "b2", Memory: "two"},
			}
			Expect(store.AddNodes(ctx, nodes, "alice")).To(Succeed())

			node, err := store.GetNode(ctx, "b1", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node.UserName()).To(Equal("alice"))
		})

		It("rejects the whole batch on a duplicate", func() {
			addNode("b1", "existing", nil)

			err := store.AddNodes(ctx, []*graph.Node{
				{ID: "b2", Memory: "new"},
				{ID: "b1", Memory: "collides"},
			}, "")
			var dup graph.DuplicateIDError
			Expect(errors.As(err, &dup)).To(BeTrue())

			node, err := store.GetNode(ctx, "b2", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node).To(BeNil(), "no node from the failed batch should exist")
		})

		It("preserves an explicit owner over the batch user", func() {
			nodes := []*graph.Node{
				{ID: "b1", Memory: "one", Metadata: map[string]any{"user_name": "bob"}},
			}
			Expect(store.AddNodes(ctx, nodes, "alice")).To(Succeed())

			node, err := store.GetNode(ctx, "b1", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node.UserName()).To(Equal("bob"))
		})
	})

	Describe("UpdateNode", func() {
		It("mutates only the given fields", func() {
			addNode("n1", "original", map[string]any{"importance": 1, "topic": "sky"})

			Expect(store.UpdateNode(ctx, "n1", map[string]any{"importance": 5})).To(Succeed())

			node, err := store.GetNode(ctx, "n1", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node.Metadata["importance"]).To(Equal(5))
			Expect(node.Metadata["topic"]).To(Equal("sky"))
			Expect(node.Memory).To(Equal("original"))
		})

		It("updates memory content through the memory field", func() {
			addNode("n1", "old", nil)

			Expect(store.UpdateNode(ctx, "n1", map[string]any{"memory": "new"})).To(Succeed())

			node, err := store.GetNode(ctx, "n1", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node.Memory).To(Equal("new"))
		})

		It("fails with NotFoundError for an absent id", func() {
			err := store.UpdateNode(ctx, "ghost", map[string]any{"k": "v"})
			var nf graph.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
		})
	})

	Describe("edges", func() {
		BeforeEach(func() {
			addNode("a", "node a", nil)
			addNode("b", "node b", nil)
		})

		It("is idempotent on add", func() {
			Expect(store.AddEdge(ctx, "a", "b", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "a", "b", "FOLLOWS")).To(Succeed())

			edges, err := store.GetEdges(ctx, "a", graph.EdgeTypeAny, graph.DirectionAny)
			Expect(err).NotTo(HaveOccurred())
			Expect(edges).To(HaveLen(1))
		})

		It("treats deleting a non-existent triple as a no-op", func() {
			Expect(store.DeleteEdge(ctx, "a", "b", "NEVER_ADDED")).To(Succeed())
		})

		It("reports existence by exact triple", func() {
			Expect(store.AddEdge(ctx, "a", "b", "FOLLOWS")).To(Succeed())

			exists, err := store.EdgeExists(ctx, "a", "b", "FOLLOWS")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())

			exists, err = store.EdgeExists(ctx, "a", "b", "CAUSES")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("filters edges by type and direction", func() {
			Expect(store.AddEdge(ctx, "a", "b", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "b", "a", "CAUSES")).To(Succeed())

			out, err := store.GetEdges(ctx, "a", "FOLLOWS", graph.DirectionOut)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([]graph.Edge{{Source: "a", Target: "b", Type: "FOLLOWS"}}))

			in, err := store.GetEdges(ctx, "a", graph.EdgeTypeAny, graph.DirectionIn)
			Expect(err).NotTo(HaveOccurred())
			Expect(in).To(Equal([]graph.Edge{{Source: "b", Target: "a", Type: "CAUSES"}}))
		})
	})

	Describe("DeleteNode", func() {
		It("cascades to every edge touching the node", func() {
			addNode("a", "a", nil)
			addNode("b", "b", nil)
			addNode("c", "c", nil)
			Expect(store.AddEdge(ctx, "a", "b", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "c", "a", "CAUSES")).To(Succeed())

			Expect(store.DeleteNode(ctx, "a")).To(Succeed())

			edges, err := store.GetEdges(ctx, "a", graph.EdgeTypeAny, graph.DirectionAny)
			Expect(err).NotTo(HaveOccurred())
			Expect(edges).To(BeEmpty())

			neighbors, err := store.GetNeighbors(ctx, "b", graph.EdgeTypeAny, graph.DirectionBoth)
			Expect(err).NotTo(HaveOccurred())
			Expect(neighbors).NotTo(ContainElement("a"))

			neighbors, err = store.GetNeighbors(ctx, "c", graph.EdgeTypeAny, graph.DirectionBoth)
			Expect(err).NotTo(HaveOccurred())
			Expect(neighbors).NotTo(ContainElement("a"))
		})

		It("is a no-op for an absent id", func() {
			Expect(store.DeleteNode(ctx, "ghost")).To(Succeed())
		})
	})

	Describe("DeleteNodesByParams", func() {
		BeforeEach(func() {
			addNode("u1", "alice memory", map[string]any{"user_name": "alice"})
			addNode("u2", "bob memory", map[string]any{"user_name": "bob"})
			addNode("u3", "alice too", map[string]any{"user_name": "alice"})
		})

		It("deletes by user name and reports the count", func() {
			count, err := store.DeleteNodesByParams(ctx, graph.DeleteParams{UserNames: []string{"alice"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))

			node, err := store.GetNode(ctx, "u2", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node).NotTo(BeNil())
		})

		It("deletes by explicit ids", func() {
			count, err := store.DeleteNodesByParams(ctx, graph.DeleteParams{MemoryIDs: []string{"u1", "ghost"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
		})

		It("combines dimensions conjunctively", func() {
			count, err := store.DeleteNodesByParams(ctx, graph.DeleteParams{
				MemoryIDs: []string{"u1", "u2"},
				UserNames: []string{"alice"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
		})

		It("rejects empty params", func() {
			_, err := store.DeleteNodesByParams(ctx, graph.DeleteParams{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GetNode", func() {
		It("returns nil without error for a missing id", func() {
			node, err := store.GetNode(ctx, "missing", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node).To(BeNil())
		})

		It("strips the embedding unless requested", func() {
			addNode("n1", "m", map[string]any{"embedding": []float32{0.1, 0.2}})

			node, err := store.GetNode(ctx, "n1", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node.Embedding()).To(BeNil())

			node, err = store.GetNode(ctx, "n1", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(node.Embedding()).To(Equal([]float32{0.1, 0.2}))
		})
	})

	Describe("GetNodes", func() {
		It("omits missing ids", func() {
			addNode("n1", "one", nil)
			addNode("n2", "two", nil)

			nodes, err := store.GetNodes(ctx, []string{"n1", "ghost", "n2"}, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(2))
		})
	})

	Describe("GetNeighbors", func() {
		BeforeEach(func() {
			for _, id := range []string{"a", "b", "c"} {
				addNode(id, id, nil)
			}
			Expect(store.AddEdge(ctx, "a", "b", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "c", "a", "FOLLOWS")).To(Succeed())
		})

		It("follows the out direction", func() {
			neighbors, err := store.GetNeighbors(ctx, "a", "FOLLOWS", graph.DirectionOut)
			Expect(err).NotTo(HaveOccurred())
			Expect(neighbors).To(Equal([]string{"b"}))
		})

		It("follows the in direction", func() {
			neighbors, err := store.GetNeighbors(ctx, "a", "FOLLOWS", graph.DirectionIn)
			Expect(err).NotTo(HaveOccurred())
			Expect(neighbors).To(Equal([]string{"c"}))
		})

		It("follows both directions", func() {
			neighbors, err := store.GetNeighbors(ctx, "a", "FOLLOWS", graph.DirectionBoth)
			Expect(err).NotTo(HaveOccurred())
			Expect(neighbors).To(Equal([]string{"b", "c"}))
		})
	})

	Describe("GetPath", func() {
		BeforeEach(func() {
			for _, id := range []string{"a", "b", "c", "d"} {
				addNode(id, id, nil)
			}
			Expect(store.AddEdge(ctx, "a", "b", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "b", "c", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "c", "d", "FOLLOWS")).To(Succeed())
		})

		It("finds a path within the depth bound", func() {
			path, err := store.GetPath(ctx, "a", "c", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal([]string{"a", "b", "c"}))
		})

		It("returns empty when the bound is too tight", func() {
			path, err := store.GetPath(ctx, "a", "d", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeEmpty())
		})

		It("returns empty when unreachable", func() {
			addNode("island", "island", nil)
			path, err := store.GetPath(ctx, "a", "island", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeEmpty())
		})

		It("resolves equal-length paths by lexicographic order", func() {
			addNode("m1", "m1", nil)
			addNode("m2", "m2", nil)
			addNode("z", "z", nil)
			Expect(store.AddEdge(ctx, "a", "m2", "REL")).To(Succeed())
			Expect(store.AddEdge(ctx, "a", "m1", "REL")).To(Succeed())
			Expect(store.AddEdge(ctx, "m1", "z", "REL")).To(Succeed())
			Expect(store.AddEdge(ctx, "m2", "z", "REL")).To(Succeed())

			path, err := store.GetPath(ctx, "a", "z", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal([]string{"a", "m1", "z"}))
		})
	})

	Describe("GetSubgraph", func() {
		It("bounds the neighborhood by depth and includes the center", func() {
			for _, id := range []string{"a", "b", "c", "d"} {
				addNode(id, id, nil)
			}
			Expect(store.AddEdge(ctx, "a", "b", "REL")).To(Succeed())
			Expect(store.AddEdge(ctx, "b", "c", "REL")).To(Succeed())
			Expect(store.AddEdge(ctx, "c", "d", "REL")).To(Succeed())

			ids, err := store.GetSubgraph(ctx, "a", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"a", "b", "c"}))
		})

		It("walks edges in both directions", func() {
			addNode("a", "a", nil)
			addNode("b", "b", nil)
			Expect(store.AddEdge(ctx, "b", "a", "REL")).To(Succeed())

			ids, err := store.GetSubgraph(ctx, "a", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"a", "b"}))
		})
	})

	Describe("GetContextChain", func() {
		It("follows the relationship type in order", func() {
			for _, id := range []string{"a", "b", "c"} {
				addNode(id, id, nil)
			}
			Expect(store.AddEdge(ctx, "a", "b", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "b", "c", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "b", "c", "CAUSES")).To(Succeed())

			chain, err := store.GetContextChain(ctx, "a", "FOLLOWS")
			Expect(err).NotTo(HaveOccurred())
			Expect(chain).To(Equal([]string{"a", "b", "c"}))
		})

		It("terminates on a cycle with each node at most once", func() {
			for _, id := range []string{"a", "b", "c"} {
				addNode(id, id, nil)
			}
			Expect(store.AddEdge(ctx, "a", "b", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "b", "c", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "c", "a", "FOLLOWS")).To(Succeed())

			chain, err := store.GetContextChain(ctx, "a", "FOLLOWS")
			Expect(err).NotTo(HaveOccurred())
			Expect(chain).To(Equal([]string{"a", "b", "c"}))
		})

		It("defaults to the FOLLOWS type", func() {
			addNode("a", "a", nil)
			addNode("b", "b", nil)
			Expect(store.AddEdge(ctx, "a", "b", graph.EdgeTypeFollows)).To(Succeed())

			chain, err := store.GetContextChain(ctx, "a", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(chain).To(Equal([]string{"a", "b"}))
		})
	})

	Describe("SearchByEmbedding", func() {
		BeforeEach(func() {
			addNode("close", "close", map[string]any{"embedding": []float32{1, 0, 0}})
			addNode("closer", "closer", map[string]any{"embedding": []float32{0.9, 0.1, 0}})
			addNode("far", "far", map[string]any{"embedding": []float32{0, 0, 1}})
			addNode("novector", "no vector", nil)
		})

		It("ranks by descending similarity", func() {
			hits, err := store.SearchByEmbedding(ctx, []float32{1, 0, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(3))
			Expect(hits[0].ID).To(Equal("close"))
			Expect(hits[1].ID).To(Equal("closer"))
			Expect(hits[2].ID).To(Equal("far"))
		})

		It("honors topK", func() {
			hits, err := store.SearchByEmbedding(ctx, []float32{1, 0, 0}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
		})

		It("breaks score ties by insertion order", func() {
			Expect(store.Clear(ctx)).To(Succeed())
			addNode("second", "s", map[string]any{"embedding": []float32{1, 0}})
			addNode("first", "f", map[string]any{"embedding": []float32{1, 0}})

			hits, err := store.SearchByEmbedding(ctx, []float32{1, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits[0].ID).To(Equal("second"))
			Expect(hits[1].ID).To(Equal("first"))
		})
	})

	Describe("GetByMetadata", func() {
		BeforeEach(func() {
			addNode("n1", "one", map[string]any{"topic": "psychology", "importance": 2, "status": "activated"})
			addNode("n2", "two", map[string]any{"topic": "psychology", "importance": 5, "status": "archived"})
			addNode("n3", "three", map[string]any{"topic": "biology", "importance": 2, "status": "activated"})
		})

		It("matches clauses conjunctively", func() {
			ids, err := store.GetByMetadata(ctx, []graph.Filter{
				graph.Eq("topic", "psychology"),
				graph.Eq("importance", 2),
			}, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"n1"}))
		})

		It("applies the status filter", func() {
			ids, err := store.GetByMetadata(ctx, []graph.Filter{graph.Eq("topic", "psychology")}, "activated")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"n1"}))
		})

		It("supports richer predicates", func() {
			ids, err := store.GetByMetadata(ctx, []graph.Filter{
				{Field: "importance", Op: graph.OpGt, Value: 2},
			}, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"n2"}))

			ids, err = store.GetByMetadata(ctx, []graph.Filter{
				{Field: "topic", Op: graph.OpIn, Value: []string{"biology", "chemistry"}},
			}, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"n3"}))
		})
	})

	Describe("GetNeighborsByTag", func() {
		BeforeEach(func() {
			addNode("two", "two tags", map[string]any{"tags": []string{"a", "b"}})
			addNode("one", "one tag", map[string]any{"tags": []string{"a"}})
			addNode("three", "three tags", map[string]any{"tags": []string{"a", "b", "c"}})
			addNode("none", "no overlap", map[string]any{"tags": []string{"x"}})
		})

		It("ranks by overlap count with deterministic ties", func() {
			nodes, err := store.GetNeighborsByTag(ctx, []string{"a", "b"}, nil, 10, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(3))
			// "three" and "two" both overlap twice; ascending id breaks the tie.
			Expect(nodes[0].ID).To(Equal("three"))
			Expect(nodes[1].ID).To(Equal("two"))
			Expect(nodes[2].ID).To(Equal("one"))
		})

		It("excludes the given ids", func() {
			nodes, err := store.GetNeighborsByTag(ctx, []string{"a", "b"}, []string{"three"}, 10, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes[0].ID).To(Equal("two"))
		})

		It("enforces the minimum overlap", func() {
			nodes, err := store.GetNeighborsByTag(ctx, []string{"a", "b"}, nil, 10, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(2))
		})

		It("honors topK", func() {
			nodes, err := store.GetNeighborsByTag(ctx, []string{"a", "b"}, nil, 1, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(1))
			Expect(nodes[0].ID).To(Equal("three"))
		})
	})

	Describe("GetAllMemoryItems", func() {
		BeforeEach(func() {
			addNode("w1", "working", map[string]any{"memory_type": graph.ScopeWorkingMemory, "status": "activated"})
			addNode("l1", "longterm", map[string]any{"memory_type": graph.ScopeLongTermMemory, "status": "activated"})
			addNode("l2", "longterm archived", map[string]any{"memory_type": graph.ScopeLongTermMemory, "status": "archived"})
		})

		It("partitions by scope", func() {
			nodes, err := store.GetAllMemoryItems(ctx, graph.ScopeLongTermMemory, false, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(2))
		})

		It("applies the status filter", func() {
			nodes, err := store.GetAllMemoryItems(ctx, graph.ScopeLongTermMemory, false, "activated")
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(1))
			Expect(nodes[0].ID).To(Equal("l1"))
		})

		It("rejects an unknown scope", func() {
			_, err := store.GetAllMemoryItems(ctx, "EpisodicMemory", false, "")
			var bad graph.InvalidScopeError
			Expect(errors.As(err, &bad)).To(BeTrue())
		})
	})

	Describe("GetStructureOptimizationCandidates", func() {
		It("returns each qualifying node exactly once", func() {
			scope := graph.ScopeLongTermMemory
			md := func() map[string]any {
				return map[string]any{"memory_type": scope, "background": "filled"}
			}
			addNode("isolated", "alone", md())
			addNode("parent", "single-child parent", md())
			addNode("child", "sole child", md())
			addNode("busy", "well connected", md())
			addNode("kid1", "first", md())
			addNode("kid2", "second", md())
			Expect(store.AddEdge(ctx, "parent", "child", graph.EdgeTypeParent)).To(Succeed())
			Expect(store.AddEdge(ctx, "busy", "kid1", graph.EdgeTypeParent)).To(Succeed())
			Expect(store.AddEdge(ctx, "busy", "kid2", graph.EdgeTypeParent)).To(Succeed())
			Expect(store.AddEdge(ctx, "kid1", "kid2", graph.EdgeTypeFollows)).To(Succeed())

			candidates, err := store.GetStructureOptimizationCandidates(ctx, scope, false)
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, len(candidates))
			for i, c := range candidates {
				ids[i] = c.ID
			}
			Expect(ids).To(Equal([]string{"child", "isolated", "parent"}))
		})

		It("flags nodes with empty background", func() {
			addNode("bare", "no background", map[string]any{"memory_type": graph.ScopeUserMemory})
			addNode("other", "has background", map[string]any{"memory_type": graph.ScopeUserMemory, "background": "b"})
			Expect(store.AddEdge(ctx, "bare", "other", graph.EdgeTypeFollows)).To(Succeed())
			Expect(store.AddEdge(ctx, "other", "bare", graph.EdgeTypeFollows)).To(Succeed())

			candidates, err := store.GetStructureOptimizationCandidates(ctx, graph.ScopeUserMemory, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].ID).To(Equal("bare"))
		})

		It("rejects an unknown scope", func() {
			_, err := store.GetStructureOptimizationCandidates(ctx, "bogus", false)
			var bad graph.InvalidScopeError
			Expect(errors.As(err, &bad)).To(BeTrue())
		})
	})

	Describe("MergeNodes", func() {
		BeforeEach(func() {
			addNode("a", "memory a", map[string]any{"tags": []string{"t1"}, "topic": "sky"})
			addNode("b", "memory b", map[string]any{"tags": []string{"t2"}, "color": "blue"})
			addNode("x", "x", nil)
			addNode("y", "y", nil)
			Expect(store.AddEdge(ctx, "a", "x", "FOLLOWS")).To(Succeed())
			Expect(store.AddEdge(ctx, "y", "b", "CAUSES")).To(Succeed())
		})

		It("re-points the absorbed node's edges to the survivor", func() {
			survivor, err := store.MergeNodes(ctx, "a", "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(survivor).To(Equal("a"))

			edges, err := store.GetEdges(ctx, "a", graph.EdgeTypeAny, graph.DirectionAny)
			Expect(err).NotTo(HaveOccurred())
			Expect(edges).To(ConsistOf(
				graph.Edge{Source: "a", Target: "x", Type: "FOLLOWS"},
				graph.Edge{Source: "y", Target: "a", Type: "CAUSES"},
			))

			absorbed, err := store.GetNode(ctx, "b", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(absorbed).To(BeNil())
		})

		It("unions metadata with survivor precedence", func() {
			_, err := store.MergeNodes(ctx, "a", "b")
			Expect(err).NotTo(HaveOccurred())

			node, err := store.GetNode(ctx, "a", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(node.Memory).To(Equal("memory a"))
			Expect(node.Metadata["topic"]).To(Equal("sky"))
			Expect(node.Metadata["color"]).To(Equal("blue"))
			Expect(node.Tags()).To(ConsistOf("t1", "t2"))
			Expect(graph.StringsValue(node.Metadata, graph.KeyMergedFrom)).To(ContainElement("b"))
		})

		It("drops edges that would become self-loops", func() {
			Expect(store.AddEdge(ctx, "a", "b", "FOLLOWS")).To(Succeed())

			_, err := store.MergeNodes(ctx, "a", "b")
			Expect(err).NotTo(HaveOccurred())

			exists, err := store.EdgeExists(ctx, "a", "a", "FOLLOWS")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("fails with NotFoundError when either node is absent", func() {
			_, err := store.MergeNodes(ctx, "a", "ghost")
			var nf graph.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
		})
	})

	Describe("export and import", func() {
		It("round-trips the full graph", func() {
			addNode("n1", "one", map[string]any{"tags": []string{"t"}, "embedding": []float32{0.5, 0.5}})
			addNode("n2", "two", map[string]any{"importance": 3})
			Expect(store.AddEdge(ctx, "n1", "n2", "FOLLOWS")).To(Succeed())

			snap, err := store.ExportGraph(ctx, true)
			Expect(err).NotTo(HaveOccurred())

			restored := inmemory.NewStore()
			Expect(restored.ImportGraph(ctx, snap)).To(Succeed())

			again, err := restored.ExportGraph(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Edges).To(Equal(snap.Edges))
			Expect(again.Nodes).To(HaveLen(len(snap.Nodes)))
			for i := range snap.Nodes {
				Expect(again.Nodes[i].ID).To(Equal(snap.Nodes[i].ID))
				Expect(again.Nodes[i].Memory).To(Equal(snap.Nodes[i].Memory))
				Expect(again.Nodes[i].Metadata).To(Equal(snap.Nodes[i].Metadata))
			}
		})

		It("tolerates snapshots without embeddings", func() {
			addNode("n1", "one", map[string]any{"embedding": []float32{0.5}})

			snap, err := store.ExportGraph(ctx, false)
			Expect(err).NotTo(HaveOccurred())

			restored := inmemory.NewStore()
			Expect(restored.ImportGraph(ctx, snap)).To(Succeed())

			node, err := restored.GetNode(ctx, "n1", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(node).NotTo(BeNil())
			Expect(node.Embedding()).To(BeNil())
		})
	})

	Describe("Clear", func() {
		It("destroys all nodes and edges", func() {
			addNode("n1", "one", nil)
			addNode("n2", "two", nil)
			Expect(store.AddEdge(ctx, "n1", "n2", "FOLLOWS")).To(Succeed())

			Expect(store.Clear(ctx)).To(Succeed())

			Expect(store.Count()).To(BeZero())
			edges, err := store.GetEdges(ctx, "n1", graph.EdgeTypeAny, graph.DirectionAny)
			Expect(err).NotTo(HaveOccurred())
			Expect(edges).To(BeEmpty())
		})
	})

	Describe("tenancy helpers", func() {
		BeforeEach(func() {
			addNode("n1", "one", map[string]any{"user_name": "alice"})
			addNode("n2", "two", map[string]any{"user_name": "bob"})
			addNode("n3", "three", map[string]any{"user_name": "alice"})
			addNode("n4", "unowned", nil)
		})

		It("returns distinct owners for the given ids", func() {
			names, err := store.GetUserNamesByMemoryIDs(ctx, []string{"n1", "n2", "n3", "n4", "ghost"})
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"alice", "bob"}))
		})

		It("checks user existence", func() {
			exists, err := store.ExistUserName(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())

			exists, err = store.ExistUserName(ctx, "carol")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})
	})
})
