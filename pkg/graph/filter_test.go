package graph_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/anatolykoptev/MemOS/pkg/graph"
)

var _ = Describe("MatchesFilters", func() {
	node := &graph.Node{
		ID:     "n1",
		Memory: "the sky is blue today",
		Metadata: map[string]any{
			"topic":      "weather",
			"importance": 3,
			"confidence": 85.0,
			"tags":       []string{"sky", "color"},
			"pinned":     true,
		},
	}

	It("matches an empty clause list", func() {
		Expect(graph.MatchesFilters(node, nil)).To(BeTrue())
	})

	It("treats a zero op as equality", func() {
		Expect(graph.MatchesFilters(node, []graph.Filter{
			{Field: "topic", Value: "weather"},
		})).To(BeTrue())
	})

	It("is conjunctive across clauses", func() {
		Expect(graph.MatchesFilters(node, []graph.Filter{
			graph.Eq("topic", "weather"),
			graph.Eq("importance", 3),
		})).To(BeTrue())

		Expect(graph.MatchesFilters(node, []graph.Filter{
			graph.Eq("topic", "weather"),
			graph.Eq("importance", 4),
		})).To(BeFalse())
	})

	It("compares numbers across int and float shapes", func() {
		Expect(graph.MatchesFilters(node, []graph.Filter{
			graph.Eq("importance", 3.0),
		})).To(BeTrue())

		Expect(graph.MatchesFilters(node, []graph.Filter{
			{Field: "confidence", Op: graph.OpGte, Value: 85},
		})).To(BeTrue())
	})

	It("addresses id and memory as reserved fields", func() {
		Expect(graph.MatchesFilters(node, []graph.Filter{
			graph.Eq("id", "n1"),
			{Field: "memory", Op: graph.OpContains, Value: "sky"},
		})).To(BeTrue())
	})

	It("supports range predicates", func() {
		Expect(graph.MatchesFilters(node, []graph.Filter{
			{Field: "importance", Op: graph.OpGt, Value: 2},
			{Field: "importance", Op: graph.OpLte, Value: 3},
		})).To(BeTrue())

		Expect(graph.MatchesFilters(node, []graph.Filter{
			{Field: "importance", Op: graph.OpLt, Value: 3},
		})).To(BeFalse())
	})

	It("supports membership predicates", func() {
		Expect(graph.MatchesFilters(node, []graph.Filter{
			{Field: "topic", Op: graph.OpIn, Value: []string{"weather", "news"}},
		})).To(BeTrue())

		Expect(graph.MatchesFilters(node, []graph.Filter{
			{Field: "topic", Op: graph.OpIn, Value: []string{"news"}},
		})).To(BeFalse())
	})

	It("supports containment over lists and strings", func() {
		Expect(graph.MatchesFilters(node, []graph.Filter{
			{Field: "tags", Op: graph.OpContains, Value: "sky"},
		})).To(BeTrue())

		Expect(graph.MatchesFilters(node, []graph.Filter{
			{Field: "tags", Op: graph.OpContains, Value: "sea"},
		})).To(BeFalse())
	})

	It("fails range predicates on missing fields", func() {
		Expect(graph.MatchesFilters(node, []graph.Filter{
			{Field: "unknown", Op: graph.OpGt, Value: 1},
		})).To(BeFalse())
	})

	It("lets ne succeed on missing fields", func() {
		Expect(graph.MatchesFilters(node, []graph.Filter{
			{Field: "unknown", Op: graph.OpNe, Value: "anything"},
		})).To(BeTrue())
	})

	It("matches booleans", func() {
		Expect(graph.MatchesFilters(node, []graph.Filter{
			graph.Eq("pinned", true),
		})).To(BeTrue())
	})
})
