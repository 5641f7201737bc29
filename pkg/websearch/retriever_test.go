package websearch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/graph"
	"github.com/anatolykoptev/MemOS/pkg/graph/inmemory"
	testutils "github.com/anatolykoptev/MemOS/pkg/utils/test"
	"github.com/anatolykoptev/MemOS/pkg/websearch"
)

var _ = Describe("Retriever", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		results  []websearch.Result
		store    *inmemory.Store
		embedder *testutils.MockEmbedder
		client   *websearch.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		results = []websearch.Result{
			{Title: "Go 1.25", URL: "https://go.dev/blog/go1.25", Content: "Release notes"},
			{Title: "Generics", URL: "https://go.dev/doc/tutorial/generics", Content: "Tutorial"},
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
		}))

		var err error
		client, err = websearch.NewClient(websearch.ClientConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		store = inmemory.NewStore()
		embedder = testutils.NewMockEmbedder()
	})

	AfterEach(func() {
		server.Close()
	})

	newRetriever := func() *websearch.Retriever {
		r, err := websearch.NewRetriever(&websearch.RetrieverConfig{
			Client:   client,
			Embedder: embedder,
			Store:    store,
			Logger:   zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	Describe("NewRetriever", func() {
		It("requires all collaborators", func() {
			_, err := websearch.NewRetriever(&websearch.RetrieverConfig{})
			Expect(err).To(MatchError(ContainSubstring("client is required")))

			_, err = websearch.NewRetriever(&websearch.RetrieverConfig{Client: client})
			Expect(err).To(MatchError(ContainSubstring("embedder is required")))

			_, err = websearch.NewRetriever(&websearch.RetrieverConfig{Client: client, Embedder: embedder})
			Expect(err).To(MatchError(ContainSubstring("store is required")))

			_, err = websearch.NewRetriever(&websearch.RetrieverConfig{Client: client, Embedder: embedder, Store: store})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})
	})

	Describe("RetrieveFromInternet", func() {
		It("stores each hit as an activated long-term memory", func() {
			nodes, err := newRetriever().RetrieveFromInternet(ctx, "go release", 10, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(2))

			Expect(nodes[0].Memory).To(Equal("Title: Go 1.25\nSummary: Release notes\nSource: https://go.dev/blog/go1.25"))

			stored, err := store.GetNode(ctx, nodes[0].ID, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).NotTo(BeNil())
			Expect(stored.MemoryType()).To(Equal(graph.ScopeLongTermMemory))
			Expect(stored.Status()).To(Equal(graph.StatusActivated))
			Expect(stored.UserName()).To(Equal("alice"))
			Expect(stored.Embedding()).NotTo(BeEmpty())
			Expect(stored.Metadata).To(HaveKeyWithValue("confidence", 85))
			Expect(stored.Background()).To(Equal("web search result"))
		})

		It("tags nodes with web_search and the query terms", func() {
			nodes, err := newRetriever().RetrieveFromInternet(ctx, "Go Release go", 10, "")
			Expect(err).NotTo(HaveOccurred())

			stored, err := store.GetNode(ctx, nodes[0].ID, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Tags()).To(Equal([]string{"web_search", "go", "release"}))
		})

		It("embeds the whole result set in one batch call", func() {
			_, err := newRetriever().RetrieveFromInternet(ctx, "go", 10, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(embedder.Calls).To(Equal(1))
		})

		It("returns nothing when the search comes back empty", func() {
			results = nil

			nodes, err := newRetriever().RetrieveFromInternet(ctx, "nothing", 10, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(BeEmpty())
			Expect(store.Count()).To(BeZero())
			Expect(embedder.Calls).To(BeZero())
		})

		It("propagates search failures", func() {
			server.Close()

			_, err := newRetriever().RetrieveFromInternet(ctx, "go", 10, "")
			Expect(err).To(MatchError(websearch.ErrSearch))
			Expect(store.Count()).To(BeZero())
		})

		It("stores nothing when embedding fails", func() {
			embedder.FailOn = "Title: Go 1.25\nSummary: Release notes\nSource: https://go.dev/blog/go1.25"

			_, err := newRetriever().RetrieveFromInternet(ctx, "go", 10, "")
			Expect(err).To(HaveOccurred())
			Expect(store.Count()).To(BeZero())
		})
	})
})
