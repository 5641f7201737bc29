package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	apisearch "github.com/anatolykoptev/MemOS/api/search"
	"github.com/anatolykoptev/MemOS/pkg/graph"
	"github.com/anatolykoptev/MemOS/pkg/graph/inmemory"
	testutils "github.com/anatolykoptev/MemOS/pkg/utils/test"
)

var _ = Describe("handleSearchEndpoint", func() {
	var (
		server   *Server
		store    *inmemory.Store
		embedder *testutils.MockEmbedder
		ctx      context.Context
	)

	search := func(input apisearch.SearchInput) *http.Response {
		b, err := json.Marshal(input)
		Expect(err).NotTo(HaveOccurred())

		req, err := http.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(b))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	BeforeEach(func() {
		store = inmemory.NewStore()
		embedder = testutils.NewMockEmbedder()
		ctx = context.Background()

		server = NewServer(
			Config{
				ListenAddr: ":0",
				Embedder:   embedder,
			},
			store,
			zap.NewNop(),
		)
	})

	Context("when search is not configured", func() {
		It("returns 503 when the embedder is nil", func() {
			noSearchServer := NewServer(Config{ListenAddr: ":0"}, store, zap.NewNop())

			b, err := json.Marshal(apisearch.SearchInput{Query: "test"})
			Expect(err).NotTo(HaveOccurred())
			req, err := http.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(b))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := noSearchServer.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
		})
	})

	Context("when the query is missing", func() {
		It("returns 400", func() {
			resp := search(apisearch.SearchInput{})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("query is required"))
		})
	})

	Context("when top_k is negative", func() {
		It("returns 400", func() {
			resp := search(apisearch.SearchInput{Query: "test", TopK: -1})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("top_k must be a positive integer"))
		})
	})

	Context("when the body is not JSON", func() {
		It("returns 400", func() {
			req, err := http.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte("not json")))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Context("when search succeeds with no results", func() {
		It("returns 200 with empty results", func() {
			resp := search(apisearch.SearchInput{Query: "hello"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var output apisearch.SearchOutput
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &output)).To(Succeed())

			Expect(output.Query).To(Equal("hello"))
			Expect(output.Count).To(Equal(0))
			Expect(output.Results).To(BeEmpty())
		})
	})

	Context("when search succeeds with results", func() {
		It("returns 200 with ranked results", func() {
			Expect(store.AddNode(ctx, "n-tea", "User prefers green tea", map[string]any{
				graph.KeyMemoryType: graph.ScopeLongTermMemory,
				graph.KeyStatus:     graph.StatusActivated,
				graph.KeyEmbedding:  []float32{1, 0, 0},
			})).To(Succeed())
			Expect(store.AddNode(ctx, "n-coffee", "User drank coffee once", map[string]any{
				graph.KeyEmbedding: []float32{0, 1, 0},
			})).To(Succeed())

			embedder.Embeddings["greeting"] = []float32{1, 0, 0}

			resp := search(apisearch.SearchInput{Query: "greeting", TopK: 3})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var output apisearch.SearchOutput
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &output)).To(Succeed())

			Expect(output.Query).To(Equal("greeting"))
			Expect(output.Count).To(Equal(2))
			Expect(output.Results[0].ID).To(Equal("n-tea"))
			Expect(output.Results[0].Score).To(Equal(float32(1.0)))
			Expect(output.Results[0].Memory).To(Equal("User prefers green tea"))
			Expect(output.Results[0].MemoryType).To(Equal(graph.ScopeLongTermMemory))
			Expect(output.Results[1].ID).To(Equal("n-coffee"))
		})
	})

	Context("when embedding fails", func() {
		It("returns 500", func() {
			embedder.FailOn = "doomed"

			resp := search(apisearch.SearchInput{Query: "doomed"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
		})
	})
})
