package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/anatolykoptev/MemOS/pkg/embeddings"
	"github.com/anatolykoptev/MemOS/pkg/embeddings/ollama"
)

var _ = Describe("Embedder", func() {
	var (
		server   *httptest.Server
		requests atomic.Int32
		lastBody map[string]any
	)

	BeforeEach(func() {
		requests.Store(0)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/api/embed"))

			Expect(json.NewDecoder(r.Body).Decode(&lastBody)).To(Succeed())
			inputs := lastBody["input"].([]any)

			vectors := make([][]float32, len(inputs))
			for i := range inputs {
				vectors[i] = []float32{float32(i), 0.5}
			}
			w.Header().Set("Content-Type", "application/json")
			Expect(json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})).To(Succeed())
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("embeds a whole batch with a single API call", func() {
		embedder, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		vectors, err := embedder.Embed(context.Background(), []string{"one", "two", "three"})
		Expect(err).NotTo(HaveOccurred())
		Expect(vectors).To(HaveLen(3))
		Expect(vectors[1]).To(Equal([]float32{1, 0.5}))
		Expect(requests.Load()).To(Equal(int32(1)))
	})

	It("sends the configured model", func() {
		embedder, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL, Model: "all-minilm"})
		Expect(err).NotTo(HaveOccurred())

		_, err = embedder.Embed(context.Background(), []string{"text"})
		Expect(err).NotTo(HaveOccurred())
		Expect(lastBody["model"]).To(Equal("all-minilm"))
	})

	It("skips the API entirely for an empty batch", func() {
		embedder, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		vectors, err := embedder.Embed(context.Background(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(vectors).To(BeNil())
		Expect(requests.Load()).To(BeZero())
	})

	It("wraps upstream failures in ErrEmbedding", func() {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer failing.Close()

		embedder, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: failing.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = embedder.Embed(context.Background(), []string{"text"})
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})

	It("rejects a count mismatch from the server", func() {
		short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			Expect(json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1}}})).To(Succeed())
		}))
		defer short.Close()

		embedder, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: short.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = embedder.Embed(context.Background(), []string{"a", "b"})
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})
})
