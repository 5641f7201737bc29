package api

import (
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/graph/inmemory"
)

var _ = Describe("Server", func() {
	var (
		server *Server
		store  *inmemory.Store
	)

	BeforeEach(func() {
		store = inmemory.NewStore()
		server = NewServer(Config{ListenAddr: ":0"}, store, zap.NewNop())
	})

	Describe("ping", func() {
		It("responds with pong", func() {
			req, err := http.NewRequest(http.MethodGet, "/ping", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("pong"))
		})
	})

	Describe("unknown routes", func() {
		It("returns 404", func() {
			req, err := http.NewRequest(http.MethodGet, "/api/v1/nope", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("MCP mounting", func() {
		It("does not serve /mcp when no handler is configured", func() {
			req, err := http.NewRequest(http.MethodGet, "/mcp", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("serves the configured handler at /mcp", func() {
			mounted := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
			mcpServer := NewServer(Config{ListenAddr: ":0", MCP: mounted}, store, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			resp, err := mcpServer.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusTeapot))
		})
	})
})
