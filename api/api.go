package api

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/graph"
)

// Server is the API server for managing and querying the memory graph
type Server struct {
	config Config
	store  graph.Store
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The store is injected to allow sharing with other components
// (e.g., the maintenance engine and the CLI).
func NewServer(config Config, store graph.Store, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		store:  store,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)

	app.Post("/api/v1/nodes", s.handleAddNode)
	app.Post("/api/v1/nodes/batch", s.handleAddNodes)
	app.Get("/api/v1/nodes/:id", s.handleGetNode)
	app.Patch("/api/v1/nodes/:id", s.handleUpdateNode)
	app.Delete("/api/v1/nodes/:id", s.handleDeleteNode)
	app.Get("/api/v1/nodes/:id/neighbors", s.handleGetNeighbors)
	app.Get("/api/v1/nodes/:id/edges", s.handleGetEdges)
	app.Get("/api/v1/nodes/:id/chain", s.handleGetContextChain)
	app.Post("/api/v1/edges", s.handleAddEdge)
	app.Delete("/api/v1/edges", s.handleDeleteEdge)
	app.Post("/api/v1/search", s.handleSearchEndpoint)
	app.Get("/api/v1/graph/export", s.handleExportGraph)
	app.Post("/api/v1/graph/import", s.handleImportGraph)

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
