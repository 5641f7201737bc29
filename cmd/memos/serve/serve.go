// Package servecmder provides the serve command running the memory graph
// API server with its vector mirror, event stream, and MCP surface.
package servecmder

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/api"
	"github.com/anatolykoptev/MemOS/api/mcp"
	"github.com/anatolykoptev/MemOS/pkg/config"
	"github.com/anatolykoptev/MemOS/pkg/embeddings"
	embeddingutils "github.com/anatolykoptev/MemOS/pkg/embeddings/utils"
	"github.com/anatolykoptev/MemOS/pkg/eventstream"
	"github.com/anatolykoptev/MemOS/pkg/eventstream/kafka"
	"github.com/anatolykoptev/MemOS/pkg/eventstream/nop"
	"github.com/anatolykoptev/MemOS/pkg/graph"
	graphutils "github.com/anatolykoptev/MemOS/pkg/graph/utils"
	"github.com/anatolykoptev/MemOS/pkg/logger"
	vecstoreutils "github.com/anatolykoptev/MemOS/pkg/vecstore/utils"
	"github.com/anatolykoptev/MemOS/pkg/vecsync"
)

// indexedPayloadFields are the metadata keys the vector backend keeps
// payload indexes on. Provisioned once at startup.
var indexedPayloadFields = []string{
	graph.KeyUserName,
	graph.KeyStatus,
	graph.KeyMemoryType,
}

// serveFlags is the flag registry for the serve command.
var serveFlags = config.FlagSet{
	config.FlagListen: {
		Name: "listen", Shorthand: "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagGraphProvider: {
		Name:        "graph-provider",
		ViperKey:    "graph.provider",
		Description: "Graph store backend (postgres, sqlite, inmemory)",
	},
	config.FlagGraphDSN: {
		Name:        "dsn",
		ViperKey:    "graph.dsn",
		Description: "Postgres DSN for the graph store",
	},
	config.FlagSQLite: {
		Name: "sqlite", Shorthand: "s",
		ViperKey:    "graph.sqlite_path",
		Description: "Path to the SQLite graph database",
	},
	config.FlagVectorProvider: {
		Name:        "vector-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector store backend (qdrant, memvec)",
	},
	config.FlagVectorHost: {
		Name:        "vector-host",
		ViperKey:    "vector_store.host",
		Description: "Vector store host",
	},
	config.FlagVectorPort: {
		Name:        "vector-port",
		ViperKey:    "vector_store.port",
		Description: "Vector store port",
	},
	config.FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider (ollama)",
	},
	config.FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider URL",
	},
	config.FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	config.FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding vector dimensionality",
	},
}

// serveFlagKeys lists the registry keys serve registers and binds.
var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagGraphProvider,
	config.FlagGraphDSN,
	config.FlagSQLite,
	config.FlagVectorProvider,
	config.FlagVectorHost,
	config.FlagVectorPort,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
}

type ServeCommander struct {
	listen         string
	graphProvider  string
	dsn            string
	sqlitePath     string
	vectorProvider string
	vectorHost     string
	vectorPort     uint
	embedProvider  string
	embedTarget    string
	embedModel     string
	embedDims      uint
	noMCP          bool
	debug          bool

	cfg    *config.Config
	logger *zap.Logger
}

const serveLongDesc string = `Run the MemOS API server.

Serves the memory graph over REST, mirrors node writes into the vector
store, publishes node events when an event stream is configured, and
mounts an MCP endpoint at /mcp for agent integrations.

Configuration is resolved from flags, MEMOS_* environment variables, and
config.toml in the .memos/ directory, in that order of precedence.

Examples:
  memos serve
  memos serve --listen :9090 --sqlite ./memos.db
  memos serve --graph-provider postgres --dsn postgres://memos@localhost/memos`

const serveShortDesc string = "Run the MemOS API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagGraphProvider, &cmder.graphProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagGraphDSN, &cmder.dsn)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorProvider, &cmder.vectorProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorHost, &cmder.vectorHost)
	config.AddUintFlag(cmd, serveFlags, config.FlagVectorPort, &cmder.vectorPort)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingProv, &cmder.embedProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embedTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddUintFlag(cmd, serveFlags, config.FlagEmbeddingDims, &cmder.embedDims)
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Disable the MCP endpoint")

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	ctx := context.Background()
	cfg := c.cfg

	// Graph store: the single source of truth.
	store, err := graphutils.NewStore(ctx, &graphutils.NewStoreOpts{
		ProviderType: cfg.Graph.Provider,
		DSN:          cfg.Graph.DSN,
		SQLitePath:   cfg.Graph.SQLitePath,
		Dimension:    int(cfg.Embedding.Dimensions),
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating graph store: %w", err)
	}
	defer store.Close()

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	// Vector router: one backend instance per configured collection,
	// payload indexes provisioned once at startup.
	router, err := vecstoreutils.NewRouter(cfg.VectorStore.Collections, &vecstoreutils.NewStoreOpts{
		ProviderType:   cfg.VectorStore.Provider,
		Dimension:      int(cfg.Embedding.Dimensions),
		DistanceMetric: cfg.VectorStore.DistanceMetric,
		Host:           cfg.VectorStore.Host,
		Port:           int(cfg.VectorStore.Port),
		APIKey:         cfg.VectorStore.APIKey,
		UseTLS:         cfg.VectorStore.UseTLS,
		Logger:         c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating vector router: %w", err)
	}
	defer router.Close()

	if err := router.EnsurePayloadIndexes(ctx, indexedPayloadFields); err != nil {
		c.logger.Warn("ensuring payload indexes", zap.Error(err))
	}

	// Async mirror keeping the vector index eventually consistent with
	// the graph.
	pool, err := vecsync.NewPool(&vecsync.Config{
		Mirror:     router,
		Collection: cfg.VectorStore.Collections[0],
		Embedder:   embedder,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating vector sync pool: %w", err)
	}
	defer pool.Close()

	publisher, err := c.newPublisher()
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()

	mcpHandler, err := c.newMCPHandler(store, embedder)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiConfig := api.Config{
		ListenAddr: cfg.API.Listen,
		Embedder:   embedder,
		MCP:        mcpHandler,
		Sync:       pool,
		Publisher:  publisher,
	}
	server := api.NewServer(apiConfig, store, c.logger)

	c.logger.Info("starting memos",
		zap.String("listen", cfg.API.Listen),
		zap.String("graph_provider", cfg.Graph.Provider),
		zap.String("vector_provider", cfg.VectorStore.Provider),
		zap.Strings("collections", cfg.VectorStore.Collections),
		zap.Bool("eventstream", cfg.EventStream.Enabled),
		zap.Bool("mcp", !c.noMCP),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case sig := <-sigCh:
		c.logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := server.Shutdown(); err != nil {
			return fmt.Errorf("shutting down api server: %w", err)
		}
		return nil
	}
}

// newPublisher returns the Kafka publisher when event streaming is
// enabled, the no-op publisher otherwise.
func (c *ServeCommander) newPublisher() (eventstream.Publisher, error) {
	if !c.cfg.EventStream.Enabled {
		return nop.NewPublisher(), nil
	}
	return kafka.NewPublisher(kafka.Config{
		Brokers: c.cfg.EventStream.Brokers,
		Topic:   c.cfg.EventStream.Topic,
	}, c.logger)
}

// newMCPHandler builds the MCP endpoint, or a tool-less one when disabled.
func (c *ServeCommander) newMCPHandler(store graph.Store, embedder embeddings.Embedder) (http.Handler, error) {
	mcpServer, err := mcp.NewServer(mcp.Config{
		Store:    store,
		Embedder: embedder,
		Noop:     c.noMCP,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, err
	}
	return mcpServer.Handler(), nil
}
