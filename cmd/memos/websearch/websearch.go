// Package websearchcmder provides the websearch command for ingesting
// web search results as memory nodes.
package websearchcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/config"
	embeddingutils "github.com/anatolykoptev/MemOS/pkg/embeddings/utils"
	graphutils "github.com/anatolykoptev/MemOS/pkg/graph/utils"
	"github.com/anatolykoptev/MemOS/pkg/logger"
	"github.com/anatolykoptev/MemOS/pkg/websearch"
)

type websearchCommander struct {
	query    string
	topK     int
	userName string

	debug  bool
	cfg    *config.Config
	logger *zap.Logger
}

const websearchLongDesc string = `Ingest web search results as memories.

Queries the configured SearXNG instance, converts the top hits into
long-term memory nodes with provenance metadata and tags, embeds them in
one batch, and stores them in the graph.

Examples:
  memos websearch "qdrant payload index performance"
  memos websearch "Go 1.25 release notes" --top 5 --user alice`

const websearchShortDesc string = "Ingest web search results as memories"

func NewWebSearchCmd() *cobra.Command {
	cmder := &websearchCommander{}

	cmd := &cobra.Command{
		Use:   "websearch <query>",
		Short: websearchShortDesc,
		Long:  websearchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg, err = cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().IntVarP(&cmder.topK, "top", "t", 0, "Number of results to ingest (default from config)")
	cmd.Flags().StringVarP(&cmder.userName, "user", "u", "", "Owning user name")

	return cmd
}

func (c *websearchCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	ctx := context.Background()

	store, err := graphutils.NewStore(ctx, &graphutils.NewStoreOpts{
		ProviderType: c.cfg.Graph.Provider,
		DSN:          c.cfg.Graph.DSN,
		SQLitePath:   c.cfg.Graph.SQLitePath,
		Dimension:    int(c.cfg.Embedding.Dimensions),
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating graph store: %w", err)
	}
	defer store.Close()

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: c.cfg.Embedding.Provider,
		TargetURL:    c.cfg.Embedding.Target,
		Model:        c.cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	client, err := websearch.NewClient(websearch.ClientConfig{
		BaseURL:    c.cfg.WebSearch.Target,
		MaxResults: int(c.cfg.WebSearch.MaxResults),
		Language:   c.cfg.WebSearch.Language,
	})
	if err != nil {
		return fmt.Errorf("creating search client: %w", err)
	}

	retriever, err := websearch.NewRetriever(&websearch.RetrieverConfig{
		Client:   client,
		Embedder: embedder,
		Store:    store,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating retriever: %w", err)
	}

	topK := c.topK
	if topK <= 0 {
		topK = int(c.cfg.WebSearch.MaxResults)
	}

	nodes, err := retriever.RetrieveFromInternet(ctx, c.query, topK, c.userName)
	if err != nil {
		return fmt.Errorf("retrieving: %w", err)
	}

	for _, n := range nodes {
		fmt.Println(n.ID)
	}
	fmt.Printf("stored %d memories\n", len(nodes))

	return nil
}
