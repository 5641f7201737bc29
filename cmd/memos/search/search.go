// Package searchcmder provides the search command for semantic search
// over stored memories.
package searchcmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apisearch "github.com/anatolykoptev/MemOS/api/search"
	"github.com/anatolykoptev/MemOS/pkg/config"
	embeddingutils "github.com/anatolykoptev/MemOS/pkg/embeddings/utils"
	graphutils "github.com/anatolykoptev/MemOS/pkg/graph/utils"
	"github.com/anatolykoptev/MemOS/pkg/logger"
)

type searchCommander struct {
	query string
	topK  int
	quiet bool

	debug  bool
	cfg    *config.Config
	logger *zap.Logger
	out    *slog.Logger
}

const searchLongDesc string = `Semantic search over stored memories.

Embeds the query text, ranks memory nodes by vector similarity, and
prints the top results with their scores and previews.

Use --quiet to output only node ids, one per line, for piping into other
commands.

Examples:
  memos search "preferred programming language"
  memos search "project deadlines" --top 10
  memos search "user preferences" --quiet`

const searchShortDesc string = "Semantic search over stored memories"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
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

	cmd.Flags().IntVarP(&cmder.topK, "top", "t", apisearch.DefaultTopK, "Number of results to return")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only node ids, one per line")

	return cmd
}

func (c *searchCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	c.out = logger.New(
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
		logger.WithDebug(c.debug),
	)

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

	start := time.Now()
	out, err := apisearch.Search(ctx, c.query, c.topK, embedder, store, c.logger)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	c.out.Debug("search complete", "results", out.Count, "elapsed", time.Since(start))

	if c.quiet {
		for _, r := range out.Results {
			fmt.Println(r.ID)
		}
		return nil
	}

	if out.Count == 0 {
		c.out.Info("no matching memories", "query", c.query)
		return nil
	}

	for i, r := range out.Results {
		fmt.Printf("%2d. [%.4f] %s\n", i+1, r.Score, r.ID)
		if r.MemoryType != "" || r.Status != "" {
			fmt.Printf("    %s %s\n", r.MemoryType, r.Status)
		}
		fmt.Printf("    %s\n", r.Preview)
	}
	fmt.Printf("\n%d results\n", out.Count)

	return nil
}
