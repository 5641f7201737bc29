// Package maintaincmder provides the maintain command running structure
// maintenance passes over the memory graph.
package maintaincmder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/config"
	embeddingutils "github.com/anatolykoptev/MemOS/pkg/embeddings/utils"
	"github.com/anatolykoptev/MemOS/pkg/eventstream"
	"github.com/anatolykoptev/MemOS/pkg/eventstream/kafka"
	"github.com/anatolykoptev/MemOS/pkg/eventstream/nop"
	"github.com/anatolykoptev/MemOS/pkg/graph"
	graphutils "github.com/anatolykoptev/MemOS/pkg/graph/utils"
	"github.com/anatolykoptev/MemOS/pkg/logger"
	"github.com/anatolykoptev/MemOS/pkg/maintain"
)

type maintainCommander struct {
	scope string

	debug  bool
	cfg    *config.Config
	logger *zap.Logger
}

const maintainLongDesc string = `Run structure maintenance over the memory graph.

Maintenance passes are batch work layered on the store contract:
  memos maintain dedup         Collapse near-duplicate nodes
  memos maintain conflicts     Report contradicting node pairs
  memos maintain candidates    Report structure-optimization candidates
  memos maintain merge A B     Merge two nodes into one survivor

Dedup and merge mutate the graph; conflicts and candidates only report.

Examples:
  memos maintain dedup --scope LongTermMemory
  memos maintain conflicts
  memos maintain merge 4f2a... 9c1b...`

const maintainShortDesc string = "Run structure maintenance passes"

func NewMaintainCmd() *cobra.Command {
	cmder := &maintainCommander{}

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: maintainShortDesc,
		Long:  maintainLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg, err = cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cmder.scope, "scope", graph.ScopeLongTermMemory, "Memory type scope to maintain")

	cmd.AddCommand(cmder.newDedupCmd())
	cmd.AddCommand(cmder.newConflictsCmd())
	cmd.AddCommand(cmder.newCandidatesCmd())
	cmd.AddCommand(cmder.newMergeCmd())

	return cmd
}

func (c *maintainCommander) newDedupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedup",
		Short: "Collapse near-duplicate nodes in the scope",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.withEngine(func(ctx context.Context, engine *maintain.Engine) error {
				report, err := engine.DeduplicateNodes(ctx, c.scope)
				if err != nil {
					return fmt.Errorf("deduplicating: %w", err)
				}
				return printJSON(report)
			})
		},
	}
}

func (c *maintainCommander) newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "Report contradicting node pairs in the scope",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.withEngine(func(ctx context.Context, engine *maintain.Engine) error {
				pairs, err := engine.DetectConflicts(ctx, c.scope)
				if err != nil {
					return fmt.Errorf("detecting conflicts: %w", err)
				}
				if pairs == nil {
					pairs = []maintain.ConflictPair{}
				}
				return printJSON(pairs)
			})
		},
	}
}

func (c *maintainCommander) newCandidatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "candidates",
		Short: "Report structure-optimization candidates in the scope",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.withEngine(func(ctx context.Context, engine *maintain.Engine) error {
				nodes, err := engine.StructureCandidates(ctx, c.scope)
				if err != nil {
					return fmt.Errorf("finding candidates: %w", err)
				}
				for _, n := range nodes {
					fmt.Println(n.ID)
				}
				fmt.Fprintf(os.Stderr, "%d candidates\n", len(nodes))
				return nil
			})
		},
	}
}

func (c *maintainCommander) newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <id1> <id2>",
		Short: "Merge two nodes into one survivor",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.withEngine(func(ctx context.Context, engine *maintain.Engine) error {
				survivor, err := engine.MergeNodes(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("merging: %w", err)
				}
				fmt.Println(survivor)
				return nil
			})
		},
	}
}

// withEngine builds the store, embedder, publisher, and engine, runs fn,
// and tears everything down.
func (c *maintainCommander) withEngine(fn func(context.Context, *maintain.Engine) error) error {
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

	publisher, err := c.newPublisher()
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()

	engine, err := maintain.NewEngine(maintain.Config{
		Store:               store,
		Embedder:            embedder,
		Publisher:           publisher,
		SimilarityThreshold: float32(c.cfg.Maintenance.SimilarityThreshold),
		ConflictFloor:       float32(c.cfg.Maintenance.ConflictFloor),
		Logger:              c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating maintenance engine: %w", err)
	}

	return fn(ctx, engine)
}

func (c *maintainCommander) newPublisher() (eventstream.Publisher, error) {
	if !c.cfg.EventStream.Enabled {
		return nop.NewPublisher(), nil
	}
	return kafka.NewPublisher(kafka.Config{
		Brokers: c.cfg.EventStream.Brokers,
		Topic:   c.cfg.EventStream.Topic,
	}, c.logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
