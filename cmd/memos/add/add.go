// Package addcmder provides the add command for storing a single memory
// node from the command line.
package addcmder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/config"
	embeddingutils "github.com/anatolykoptev/MemOS/pkg/embeddings/utils"
	"github.com/anatolykoptev/MemOS/pkg/graph"
	graphutils "github.com/anatolykoptev/MemOS/pkg/graph/utils"
	"github.com/anatolykoptev/MemOS/pkg/logger"
)

type addCommander struct {
	memory   string
	id       string
	userName string
	scope    string
	tags     []string
	noEmbed  bool

	debug  bool
	cfg    *config.Config
	logger *zap.Logger
}

const addLongDesc string = `Store a memory node.

Embeds the memory text and writes the node to the graph store with an
activated status. The node id is generated unless --id is given.

Examples:
  memos add "The user prefers Go over Python"
  memos add "Standup is at 9:30" --scope WorkingMemory --tags standup,schedule
  memos add "Alice owns the billing service" --user alice`

const addShortDesc string = "Store a memory node"

func NewAddCmd() *cobra.Command {
	cmder := &addCommander{}

	cmd := &cobra.Command{
		Use:   "add <memory>",
		Short: addShortDesc,
		Long:  addLongDesc,
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
			cmder.memory = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().StringVar(&cmder.id, "id", "", "Node id (generated when empty)")
	cmd.Flags().StringVarP(&cmder.userName, "user", "u", "", "Owning user name")
	cmd.Flags().StringVar(&cmder.scope, "scope", graph.ScopeLongTermMemory, "Memory type scope")
	cmd.Flags().StringSliceVar(&cmder.tags, "tags", nil, "Comma-separated tags")
	cmd.Flags().BoolVar(&cmder.noEmbed, "no-embed", false, "Skip embedding generation")

	return cmd
}

func (c *addCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	if !graph.ValidScope(c.scope) {
		return fmt.Errorf("unrecognized scope %q (valid: %v)", c.scope, graph.Scopes)
	}

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

	id := c.id
	if id == "" {
		id = uuid.New().String()
	}

	metadata := map[string]any{
		graph.KeyMemoryType: c.scope,
		graph.KeyStatus:     graph.StatusActivated,
	}
	if len(c.tags) > 0 {
		metadata[graph.KeyTags] = c.tags
	}
	graph.ApplyUserName(metadata, c.userName)
	graph.EnsureTimestamps(metadata, time.Now().UTC())

	if !c.noEmbed {
		embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: c.cfg.Embedding.Provider,
			TargetURL:    c.cfg.Embedding.Target,
			Model:        c.cfg.Embedding.Model,
		})
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}

		vectors, err := embedder.Embed(ctx, []string{c.memory})
		if err != nil {
			return fmt.Errorf("embedding memory: %w", err)
		}
		if len(vectors) == 1 {
			metadata[graph.KeyEmbedding] = vectors[0]
		}
	}

	if err := store.AddNode(ctx, id, c.memory, metadata); err != nil {
		return fmt.Errorf("adding node: %w", err)
	}

	fmt.Println(id)
	return nil
}
