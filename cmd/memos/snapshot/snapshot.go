// Package snapshotcmder provides the snapshot command for exporting and
// importing the whole memory graph.
package snapshotcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/config"
	"github.com/anatolykoptev/MemOS/pkg/graph"
	graphutils "github.com/anatolykoptev/MemOS/pkg/graph/utils"
	"github.com/anatolykoptev/MemOS/pkg/logger"
)

type snapshotCommander struct {
	embedding bool

	debug  bool
	cfg    *config.Config
	logger *zap.Logger
}

const snapshotLongDesc string = `Export or import the whole memory graph.

Export writes a JSON snapshot of every node and edge to stdout or a file.
Import recreates a graph from a snapshot; records with the same identity
are overwritten, so importing an export round-trips the graph exactly.

Examples:
  memos snapshot export > graph.json
  memos snapshot export --embedding -o graph.json
  memos snapshot import graph.json`

const snapshotShortDesc string = "Export or import the memory graph"

func NewSnapshotCmd() *cobra.Command {
	cmder := &snapshotCommander{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: snapshotShortDesc,
		Long:  snapshotLongDesc,
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

	cmd.AddCommand(cmder.newExportCmd())
	cmd.AddCommand(cmder.newImportCmd())

	return cmd
}

func (c *snapshotCommander) newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the graph as a JSON snapshot",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.withStore(func(ctx context.Context, store graph.Store) error {
				snap, err := store.ExportGraph(ctx, c.embedding)
				if err != nil {
					return fmt.Errorf("exporting graph: %w", err)
				}

				w := os.Stdout
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return fmt.Errorf("creating %s: %w", out, err)
					}
					defer f.Close()
					w = f
				}

				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(snap); err != nil {
					return fmt.Errorf("encoding snapshot: %w", err)
				}

				fmt.Fprintf(os.Stderr, "exported %d nodes, %d edges\n", len(snap.Nodes), len(snap.Edges))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&c.embedding, "embedding", false, "Include embedding vectors in the snapshot")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write the snapshot to a file instead of stdout")

	return cmd
}

func (c *snapshotCommander) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON snapshot into the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.withStore(func(ctx context.Context, store graph.Store) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("reading %s: %w", args[0], err)
				}

				var snap graph.Snapshot
				if err := json.Unmarshal(data, &snap); err != nil {
					return fmt.Errorf("parsing snapshot: %w", err)
				}

				if err := store.ImportGraph(ctx, &snap); err != nil {
					return fmt.Errorf("importing graph: %w", err)
				}

				fmt.Printf("imported %d nodes, %d edges\n", len(snap.Nodes), len(snap.Edges))
				return nil
			})
		},
	}
}

func (c *snapshotCommander) withStore(fn func(context.Context, graph.Store) error) error {
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

	return fn(ctx, store)
}
