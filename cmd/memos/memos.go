// Package memoscmder
package memoscmder

import (
	"github.com/spf13/cobra"

	addcmder "github.com/anatolykoptev/MemOS/cmd/memos/add"
	configcmder "github.com/anatolykoptev/MemOS/cmd/memos/config"
	initcmder "github.com/anatolykoptev/MemOS/cmd/memos/init"
	maintaincmder "github.com/anatolykoptev/MemOS/cmd/memos/maintain"
	searchcmder "github.com/anatolykoptev/MemOS/cmd/memos/search"
	servecmder "github.com/anatolykoptev/MemOS/cmd/memos/serve"
	snapshotcmder "github.com/anatolykoptev/MemOS/cmd/memos/snapshot"
	websearchcmder "github.com/anatolykoptev/MemOS/cmd/memos/websearch"
	versioncmder "github.com/anatolykoptev/MemOS/cmd/version"
)

const memosLongDesc string = `MemOS is a polymorphic memory graph store for agents.

Store memories as a typed graph, retrieve them through vector, full-text,
metadata, tag and traversal queries, and keep the graph coherent over time
with deduplication, conflict detection and merge.

Run the server using:
  memos serve          Run the API server (REST + MCP)

Work with memories directly:
  memos add            Store a memory node
  memos search         Semantic search over stored memories
  memos maintain       Run structure maintenance passes
  memos snapshot       Export or import the whole graph
  memos websearch      Ingest web search results as memories`

const memosShortDesc string = "MemOS - Memory graph store"

func NewMemosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memos",
		Short: memosShortDesc,
		Long:  memosLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Path to the .memos directory (overrides discovery)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(addcmder.NewAddCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(maintaincmder.NewMaintainCmd())
	cmd.AddCommand(snapshotcmder.NewSnapshotCmd())
	cmd.AddCommand(websearchcmder.NewWebSearchCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
