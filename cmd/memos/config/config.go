// Package configcmder provides the config command for managing persistent
// memos configuration stored in the .memos/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent memos configuration.

Configuration is stored as config.toml in the .memos/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  graph.provider, graph.dsn, graph.sqlite_path,
  vector_store.provider, vector_store.host, vector_store.port,
  vector_store.collections, vector_store.distance_metric,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  api.listen,
  eventstream.enabled, eventstream.brokers, eventstream.topic,
  websearch.target, websearch.max_results, websearch.language,
  maintenance.similarity_threshold, maintenance.conflict_floor

Use subcommands to get, set, or list configuration values:
  memos config set <key> <value>    Set a configuration value
  memos config get <key>            Get a configuration value
  memos config list                 List all configuration values

Examples:
  memos config set graph.provider postgres
  memos config set embedding.model nomic-embed-text
  memos config get vector_store.provider
  memos config list`

const configShortDesc string = "Manage persistent memos configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
