// Package initcmder provides the init command for initializing a local
// .memos directory in the current working directory.
package initcmder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/MemOS/pkg/config"
)

const (
	dirName = ".memos"
)

const initLongDesc string = `Initialize a new .memos/ directory in the current working directory.

Creates a local .memos/ directory with a default config.toml. The local
directory takes precedence over the default ~/.memos/ directory for
storage, configuration, and other memos operations.

This is useful for maintaining separate memory graphs per project or
directory.

Presets seed the config for a deployment shape:
  local    SQLite graph, in-process vectors (default)
  server   Postgres graph, Qdrant vectors, Kafka events

Examples:
  memos init
  memos init --preset server`

const initShortDesc string = "Initialize a local .memos/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Config preset to seed (local, server)")

	return cmd
}

func runInit(preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Printf("Already initialized: %s\n", dir)
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .memos directory: %w", err)
	}

	cfg := config.NewDefaultConfig()
	if preset != "" {
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return fmt.Errorf("%w\n\nValid presets: %s", err, strings.Join(config.ValidPresetNames(), ", "))
		}
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("preparing config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return fmt.Errorf("writing config.toml: %w", err)
	}

	fmt.Printf("Initialized .memos directory: %s\n", dir)
	return nil
}
