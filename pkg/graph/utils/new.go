// Package graphutils constructs graph store backends from configuration.
package graphutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/graph"
	"github.com/anatolykoptev/MemOS/pkg/graph/inmemory"
	"github.com/anatolykoptev/MemOS/pkg/graph/postgres"
	"github.com/anatolykoptev/MemOS/pkg/graph/sqlite"
)

type NewStoreOpts struct {
	ProviderType string
	DSN          string
	SQLitePath   string
	Dimension    int
	Logger       *zap.Logger
}

// NewStore builds a graph store for the configured provider. Engine-backed
// providers connect and provision their schema here, once, so callers only
// ever see a ready store.
func NewStore(ctx context.Context, o *NewStoreOpts) (graph.Store, error) {
	switch o.ProviderType {
	case "postgres":
		return postgres.NewStore(ctx, postgres.Config{
			DSN:       o.DSN,
			Dimension: o.Dimension,
		}, o.Logger)
	case "sqlite":
		return sqlite.NewStore(ctx, sqlite.Config{
			Path:      o.SQLitePath,
			Dimension: o.Dimension,
		}, o.Logger)
	case "inmemory", "memory":
		return inmemory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported graph store provider: %s", o.ProviderType)
	}
}
