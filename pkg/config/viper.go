package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/anatolykoptev/MemOS/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the MEMOS_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (MEMOS_API_LISTEN, MEMOS_GRAPH_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: MEMOS_API_LISTEN, MEMOS_GRAPH_SQLITE_PATH, etc.
	v.SetEnvPrefix("MEMOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Graph
	v.SetDefault("graph.provider", d.Graph.Provider)
	v.SetDefault("graph.dsn", d.Graph.DSN)
	v.SetDefault("graph.sqlite_path", d.Graph.SQLitePath)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.host", d.VectorStore.Host)
	v.SetDefault("vector_store.port", d.VectorStore.Port)
	v.SetDefault("vector_store.api_key", d.VectorStore.APIKey)
	v.SetDefault("vector_store.use_tls", d.VectorStore.UseTLS)
	v.SetDefault("vector_store.collections", d.VectorStore.Collections)
	v.SetDefault("vector_store.distance_metric", d.VectorStore.DistanceMetric)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Eventstream
	v.SetDefault("eventstream.enabled", d.EventStream.Enabled)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)

	// Web search
	v.SetDefault("websearch.target", d.WebSearch.Target)
	v.SetDefault("websearch.max_results", d.WebSearch.MaxResults)
	v.SetDefault("websearch.language", d.WebSearch.Language)

	// Maintenance
	v.SetDefault("maintenance.similarity_threshold", d.Maintenance.SimilarityThreshold)
	v.SetDefault("maintenance.conflict_floor", d.Maintenance.ConflictFloor)
}

// FromViper materializes a Config from a viper instance prepared by
// InitViper (and optionally BindRegisteredFlags). Reading through explicit
// getters keeps the dotted keys the single naming source, matching
// setViperDefaults.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Graph: GraphConfig{
			Provider:   v.GetString("graph.provider"),
			DSN:        v.GetString("graph.dsn"),
			SQLitePath: v.GetString("graph.sqlite_path"),
		},
		VectorStore: VectorStoreConfig{
			Provider:       v.GetString("vector_store.provider"),
			Host:           v.GetString("vector_store.host"),
			Port:           v.GetUint("vector_store.port"),
			APIKey:         v.GetString("vector_store.api_key"),
			UseTLS:         v.GetBool("vector_store.use_tls"),
			Collections:    v.GetStringSlice("vector_store.collections"),
			DistanceMetric: v.GetString("vector_store.distance_metric"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		EventStream: EventStreamConfig{
			Enabled: v.GetBool("eventstream.enabled"),
			Brokers: v.GetStringSlice("eventstream.brokers"),
			Topic:   v.GetString("eventstream.topic"),
		},
		WebSearch: WebSearchConfig{
			Target:     v.GetString("websearch.target"),
			MaxResults: v.GetUint("websearch.max_results"),
			Language:   v.GetString("websearch.language"),
		},
		Maintenance: MaintenanceConfig{
			SimilarityThreshold: v.GetFloat64("maintenance.similarity_threshold"),
			ConflictFloor:       v.GetFloat64("maintenance.conflict_floor"),
		},
	}
}
