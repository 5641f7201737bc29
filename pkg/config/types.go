package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent memos configuration stored as config.toml
// in the .memos/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Graph       GraphConfig       `toml:"graph"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	API         APIConfig         `toml:"api"`
	EventStream EventStreamConfig `toml:"eventstream"`
	WebSearch   WebSearchConfig   `toml:"websearch"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
}

// GraphConfig holds graph store backend settings.
type GraphConfig struct {
	Provider   string `toml:"provider,omitempty"`
	DSN        string `toml:"dsn,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// VectorStoreConfig holds vector store backend settings shared by every
// routed collection.
type VectorStoreConfig struct {
	Provider       string   `toml:"provider,omitempty"`
	Host           string   `toml:"host,omitempty"`
	Port           uint     `toml:"port,omitempty"`
	APIKey         string   `toml:"api_key,omitempty"`
	UseTLS         bool     `toml:"use_tls,omitempty"`
	Collections    []string `toml:"collections,omitempty"`
	DistanceMetric string   `toml:"distance_metric,omitempty"`
}

// EmbeddingConfig holds embedding provider settings. Dimensions is the
// single source of truth for vector dimensionality across the graph and
// vector backends.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventStreamConfig holds node event publishing settings.
type EventStreamConfig struct {
	Enabled bool     `toml:"enabled,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// WebSearchConfig holds SearXNG web search ingestion settings.
type WebSearchConfig struct {
	Target     string `toml:"target,omitempty"`
	MaxResults uint   `toml:"max_results,omitempty"`
	Language   string `toml:"language,omitempty"`
}

// MaintenanceConfig holds structure maintenance thresholds.
type MaintenanceConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold,omitempty"`
	ConflictFloor       float64 `toml:"conflict_floor,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"graph.provider": {
		get: func(c *Config) string { return c.Graph.Provider },
		set: func(c *Config, v string) error { c.Graph.Provider = v; return nil },
	},
	"graph.dsn": {
		get: func(c *Config) string { return c.Graph.DSN },
		set: func(c *Config, v string) error { c.Graph.DSN = v; return nil },
	},
	"graph.sqlite_path": {
		get: func(c *Config) string { return c.Graph.SQLitePath },
		set: func(c *Config, v string) error { c.Graph.SQLitePath = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.host": {
		get: func(c *Config) string { return c.VectorStore.Host },
		set: func(c *Config, v string) error { c.VectorStore.Host = v; return nil },
	},
	"vector_store.port": {
		get: func(c *Config) string {
			if c.VectorStore.Port == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.VectorStore.Port), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for vector_store.port: %w", err)
			}
			c.VectorStore.Port = uint(n)
			return nil
		},
	},
	"vector_store.api_key": {
		get: func(c *Config) string { return c.VectorStore.APIKey },
		set: func(c *Config, v string) error { c.VectorStore.APIKey = v; return nil },
	},
	"vector_store.use_tls": {
		get: func(c *Config) string { return strconv.FormatBool(c.VectorStore.UseTLS) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for vector_store.use_tls: %w", err)
			}
			c.VectorStore.UseTLS = b
			return nil
		},
	},
	"vector_store.collections": {
		get: func(c *Config) string { return strings.Join(c.VectorStore.Collections, ",") },
		set: func(c *Config, v string) error {
			c.VectorStore.Collections = splitList(v)
			return nil
		},
	},
	"vector_store.distance_metric": {
		get: func(c *Config) string { return c.VectorStore.DistanceMetric },
		set: func(c *Config, v string) error { c.VectorStore.DistanceMetric = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"eventstream.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.EventStream.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for eventstream.enabled: %w", err)
			}
			c.EventStream.Enabled = b
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = splitList(v)
			return nil
		},
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"websearch.target": {
		get: func(c *Config) string { return c.WebSearch.Target },
		set: func(c *Config, v string) error { c.WebSearch.Target = v; return nil },
	},
	"websearch.max_results": {
		get: func(c *Config) string {
			if c.WebSearch.MaxResults == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.WebSearch.MaxResults), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for websearch.max_results: %w", err)
			}
			c.WebSearch.MaxResults = uint(n)
			return nil
		},
	},
	"websearch.language": {
		get: func(c *Config) string { return c.WebSearch.Language },
		set: func(c *Config, v string) error { c.WebSearch.Language = v; return nil },
	},
	"maintenance.similarity_threshold": {
		get: func(c *Config) string {
			if c.Maintenance.SimilarityThreshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Maintenance.SimilarityThreshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for maintenance.similarity_threshold: %w", err)
			}
			c.Maintenance.SimilarityThreshold = f
			return nil
		},
	},
	"maintenance.conflict_floor": {
		get: func(c *Config) string {
			if c.Maintenance.ConflictFloor == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Maintenance.ConflictFloor, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for maintenance.conflict_floor: %w", err)
			}
			c.Maintenance.ConflictFloor = f
			return nil
		},
	},
}

// splitList parses a comma-separated value into a trimmed string slice.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
