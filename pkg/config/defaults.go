package config

const (
	defaultGraphProvider   = "sqlite"
	defaultGraphSQLitePath = "memos.db"

	defaultVectorProvider = "memvec"
	defaultVectorHost     = "localhost"
	defaultVectorPort     = 6334
	defaultVectorMetric   = "cosine"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultAPIListen = ":8081"

	defaultEventBroker = "localhost:9092"
	defaultEventTopic  = "memos.node-events"

	defaultWebSearchTarget     = "http://localhost:8080"
	defaultWebSearchMaxResults = 20

	defaultSimilarityThreshold = 0.92
	defaultConflictFloor       = 0.75

	// defaultCollection is the vector collection graph writes mirror into
	// when no collections are configured.
	defaultCollection = "memories"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Graph: GraphConfig{
			Provider:   defaultGraphProvider,
			SQLitePath: defaultGraphSQLitePath,
		},
		VectorStore: VectorStoreConfig{
			Provider:       defaultVectorProvider,
			Host:           defaultVectorHost,
			Port:           defaultVectorPort,
			Collections:    []string{defaultCollection},
			DistanceMetric: defaultVectorMetric,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			Enabled: false,
			Brokers: []string{defaultEventBroker},
			Topic:   defaultEventTopic,
		},
		WebSearch: WebSearchConfig{
			Target:     defaultWebSearchTarget,
			MaxResults: defaultWebSearchMaxResults,
		},
		Maintenance: MaintenanceConfig{
			SimilarityThreshold: defaultSimilarityThreshold,
			ConflictFloor:       defaultConflictFloor,
		},
	}
}
