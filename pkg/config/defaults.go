package config

const (
	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

const (
	defaultDatabaseURL = "postgres://localhost:5432/loam"

	defaultProvider = "ollama"
	defaultTarget   = "http://localhost:11434"

	defaultEmbeddingModel      = "all-minilm"
	defaultEmbeddingDimensions = 384

	defaultLLMModel = "llama3.2"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "loam.memory.mutations"

	defaultEpisodeTTLDays     = 7
	defaultEpisodeCapacity    = 10000
	defaultConsolidationBatch = 50
	defaultSearchLimit        = 10
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Database: DatabaseConfig{
			URL: defaultDatabaseURL,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultProvider,
			Target:     defaultTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		LLM: LLMConfig{
			Provider: defaultProvider,
			Target:   defaultTarget,
			Model:    defaultLLMModel,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Memory: MemoryConfig{
			EpisodeTTLDays:     defaultEpisodeTTLDays,
			EpisodeCapacity:    defaultEpisodeCapacity,
			ConsolidationBatch: defaultConsolidationBatch,
			SearchLimit:        defaultSearchLimit,
		},
		Entity: EntityConfig{
			FuzzyEnabled: true,
		},
	}
}
