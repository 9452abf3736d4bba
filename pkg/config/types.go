// Package config loads loam configuration from the .loam/ directory,
// environment variables, and defaults, in ascending precedence of
// defaults < config file < LOAM_* environment < CLI flags.
package config

// Config represents the persistent loam configuration stored as config.toml
// in the .loam/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `mapstructure:"version"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Events    EventsConfig    `mapstructure:"events"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Entity    EntityConfig    `mapstructure:"entity"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Target     string `mapstructure:"target"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig holds the consolidation collaborator settings. An empty
// provider disables extraction; consolidation runs dry.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	Target   string `mapstructure:"target"`
	Model    string `mapstructure:"model"`
}

// EventsConfig holds audit event stream settings.
type EventsConfig struct {
	Provider string   `mapstructure:"provider"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
}

// MemoryConfig holds memory lifecycle settings.
type MemoryConfig struct {
	EpisodeTTLDays     int `mapstructure:"episode_ttl_days"`
	EpisodeCapacity    int `mapstructure:"episode_capacity"`
	ConsolidationBatch int `mapstructure:"consolidation_batch"`
	SearchLimit        int `mapstructure:"search_limit"`
}

// EntityConfig holds entity resolution settings.
type EntityConfig struct {
	FuzzyEnabled bool `mapstructure:"fuzzy_enabled"`
}
