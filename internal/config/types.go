package config

import "time"

// ProviderType identifies an embedding or LLM provider.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderOllama     ProviderType = "ollama"
	ProviderOpenRouter ProviderType = "openrouter"
)

// Backend identifies a vector store implementation.
type Backend string

const (
	BackendChromem Backend = "chromem"
	BackendQdrant  Backend = "qdrant"
)

// Config is the top-level clove configuration, corresponding to .clove.yml.
type Config struct {
	// DataDir holds the registry database, the chromem collection and
	// temporary clones.
	DataDir   string          `yaml:"data_dir" koanf:"data_dir"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Vector    VectorConfig    `yaml:"vector" koanf:"vector"`
	Chunking  ChunkingConfig  `yaml:"chunking" koanf:"chunking"`
	Walker    WalkerConfig    `yaml:"walker" koanf:"walker"`
	LLM       LLMConfig       `yaml:"llm" koanf:"llm"`
	Server    ServerConfig    `yaml:"server" koanf:"server"`
}

// EmbeddingConfig selects the embedding provider and batching.
type EmbeddingConfig struct {
	Provider   ProviderType `yaml:"provider" koanf:"provider"`
	Model      string       `yaml:"model" koanf:"model"`
	Dimensions int          `yaml:"dimensions" koanf:"dimensions"`
	BatchSize  int          `yaml:"batch_size" koanf:"batch_size"`
	// BatchDelay pauses between batches; negative disables it.
	BatchDelay        time.Duration `yaml:"batch_delay" koanf:"batch_delay"`
	BaseURL           string        `yaml:"base_url,omitempty" koanf:"base_url"`
	IncludePathPrefix bool          `yaml:"include_path_prefix" koanf:"include_path_prefix"`
}

// VectorConfig selects the vector store.
type VectorConfig struct {
	Backend           Backend `yaml:"backend" koanf:"backend"`
	Collection        string  `yaml:"collection" koanf:"collection"`
	QdrantURL         string  `yaml:"qdrant_url,omitempty" koanf:"qdrant_url"`
	Path              string  `yaml:"path,omitempty" koanf:"path"`
	UpsertBatchSize   int     `yaml:"upsert_batch_size" koanf:"upsert_batch_size"`
	UpsertConcurrency int     `yaml:"upsert_concurrency" koanf:"upsert_concurrency"`
}

// ChunkingConfig controls how files are split.
type ChunkingConfig struct {
	Strategy      string `yaml:"strategy" koanf:"strategy"`
	ChunkSize     int    `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap" koanf:"chunk_overlap"`
	LinesPerChunk int    `yaml:"lines_per_chunk" koanf:"lines_per_chunk"`
	Concurrency   int    `yaml:"concurrency" koanf:"concurrency"`
}

// WalkerConfig controls which files are indexed.
type WalkerConfig struct {
	MaxFileSize   int64    `yaml:"max_file_size" koanf:"max_file_size"`
	Include       []string `yaml:"include,omitempty" koanf:"include"`
	Exclude       []string `yaml:"exclude" koanf:"exclude"`
	AllowDotfiles []string `yaml:"allow_dotfiles" koanf:"allow_dotfiles"`
}

// LLMConfig selects the completion provider for the assistant.
type LLMConfig struct {
	Provider              ProviderType `yaml:"provider" koanf:"provider"`
	Model                 string       `yaml:"model" koanf:"model"`
	BaseURL               string       `yaml:"base_url,omitempty" koanf:"base_url"`
	ReservedForCompletion int          `yaml:"reserved_for_completion" koanf:"reserved_for_completion"`
	RequestsPerMinute     int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	Temperature           float64      `yaml:"temperature" koanf:"temperature"`
}

// ServerConfig configures `clove serve`.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}
