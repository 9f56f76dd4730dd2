package config

import (
	"path/filepath"
	"time"
)

// ConfigFile is the default configuration file name.
const ConfigFile = ".clove.yml"

// Preset describes the models to use with a provider.
type Preset struct {
	Model          string
	EmbeddingModel string
	Dimensions     int
}

// presets maps each provider to its model choices.
var presets = map[ProviderType]Preset{
	ProviderOpenAI:     {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small", Dimensions: 1536},
	ProviderOllama:     {Model: "llama3", EmbeddingModel: "nomic-embed-text", Dimensions: 768},
	ProviderOpenRouter: {Model: "openai/gpt-4o-mini", EmbeddingModel: "text-embedding-3-small", Dimensions: 1536},
}

// DefaultExcludes are glob patterns excluded from indexing by default.
var DefaultExcludes = []string{
	"vendor/**",
	"node_modules/**",
	".git/**",
	"dist/**",
	"build/**",
	".next/**",
	"coverage/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/*.lock",
	"**/go.sum",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: ".clove",
		Embedding: EmbeddingConfig{
			Provider:          ProviderOpenAI,
			Model:             "text-embedding-3-small",
			Dimensions:        1536,
			BatchSize:         96,
			BatchDelay:        50 * time.Millisecond,
			IncludePathPrefix: true,
		},
		Vector: VectorConfig{
			Backend:           BackendChromem,
			Collection:        "clove",
			QdrantURL:         "http://localhost:6333",
			UpsertBatchSize:   100,
			UpsertConcurrency: 4,
		},
		Chunking: ChunkingConfig{
			Strategy:      "recursive",
			ChunkSize:     1000,
			ChunkOverlap:  100,
			LinesPerChunk: 100,
			Concurrency:   4,
		},
		Walker: WalkerConfig{
			MaxFileSize:   10 << 20,
			Exclude:       DefaultExcludes,
			AllowDotfiles: []string{".gitignore", ".env.example"},
		},
		LLM: LLMConfig{
			Provider:              ProviderOpenAI,
			Model:                 "gpt-4o-mini",
			ReservedForCompletion: 4096,
			Temperature:           0.7,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// GetPreset returns the preset for provider, or the OpenAI preset if the
// provider is unknown.
func GetPreset(provider ProviderType) Preset {
	if p, ok := presets[provider]; ok {
		return p
	}
	return presets[ProviderOpenAI]
}

// DBPath is the registry database location.
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "clove.db") }

// VectorPath is the chromem persistence directory.
func (c *Config) VectorPath() string {
	if c.Vector.Path != "" {
		return c.Vector.Path
	}
	return filepath.Join(c.DataDir, "vectors")
}

// CloneDir is where repositories are checked out for indexing.
func (c *Config) CloneDir() string { return filepath.Join(c.DataDir, "tmp", "repos") }
