package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: CLOVE_VECTOR__BACKEND=qdrant.
const EnvPrefix = "CLOVE_"

// LoadDotEnv loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CLOVE_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: CLOVE_LLM__MODEL -> llm.model, etc.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validEmbeddingProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

var validLLMProviders = map[ProviderType]bool{
	ProviderOpenAI:     true,
	ProviderOllama:     true,
	ProviderOpenRouter: true,
}

var validBackends = map[Backend]bool{
	BackendChromem: true,
	BackendQdrant:  true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	e := c.Embedding
	if !validEmbeddingProviders[e.Provider] {
		return fmt.Errorf("invalid embedding.provider %q: must be one of openai, ollama", e.Provider)
	}
	if e.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if e.Provider == ProviderOllama && e.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions is required for ollama")
	}
	if e.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be non-negative")
	}
	if e.BatchSize < 0 {
		return fmt.Errorf("embedding.batch_size must be non-negative")
	}

	v := c.Vector
	if !validBackends[v.Backend] {
		return fmt.Errorf("invalid vector.backend %q: must be one of chromem, qdrant", v.Backend)
	}
	if v.Collection == "" {
		return fmt.Errorf("vector.collection is required")
	}
	if v.Backend == BackendQdrant && v.QdrantURL == "" {
		return fmt.Errorf("vector.qdrant_url is required for the qdrant backend")
	}
	if v.UpsertBatchSize < 0 || v.UpsertConcurrency < 0 {
		return fmt.Errorf("vector.upsert_batch_size and vector.upsert_concurrency must be non-negative")
	}

	ch := c.Chunking
	switch ch.Strategy {
	case "recursive", "lines":
	default:
		return fmt.Errorf("invalid chunking.strategy %q: must be one of recursive, lines", ch.Strategy)
	}
	if ch.ChunkSize < 0 || ch.LinesPerChunk < 0 || ch.Concurrency < 0 {
		return fmt.Errorf("chunking sizes must be non-negative")
	}
	if ch.ChunkOverlap < 0 || (ch.ChunkSize > 0 && ch.ChunkOverlap >= ch.ChunkSize) {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size)")
	}

	if c.Walker.MaxFileSize < 0 {
		return fmt.Errorf("walker.max_file_size must be non-negative")
	}

	l := c.LLM
	if l.Provider != "" && !validLLMProviders[l.Provider] {
		return fmt.Errorf("invalid llm.provider %q: must be one of openai, openrouter, ollama", l.Provider)
	}
	if l.ReservedForCompletion < 0 {
		return fmt.Errorf("llm.reserved_for_completion must be non-negative")
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must be non-negative")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0, 2]")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}
