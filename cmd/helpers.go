package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ziadkadry99/clove/internal/assistant"
	"github.com/ziadkadry99/clove/internal/chunker"
	"github.com/ziadkadry99/clove/internal/config"
	"github.com/ziadkadry99/clove/internal/db"
	"github.com/ziadkadry99/clove/internal/embeddings"
	"github.com/ziadkadry99/clove/internal/gitclone"
	"github.com/ziadkadry99/clove/internal/llm"
	"github.com/ziadkadry99/clove/internal/rag"
	"github.com/ziadkadry99/clove/internal/registry"
	"github.com/ziadkadry99/clove/internal/vectorstore"
)

// app holds everything a command needs to index and query.
type app struct {
	cfg   *config.Config
	db    *db.DB
	store vectorstore.Store
	svc   *rag.Service
	ix    *registry.Indexer
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `clove init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// openApp wires the registry, vector store and retrieval service from config.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	store, err := createVectorStore(cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	database, err := db.Open(cfg.DBPath())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	svc := rag.NewService(
		chunker.New(chunker.Options{
			Strategy:      chunker.Strategy(cfg.Chunking.Strategy),
			ChunkSize:     cfg.Chunking.ChunkSize,
			ChunkOverlap:  cfg.Chunking.ChunkOverlap,
			LinesPerChunk: cfg.Chunking.LinesPerChunk,
		}),
		embeddings.NewGenerator(embedder, embeddings.GeneratorConfig{
			BatchSize:  cfg.Embedding.BatchSize,
			BatchDelay: cfg.Embedding.BatchDelay,
			Logger:     logger,
		}),
		store,
		rag.Config{
			Collection:        cfg.Vector.Collection,
			IncludePathPrefix: cfg.Embedding.IncludePathPrefix,
			ChunkConcurrency:  cfg.Chunking.Concurrency,
			Include:           cfg.Walker.Include,
			Exclude:           cfg.Walker.Exclude,
			MaxFileSize:       cfg.Walker.MaxFileSize,
			AllowDotfiles:     cfg.Walker.AllowDotfiles,
		},
		logger,
	)

	ix := registry.NewIndexer(
		registry.NewStore(database),
		svc,
		gitclone.NewCloner(cfg.CloneDir(), logger),
		logger,
	)

	return &app{cfg: cfg, db: database, store: store, svc: svc, ix: ix}, nil
}

func (a *app) Close() {
	if err := a.svc.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing vector store")
	}
	if err := a.db.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing database")
	}
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	e := cfg.Embedding
	switch e.Provider {
	case config.ProviderOllama:
		baseURL := e.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		return embeddings.NewOllamaEmbedder(e.Model, e.Dimensions, baseURL)
	default:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(embeddings.OpenAIConfig{
			APIKey:     apiKey,
			Model:      embeddings.OpenAIModel(e.Model),
			Dimensions: e.Dimensions,
			BaseURL:    e.BaseURL,
		}), nil
	}
}

func createVectorStore(cfg *config.Config, embedder embeddings.Embedder) (vectorstore.Store, error) {
	v := cfg.Vector
	if v.Backend == config.BackendQdrant {
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			URL:               v.QdrantURL,
			APIKey:            os.Getenv("QDRANT_API_KEY"),
			Dimensions:        embedder.Dimensions(),
			UpsertBatchSize:   v.UpsertBatchSize,
			UpsertConcurrency: v.UpsertConcurrency,
			Logger:            logger,
		}), nil
	}
	return vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:          cfg.VectorPath(),
		Dimensions:    embedder.Dimensions(),
		EmbeddingFunc: embeddings.ToChromemFunc(embedder),
		Concurrency:   v.UpsertConcurrency,
		Logger:        logger,
	})
}

// createAssistant builds the assistant over the app's repositories.
func (a *app) createAssistant() (*assistant.Assistant, error) {
	l := a.cfg.LLM
	provider, err := llm.NewProvider(llm.Config{
		Provider:          string(l.Provider),
		Model:             l.Model,
		BaseURL:           l.BaseURL,
		RequestsPerMinute: l.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	avg := a.cfg.Chunking.ChunkSize
	if a.cfg.Chunking.Strategy != string(chunker.StrategyRecursive) {
		avg = 0
	}
	return assistant.New(a.ix, provider, assistant.Config{
		Model:                 l.Model,
		ReservedForCompletion: l.ReservedForCompletion,
		AvgChunkTokens:        avg,
		Temperature:           l.Temperature,
	}, logger), nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9._-]+`)

// repoIDFromPath derives a stable repository id from a directory name.
func repoIDFromPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	id := nonSlug.ReplaceAllString(strings.ToLower(filepath.Base(abs)), "-")
	return strings.Trim(id, "-")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
