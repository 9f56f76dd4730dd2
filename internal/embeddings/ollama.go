package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaEmbedder generates embeddings using a local Ollama instance.
type OllamaEmbedder struct {
	model      string
	dimensions int
	embedder   *lcembeddings.EmbedderImpl
}

// NewOllamaEmbedder creates a new Ollama embedder.
// model is the Ollama model name (e.g. "nomic-embed-text").
// dimensions is the output dimension count for the model.
// baseURL defaults to http://localhost:11434 if empty.
func NewOllamaEmbedder(model string, dimensions int, baseURL string) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	// Batching and newline handling belong to the caller.
	embedder, err := lcembeddings.NewEmbedder(llm,
		lcembeddings.WithStripNewLines(false),
		lcembeddings.WithBatchSize(DefaultBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}
	return &OllamaEmbedder{model: model, dimensions: dimensions, embedder: embedder}, nil
}

func (e *OllamaEmbedder) Name() string {
	return "ollama/" + e.model
}

func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request failed: %w", err)
	}
	return vectors, nil
}
