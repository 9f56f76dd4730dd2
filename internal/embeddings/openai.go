package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIModel represents a supported OpenAI embedding model.
type OpenAIModel string

const (
	ModelTextEmbedding3Small OpenAIModel = "text-embedding-3-small"
	ModelTextEmbedding3Large OpenAIModel = "text-embedding-3-large"
	ModelTextEmbeddingAda002 OpenAIModel = "text-embedding-ada-002"
)

func (m OpenAIModel) dimensions() int {
	switch m {
	case ModelTextEmbedding3Large:
		return 3072
	default:
		return 1536
	}
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	APIKey string
	Model  OpenAIModel
	// Dimensions overrides the model's native size (text-embedding-3 only).
	Dimensions int
	// BaseURL points the client at an OpenAI-compatible endpoint.
	BaseURL string
}

// OpenAIEmbedder generates embeddings using OpenAI's API. Each Embed call is
// a single request; batching is left to Generator.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      OpenAIModel
	dimensions int
}

// NewOpenAIEmbedder creates a new OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = ModelTextEmbedding3Small
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = model.dimensions()
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: dims,
	}
}

func (e *OpenAIEmbedder) Name() string {
	return string(e.model)
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions != e.model.dimensions() {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings, expected %d", len(resp.Data), len(texts))
	}

	// The API reports each vector's input position; do not rely on list order.
	out := make([][]float32, len(texts))
	for _, emb := range resp.Data {
		if emb.Index < 0 || emb.Index >= len(out) || out[emb.Index] != nil {
			return nil, fmt.Errorf("openai returned invalid embedding index %d", emb.Index)
		}
		out[emb.Index] = emb.Embedding
	}
	return out, nil
}
