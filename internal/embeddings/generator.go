package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ziadkadry99/clove/internal/ragerr"
)

const (
	// DefaultBatchSize keeps requests under provider input-count limits.
	DefaultBatchSize = 96
	// DefaultBatchDelay is the pause between consecutive batches.
	DefaultBatchDelay = 50 * time.Millisecond
)

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	BatchSize  int
	BatchDelay time.Duration
	Logger     zerolog.Logger
}

// Generator embeds arbitrarily many texts through an Embedder, one bounded
// batch at a time. Batches run sequentially to stay inside provider rate
// limits, and any failed batch fails the whole call.
type Generator struct {
	embedder  Embedder
	batchSize int
	delay     time.Duration
	log       zerolog.Logger
}

// NewGenerator wraps e. Zero config values use the defaults; a negative
// BatchDelay disables the pause.
func NewGenerator(e Embedder, cfg GeneratorConfig) *Generator {
	size := cfg.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	delay := cfg.BatchDelay
	if delay == 0 {
		delay = DefaultBatchDelay
	}
	if delay < 0 {
		delay = 0
	}
	return &Generator{embedder: e, batchSize: size, delay: delay, log: cfg.Logger}
}

// Embedder returns the wrapped provider.
func (g *Generator) Embedder() Embedder { return g.embedder }

// Dimensions returns the vector size of the wrapped provider.
func (g *Generator) Dimensions() int { return g.embedder.Dimensions() }

// Embed returns one vector per text, with out[i] belonging to texts[i].
// Empty input makes no provider call.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return g.EmbedWithProgress(ctx, texts, nil)
}

// EmbedWithProgress is Embed, calling onBatch with the number of texts
// embedded so far after every batch.
func (g *Generator) EmbedWithProgress(ctx context.Context, texts []string, onBatch func(done, total int)) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batches := (len(texts) + g.batchSize - 1) / g.batchSize
	out := make([][]float32, 0, len(texts))

	for b := 0; b < batches; b++ {
		start := b * g.batchSize
		end := min(start+g.batchSize, len(texts))
		batchNo := b + 1

		vectors, err := g.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, ragerr.NewBatchProvider(ragerr.StageEmbed, "generate embeddings", batchNo, err)
		}
		if err := g.checkBatch(vectors, end-start); err != nil {
			return nil, ragerr.NewBatchProvider(ragerr.StageEmbed, "generate embeddings", batchNo, err)
		}
		out = append(out, vectors...)
		if onBatch != nil {
			onBatch(len(out), len(texts))
		}

		g.log.Debug().
			Str("model", g.embedder.Name()).
			Int("batch", batchNo).
			Int("batches", batches).
			Int("texts", end-start).
			Msg("embedded batch")

		if batchNo < batches && g.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.delay):
			}
		}
	}

	return out, nil
}

func (g *Generator) checkBatch(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("provider returned %d embeddings for %d texts", len(vectors), want)
	}
	dims := g.embedder.Dimensions()
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("provider returned an empty embedding at position %d", i)
		}
		if dims > 0 && len(v) != dims {
			return fmt.Errorf("embedding at position %d has %d dimensions, expected %d", i, len(v), dims)
		}
	}
	return nil
}

// EmbedQuery embeds a single query text.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ragerr.Validationf(ragerr.StageEmbed, "query text is empty")
	}
	vectors, err := g.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, ragerr.NewProvider(ragerr.StageEmbed, "embed query", err)
	}
	if err := g.checkBatch(vectors, 1); err != nil {
		return nil, ragerr.NewProvider(ragerr.StageEmbed, "embed query", err)
	}
	return vectors[0], nil
}
