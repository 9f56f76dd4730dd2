package embeddings

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ToChromemFunc converts an Embedder into a chromem.EmbeddingFunc so
// collections can embed documents that arrive without a vector.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		results, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(results) != 1 {
			return nil, fmt.Errorf("%s returned %d embeddings for one text", e.Name(), len(results))
		}
		return results[0], nil
	}
}
