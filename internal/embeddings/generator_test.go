package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/clove/internal/ragerr"
)

// mockEmbedder encodes each text's identity into its vector so ordering can
// be checked after batching.
type mockEmbedder struct {
	mu     sync.Mutex
	dims   int
	calls  [][]string
	failOn int // 1-based call number that fails, 0 = never
	short  bool
}

func (m *mockEmbedder) Name() string    { return "mock" }
func (m *mockEmbedder) Dimensions() int { return m.dims }

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	if m.failOn == len(m.calls) {
		return nil, errors.New("rate limited")
	}
	n := len(texts)
	if m.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, m.dims)
		var id int
		fmt.Sscanf(texts[i], "text-%d", &id)
		v[0] = float32(id)
		out[i] = v
	}
	return out, nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text-%d", i)
	}
	return out
}

func TestGenerator_ThreeChunks(t *testing.T) {
	m := &mockEmbedder{dims: 1536}
	g := NewGenerator(m, GeneratorConfig{})

	vectors, err := g.Embed(context.Background(), texts(3))
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 1536)
	}
	assert.Len(t, m.calls, 1)
}

func TestGenerator_AlignmentAcrossBatchBoundaries(t *testing.T) {
	for _, n := range []int{1, 95, 96, 97, 192, 250} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			m := &mockEmbedder{dims: 4}
			g := NewGenerator(m, GeneratorConfig{BatchSize: 96, BatchDelay: -1})

			vectors, err := g.Embed(context.Background(), texts(n))
			require.NoError(t, err)
			require.Len(t, vectors, n)
			for i, v := range vectors {
				assert.Equal(t, float32(i), v[0])
			}
			assert.Len(t, m.calls, (n+95)/96)
			for _, call := range m.calls {
				assert.LessOrEqual(t, len(call), 96)
			}
		})
	}
}

func TestGenerator_EmptyInputMakesNoCall(t *testing.T) {
	m := &mockEmbedder{dims: 4}
	vectors, err := NewGenerator(m, GeneratorConfig{}).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Empty(t, m.calls)
}

func TestGenerator_FailedBatchAborts(t *testing.T) {
	m := &mockEmbedder{dims: 4, failOn: 2}
	g := NewGenerator(m, GeneratorConfig{BatchSize: 10, BatchDelay: -1})

	vectors, err := g.Embed(context.Background(), texts(35))
	require.Error(t, err)
	assert.Nil(t, vectors)
	assert.True(t, ragerr.IsProvider(err))
	assert.Equal(t, ragerr.StageEmbed, ragerr.StageOf(err))
	assert.Contains(t, err.Error(), "batch 2")

	var rerr *ragerr.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 2, rerr.Batch)
	// Batches after the failing one are never sent.
	assert.Len(t, m.calls, 2)
}

func TestGenerator_ReportsProgressPerBatch(t *testing.T) {
	m := &mockEmbedder{dims: 4}
	g := NewGenerator(m, GeneratorConfig{BatchSize: 10, BatchDelay: -1})

	var done []int
	_, err := g.EmbedWithProgress(context.Background(), texts(25), func(n, total int) {
		assert.Equal(t, 25, total)
		done = append(done, n)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 25}, done)
}

func TestGenerator_CountMismatchIsFatal(t *testing.T) {
	m := &mockEmbedder{dims: 4, short: true}
	_, err := NewGenerator(m, GeneratorConfig{}).Embed(context.Background(), texts(3))
	require.Error(t, err)
	assert.True(t, ragerr.IsProvider(err))
	assert.Contains(t, err.Error(), "2 embeddings for 3 texts")
}

type wrongDims struct{ mockEmbedder }

func (w *wrongDims) Dimensions() int { return 8 }

func TestGenerator_DimensionMismatchIsFatal(t *testing.T) {
	w := &wrongDims{mockEmbedder{dims: 4}}
	_, err := NewGenerator(w, GeneratorConfig{}).Embed(context.Background(), texts(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 8")
}

func TestGenerator_DelayBetweenBatchesOnly(t *testing.T) {
	m := &mockEmbedder{dims: 2}
	g := NewGenerator(m, GeneratorConfig{BatchSize: 1, BatchDelay: 20 * time.Millisecond})

	start := time.Now()
	_, err := g.Embed(context.Background(), texts(3))
	require.NoError(t, err)
	// Two pauses for three batches.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestGenerator_CancelDuringDelay(t *testing.T) {
	m := &mockEmbedder{dims: 2}
	g := NewGenerator(m, GeneratorConfig{BatchSize: 1, BatchDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Embed(ctx, texts(2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, m.calls, 1)
}

func TestGenerator_EmbedQuery(t *testing.T) {
	m := &mockEmbedder{dims: 3}
	g := NewGenerator(m, GeneratorConfig{})

	v, err := g.EmbedQuery(context.Background(), "text-7")
	require.NoError(t, err)
	assert.Equal(t, float32(7), v[0])

	_, err = g.EmbedQuery(context.Background(), "   ")
	assert.True(t, ragerr.IsValidation(err))
}

func TestToChromemFunc(t *testing.T) {
	fn := ToChromemFunc(&mockEmbedder{dims: 3})
	v, err := fn(context.Background(), "text-5")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0, 0}, v)

	fn = ToChromemFunc(&mockEmbedder{dims: 3, failOn: 1})
	_, err = fn(context.Background(), "text-5")
	assert.Error(t, err)
}
