package contextbuilder

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/clove/internal/tokens"
)

// sizedSource returns a source whose formatted text ("File: a.go\n" + content)
// is exactly n*4 characters of few words, so it estimates to n tokens.
func sizedSource(n int, score float64) Source {
	header := len("File: a.go\n")
	return Source{
		Content:  strings.Repeat("x", n*4-header),
		Metadata: map[string]any{"filePath": "a.go"},
		Score:    score,
	}
}

func TestBuild_PacksUntilBudget(t *testing.T) {
	sources := make([]Source, 5)
	for i := range sources {
		sources[i] = sizedSource(800, 0.9)
	}
	require.Equal(t, 800, tokens.Estimate(sources[0].Format()))

	opts := Options{
		Model:            "gpt-4o",
		PromptTemplate:   strings.Repeat("p", 800) + "{{.context}}",
		MaxContextTokens: 2000,
	}

	res := New(zerolog.Nop()).Build(sources, opts)

	assert.Equal(t, 2, res.IncludedSources)
	assert.True(t, res.Truncated)
	// 200 base + 800 + (800 + 2 separator)
	assert.Equal(t, 1802, res.TotalTokens)
	assert.LessOrEqual(t, res.TotalTokens, 2000)
	assert.Equal(t, 1, strings.Count(res.Context, Separator))
}

func TestBuild_OrdersByScoreStable(t *testing.T) {
	sources := []Source{
		{Content: "low", Metadata: map[string]any{"filePath": "low.go"}, Score: 0.1},
		{Content: "first-high", Metadata: map[string]any{"filePath": "a.go"}, Score: 0.9},
		{Content: "second-high", Metadata: map[string]any{"filePath": "b.go"}, Score: 0.9},
	}

	res := New(zerolog.Nop()).Build(sources, Options{PromptTemplate: "{{.context}}", MaxContextTokens: 1000})

	want := "File: a.go\nfirst-high" + Separator + "File: b.go\nsecond-high" + Separator + "File: low.go\nlow"
	assert.Equal(t, want, res.Context)
	assert.Equal(t, 3, res.IncludedSources)
	assert.False(t, res.Truncated)
	// Caller's slice is untouched.
	assert.Equal(t, "low", sources[0].Content)
}

func TestBuild_BasePromptExhaustsBudget(t *testing.T) {
	res := New(zerolog.Nop()).Build([]Source{sizedSource(10, 1)}, Options{
		PromptTemplate:   strings.Repeat("word ", 100) + "{{.context}}",
		MaxContextTokens: 50,
	})

	assert.Equal(t, "", res.Context)
	assert.Equal(t, 0, res.IncludedSources)
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, res.TotalTokens, 50)
}

func TestBuild_UsesModelBudgetAndVariables(t *testing.T) {
	sources := []Source{sizedSource(3000, 0.5), sizedSource(3000, 0.4), sizedSource(3000, 0.3)}
	opts := Options{
		Model:                 "gpt-4",
		PromptTemplate:        "Issue: {{.issueTitle}}\n{{.issueBody}}\n\n{{.context}}",
		Variables:             map[string]string{"issueTitle": "Crash", "issueBody": "It crashes."},
		ReservedForCompletion: 1000,
	}

	res := New(zerolog.Nop()).Build(sources, opts)

	// gpt-4 leaves 6372 tokens, enough for two 3000-token sources.
	assert.Equal(t, 2, res.IncludedSources)
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, res.TotalTokens, tokens.ModelBudget("gpt-4", 1000, 0.1))
}

func TestBuild_NeverExceedsBudget(t *testing.T) {
	var sources []Source
	for i := 0; i < 40; i++ {
		sources = append(sources, Source{
			Content: strings.Repeat("tok ", 10+i*7),
			Score:   float64(i%5) / 5,
		})
	}
	for _, budget := range []int{1, 10, 100, 333, 1000, 5000} {
		res := New(zerolog.Nop()).Build(sources, Options{PromptTemplate: "Q: {{.q}}\n{{.context}}", MaxContextTokens: budget})
		assert.LessOrEqual(t, res.TotalTokens, budget, "budget %d", budget)
		if res.IncludedSources < len(sources) {
			assert.True(t, res.Truncated, "budget %d", budget)
		}
	}
}

func TestBuild_FallbackOnBadTemplate(t *testing.T) {
	sources := []Source{
		{Content: "one", Score: 0.1},
		{Content: "two", Score: 0.9},
		{Content: "three"},
		{Content: "four"},
	}

	res := New(zerolog.Nop()).Build(sources, Options{PromptTemplate: "{{.context"})

	assert.Equal(t, 3, res.IncludedSources)
	assert.True(t, res.Truncated)
	assert.Equal(t, 0, res.TotalTokens)
	// Fallback keeps the input order.
	assert.True(t, strings.HasPrefix(res.Context, "File: unknown\none"))

	res = New(zerolog.Nop()).Build(sources[:2], Options{PromptTemplate: "{{.context"})
	assert.Equal(t, 2, res.IncludedSources)
	assert.False(t, res.Truncated)
}

func TestBuild_NoSources(t *testing.T) {
	res := New(zerolog.Nop()).Build(nil, Options{PromptTemplate: "hello {{.context}}", MaxContextTokens: 100})
	assert.Equal(t, "", res.Context)
	assert.Equal(t, 0, res.IncludedSources)
	assert.False(t, res.Truncated)
	assert.Equal(t, tokens.Estimate("hello "), res.TotalTokens)
}

func TestRenderPrompt(t *testing.T) {
	out, err := RenderPrompt("T={{.title}} M={{.missing}} C={{.context}}", map[string]string{"title": "x"}, "ctx")
	require.NoError(t, err)
	assert.Equal(t, "T=x M= C=ctx", out)

	_, err = RenderPrompt("{{", nil, "")
	assert.Error(t, err)
}

func TestMaxSources(t *testing.T) {
	// (111104 - 500) / 1020 = 108, clamped to 15
	assert.Equal(t, 15, MaxSources("gpt-4o", 0, 0))
	// (6372 - 500) / 1020 = 5 with reserved 1000
	assert.Equal(t, 5, MaxSources("gpt-4", 1000, 1000))
	// gpt-4 with default reservation leaves room for fewer than 3
	assert.Equal(t, 3, MaxSources("gpt-4", 1000, 0))
	assert.Equal(t, 10, MaxSources("gpt-4o", 11000, 4096))
}
