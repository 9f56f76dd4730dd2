// Package contextbuilder packs ranked sources into a prompt context that fits
// a model's token budget.
package contextbuilder

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/ziadkadry99/clove/internal/tokens"
)

const (
	// Separator joins formatted sources in the context.
	Separator = "\n\n---\n\n"

	// ContextVariable is the template variable the context is rendered into.
	ContextVariable = "context"

	fallbackSources = 3

	// Budget assumptions for MaxSources.
	estimatedPromptTokens = 500
	separatorOverhead     = 20
	// DefaultAvgChunkTokens matches the chunker's target chunk size.
	DefaultAvgChunkTokens = 1000

	MinSources      = 3
	MaxSourcesLimit = 15
)

// Source is a retrieved chunk ready for context building.
type Source struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// FilePath returns the source's file path or "unknown".
func (s Source) FilePath() string {
	if p, ok := s.Metadata["filePath"].(string); ok && p != "" {
		return p
	}
	return "unknown"
}

// Format renders the source as it appears in the context.
func (s Source) Format() string {
	return "File: " + s.FilePath() + "\n" + s.Content
}

// Options controls Build.
type Options struct {
	Model string
	// PromptTemplate is a text/template; the context goes in {{.context}}.
	PromptTemplate string
	Variables      map[string]string
	// MaxContextTokens overrides the model budget when positive.
	MaxContextTokens int
	// ReservedForCompletion defaults to tokens.DefaultReservedForCompletion.
	ReservedForCompletion int
}

// Result is the packed context.
type Result struct {
	Context         string `json:"context"`
	TotalTokens     int    `json:"totalTokens"`
	IncludedSources int    `json:"includedSources"`
	Truncated       bool   `json:"truncated"`
}

// Builder packs sources into a context.
type Builder struct {
	log zerolog.Logger
}

// New creates a Builder.
func New(logger zerolog.Logger) *Builder {
	return &Builder{log: logger}
}

// Build greedily packs sources in descending score order until the next one
// would exceed the budget. It never fails: if packing goes wrong the first
// three sources are returned with TotalTokens zero.
func (b *Builder) Build(sources []Source, opts Options) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("stage", "context").Msg("context build panicked, using fallback")
			res = fallback(sources)
		}
	}()

	res, err := b.build(sources, opts)
	if err != nil {
		b.log.Warn().Err(err).Str("stage", "context").Int("sources", len(sources)).Msg("context build failed, using fallback")
		return fallback(sources)
	}
	return res
}

func (b *Builder) build(sources []Source, opts Options) (Result, error) {
	available := opts.MaxContextTokens
	if available <= 0 {
		reserved := opts.ReservedForCompletion
		if reserved <= 0 {
			reserved = tokens.DefaultReservedForCompletion
		}
		available = tokens.DefaultModelBudget(opts.Model, reserved)
	}

	basePrompt, err := RenderPrompt(opts.PromptTemplate, opts.Variables, "")
	if err != nil {
		return Result{}, err
	}
	baseTokens := tokens.Estimate(basePrompt)
	forContext := available - baseTokens

	if forContext <= 0 {
		return Result{
			TotalTokens: max(0, min(baseTokens, available)),
			Truncated:   true,
		}, nil
	}

	sorted := make([]Source, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	separatorTokens := tokens.Estimate(Separator)
	parts := make([]string, 0, len(sorted))
	used := 0
	truncated := false

	for _, s := range sorted {
		text := s.Format()
		cost := tokens.Estimate(text)
		if len(parts) > 0 {
			cost += separatorTokens
		}
		if used+cost > forContext {
			truncated = true
			break
		}
		parts = append(parts, text)
		used += cost
	}

	b.log.Debug().
		Int("budget", available).
		Int("base_tokens", baseTokens).
		Int("included", len(parts)).
		Int("sources", len(sources)).
		Bool("truncated", truncated).
		Msg("built context")

	return Result{
		Context:         strings.Join(parts, Separator),
		TotalTokens:     baseTokens + used,
		IncludedSources: len(parts),
		Truncated:       truncated,
	}, nil
}

func fallback(sources []Source) Result {
	n := min(fallbackSources, len(sources))
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = sources[i].Format()
	}
	return Result{
		Context:         strings.Join(parts, Separator),
		IncludedSources: n,
		Truncated:       len(sources) > fallbackSources,
	}
}

// RenderPrompt executes promptTemplate with vars and the context bound to
// {{.context}}. Unknown variables render empty.
func RenderPrompt(promptTemplate string, vars map[string]string, context string) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(promptTemplate)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}
	data := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		data[k] = v
	}
	data[ContextVariable] = context

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return sb.String(), nil
}

// MaxSources returns how many sources are worth retrieving for model when
// chunks average avgChunkTokens, clamped to [3, 15].
func MaxSources(model string, avgChunkTokens, reservedForCompletion int) int {
	if avgChunkTokens <= 0 {
		avgChunkTokens = DefaultAvgChunkTokens
	}
	if reservedForCompletion <= 0 {
		reservedForCompletion = tokens.DefaultReservedForCompletion
	}
	forContext := tokens.DefaultModelBudget(model, reservedForCompletion) - estimatedPromptTokens
	n := forContext / (avgChunkTokens + separatorOverhead)
	return max(MinSources, min(MaxSourcesLimit, n))
}
