// Package assistant answers questions about an indexed repository by
// retrieving relevant code and handing it to an LLM.
package assistant

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ziadkadry99/clove/internal/contextbuilder"
	"github.com/ziadkadry99/clove/internal/llm"
	"github.com/ziadkadry99/clove/internal/rag"
	"github.com/ziadkadry99/clove/internal/ragerr"
	"github.com/ziadkadry99/clove/internal/registry"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// Repositories looks up registered repositories and searches them.
type Repositories interface {
	Get(ctx context.Context, id string) (*registry.Repository, error)
	Query(ctx context.Context, req rag.QueryRequest) ([]rag.Source, error)
}

// Config controls model selection and context sizing.
type Config struct {
	Model                 string
	ReservedForCompletion int
	// AvgChunkTokens feeds contextbuilder.MaxSources.
	AvgChunkTokens int
	Temperature    float64
}

// Request is a single question for the assistant.
type Request struct {
	Task         Task   `json:"task"`
	RepositoryID string `json:"repositoryId"`
	// Title and Body describe an issue for the issue tasks.
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	// Question is the documentation chat message.
	Question string `json:"question,omitempty"`
}

// Answer is the model's reply and what it was given.
type Answer struct {
	Task         Task                  `json:"task"`
	Content      string                `json:"content"`
	Model        string                `json:"model"`
	Sources      []rag.Source          `json:"sources"`
	Context      contextbuilder.Result `json:"context"`
	InputTokens  int                   `json:"inputTokens"`
	OutputTokens int                   `json:"outputTokens"`
	Cost         float64               `json:"cost"`
}

// Assistant combines retrieval, context building and completion.
type Assistant struct {
	repos    Repositories
	provider llm.Provider
	builder  *contextbuilder.Builder
	cfg      Config
	log      zerolog.Logger
}

// New creates an Assistant.
func New(repos Repositories, provider llm.Provider, cfg Config, logger zerolog.Logger) *Assistant {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Assistant{
		repos:    repos,
		provider: provider,
		builder:  contextbuilder.New(logger),
		cfg:      cfg,
		log:      logger,
	}
}

// ParseTask validates a task name.
func ParseTask(name string) (Task, error) {
	t := Task(strings.TrimSpace(name))
	if _, ok := taskSpecs[t]; !ok {
		return "", ragerr.Validationf(ragerr.StageGenerate, "unknown task %q", name)
	}
	return t, nil
}

// Limit returns how many sources are retrieved for task.
func (a *Assistant) Limit(task Task) int {
	n := contextbuilder.MaxSources(a.cfg.Model, a.cfg.AvgChunkTokens, a.cfg.ReservedForCompletion)
	if spec, ok := taskSpecs[task]; ok && spec.limit < n {
		return spec.limit
	}
	return n
}

// Ask retrieves context for the request and asks the model.
func (a *Assistant) Ask(ctx context.Context, req Request) (*Answer, error) {
	spec, ok := taskSpecs[req.Task]
	if !ok {
		return nil, ragerr.Validationf(ragerr.StageGenerate, "unknown task %q", req.Task)
	}
	query, vars, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	sources, err := a.repos.Query(ctx, rag.QueryRequest{
		Query:          query,
		RepositoryID:   req.RepositoryID,
		Limit:          a.Limit(req.Task),
		ScoreThreshold: spec.threshold,
		MaxTokens:      spec.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	// Budget against every message sent, so a chat question is counted too.
	tmpl := spec.prompt
	if spec.system != "" {
		tmpl = spec.system + "\n" + spec.prompt
	}
	built := a.builder.Build(sources, contextbuilder.Options{
		Model:                 a.cfg.Model,
		PromptTemplate:        tmpl,
		Variables:             vars,
		ReservedForCompletion: a.cfg.ReservedForCompletion,
	})

	messages, err := a.messages(spec, vars, built.Context)
	if err != nil {
		return nil, ragerr.Validationf(ragerr.StageGenerate, "render %s prompt: %v", req.Task, err)
	}

	a.log.Debug().
		Str("task", string(req.Task)).
		Str("repository", req.RepositoryID).
		Int("sources", len(sources)).
		Int("included", built.IncludedSources).
		Int("context_tokens", built.TotalTokens).
		Msg("asking model")

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Model:       a.cfg.Model,
		Messages:    messages,
		MaxTokens:   a.cfg.ReservedForCompletion,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return nil, ragerr.NewProvider(ragerr.StageGenerate, a.provider.Name()+" completion", err)
	}

	model := resp.Model
	if model == "" {
		model = a.cfg.Model
	}
	return &Answer{
		Task:         req.Task,
		Content:      resp.Content,
		Model:        model,
		Sources:      sources,
		Context:      built,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Cost:         llm.EstimateCost(a.cfg.Model, resp.InputTokens, resp.OutputTokens),
	}, nil
}

// prepare validates the request and returns the search query and template
// variables for it.
func (a *Assistant) prepare(ctx context.Context, req Request) (string, map[string]string, error) {
	if strings.TrimSpace(req.RepositoryID) == "" {
		return "", nil, ragerr.Validationf(ragerr.StageGenerate, "repository id is required")
	}

	if req.Task == TaskDocumentationChat {
		question := strings.TrimSpace(req.Question)
		if question == "" {
			return "", nil, ragerr.Validationf(ragerr.StageGenerate, "question is required")
		}
		repo, err := a.repos.Get(ctx, req.RepositoryID)
		if err != nil {
			return "", nil, err
		}
		return question, map[string]string{
			"question":    question,
			"name":        repo.Name,
			"owner":       repo.Owner,
			"description": repo.Description,
		}, nil
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return "", nil, ragerr.Validationf(ragerr.StageGenerate, "issue title is required")
	}
	body := strings.TrimSpace(req.Body)
	return title + "\n" + body, map[string]string{"title": title, "body": body}, nil
}

func (a *Assistant) messages(spec taskSpec, vars map[string]string, context string) ([]llm.Message, error) {
	user, err := contextbuilder.RenderPrompt(spec.prompt, vars, context)
	if err != nil {
		return nil, err
	}
	if spec.system == "" {
		return []llm.Message{{Role: llm.RoleUser, Content: user}}, nil
	}
	system, err := contextbuilder.RenderPrompt(spec.system, vars, context)
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}
