package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// DefaultOllamaURL is used when no Ollama server URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider implements Provider against a local Ollama server through
// langchaingo.
type OllamaProvider struct {
	llm     *ollama.LLM
	baseURL string
	model   string
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(baseURL string, model string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	client, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	return &OllamaProvider{llm: client, baseURL: baseURL, model: model}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

var ollamaRoles = map[Role]llms.ChatMessageType{
	RoleSystem:    llms.ChatMessageTypeSystem,
	RoleUser:      llms.ChatMessageTypeHuman,
	RoleAssistant: llms.ChatMessageTypeAI,
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role, ok := ollamaRoles[msg.Role]
		if !ok {
			role = llms.ChatMessageTypeHuman
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := p.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ollama returned no choices")
	}

	choice := resp.Choices[0]
	model := req.Model
	if model == "" {
		model = p.model
	}
	return &CompletionResponse{
		Content:      choice.Content,
		InputTokens:  intInfo(choice.GenerationInfo, "PromptTokens"),
		OutputTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
		Model:        model,
		FinishReason: choice.StopReason,
	}, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
