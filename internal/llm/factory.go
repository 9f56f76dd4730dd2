package llm

import (
	"fmt"
	"os"
)

// OpenRouterURL is the OpenAI-compatible endpoint used for provider "openrouter".
const OpenRouterURL = "https://openrouter.ai/api/v1"

// Config selects and configures a provider.
type Config struct {
	// Provider is one of "openai", "openrouter" or "ollama".
	Provider string
	Model    string
	// APIKey falls back to the provider's environment variable.
	APIKey  string
	BaseURL string
	// RequestsPerMinute wraps the provider in a rate limiter when positive.
	RequestsPerMinute int
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "openai", "":
		apiKey := firstSet(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		p = NewOpenAIProvider(apiKey, cfg.Model, cfg.BaseURL)

	case "openrouter":
		apiKey := firstSet(cfg.APIKey, os.Getenv("OPENROUTER_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY environment variable is not set")
		}
		op := NewOpenAIProvider(apiKey, cfg.Model, firstSet(cfg.BaseURL, OpenRouterURL))
		op.name = "openrouter"
		p = op

	case "ollama":
		host := firstSet(cfg.BaseURL, os.Getenv("OLLAMA_HOST"))
		p, err = NewOllamaProvider(host, cfg.Model)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider)
	}

	if cfg.RequestsPerMinute > 0 {
		p = NewRateLimitedProvider(p, cfg.RequestsPerMinute)
	}
	return p, nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
