package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockProvider is a test provider that records calls and returns canned responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	Err      error
	ProvName string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// --- Tests ---

func TestMockProviderRecordsCalls(t *testing.T) {
	mock := NewMockProvider("test")
	ctx := context.Background()

	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	resp, err := mock.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}

	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}

	if mock.Calls[0].Model != "test-model" {
		t.Errorf("expected model 'test-model', got %q", mock.Calls[0].Model)
	}
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	// Ensure env vars are not set for this test.
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	providers := []string{"openai", "openrouter", ""}
	for _, p := range providers {
		_, err := NewProvider(Config{Provider: p, Model: "some-model"})
		if err == nil {
			t.Errorf("expected error for provider %q with missing API key", p)
		}
	}
}

func TestFactoryReturnsErrorForUnknownProvider(t *testing.T) {
	_, err := NewProvider(Config{Provider: "unknown", Model: "some-model"})
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFactoryCreatesOllamaWithoutAPIKey(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://localhost:11434")
	provider, err := NewProvider(Config{Provider: "ollama", Model: "llama3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "ollama" {
		t.Errorf("expected name 'ollama', got %q", provider.Name())
	}
}

func TestFactoryCreatesOllamaWithDefaultHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	provider, err := NewProvider(Config{Provider: "ollama", Model: "llama3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ollamaP, ok := provider.(*OllamaProvider)
	if !ok {
		t.Fatal("expected *OllamaProvider")
	}
	if ollamaP.baseURL != DefaultOllamaURL {
		t.Errorf("expected default host, got %q", ollamaP.baseURL)
	}
}

func TestFactoryCreatesOpenAIProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	provider, err := NewProvider(Config{Provider: "openai", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", provider.Name())
	}
}

func TestFactoryCreatesOpenRouterProvider(t *testing.T) {
	provider, err := NewProvider(Config{Provider: "openrouter", Model: "openai/gpt-4o-mini", APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "openrouter" {
		t.Errorf("expected name 'openrouter', got %q", provider.Name())
	}
}

func TestFactoryWrapsRateLimiter(t *testing.T) {
	provider, err := NewProvider(Config{Provider: "openai", Model: "gpt-4o", APIKey: "k", RequestsPerMinute: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := provider.(*RateLimitedProvider); !ok {
		t.Errorf("expected *RateLimitedProvider, got %T", provider)
	}
}

func TestOpenAIProviderComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"use a mutex"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", "gpt-4o-mini", srv.URL)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: RoleSystem, Content: "be brief"}, {Role: RoleUser, Content: "fix the race"}},
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "use a mutex" || resp.InputTokens != 12 || resp.OutputTokens != 3 || resp.FinishReason != "stop" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if got["model"] != "gpt-4o-mini" || got["max_tokens"] != float64(DefaultMaxTokens) {
		t.Errorf("unexpected request: %v", got)
	}
	if msgs, _ := got["messages"].([]any); len(msgs) != 2 {
		t.Errorf("expected 2 messages, got %v", got["messages"])
	}
}

func TestOpenAIProviderNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider("k", "m", srv.URL).Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestRateLimiterPassesThrough(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 60)

	ctx := context.Background()
	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	resp, err := rl.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if rl.Name() != "test" {
		t.Errorf("expected name 'test', got %q", rl.Name())
	}
	if NewRateLimitedProvider(mock, 0) != Provider(mock) {
		t.Error("rpm 0 should not wrap the provider")
	}
}

func TestRateLimiterLimitsRequests(t *testing.T) {
	mock := NewMockProvider("test")
	// Allow only 2 requests per minute.
	rl := NewRateLimitedProvider(mock, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	// First two should succeed immediately.
	for i := 0; i < 2; i++ {
		_, err := rl.Complete(ctx, req)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	// Third should block and eventually fail due to context timeout.
	_, err := rl.Complete(ctx, req)
	if err == nil {
		t.Error("expected error due to rate limiting + context timeout")
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected 2 calls to reach the provider, got %d", mock.CallCount())
	}
}

func TestRateLimiterRefills(t *testing.T) {
	mock := NewMockProvider("test")
	// One token every 10ms.
	rl := NewRateLimitedProvider(mock, 6000)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 6010; i++ {
		if _, err := rl.Complete(ctx, CompletionRequest{}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
}

func TestEstimateCostKnownModels(t *testing.T) {
	for _, model := range []string{"gpt-4o", "gpt-4o-mini", "text-embedding-3-small"} {
		if cost := EstimateCost(model, 1000, 500); cost <= 0 {
			t.Errorf("EstimateCost(%q) = %f, expected > 0", model, cost)
		}
	}
}

func TestEstimateCostUnknownModel(t *testing.T) {
	cost := EstimateCost("unknown-model", 1000, 500)
	if cost != 0 {
		t.Errorf("expected 0 for unknown model, got %f", cost)
	}
}

func TestEstimateCostAccuracy(t *testing.T) {
	// gpt-4o: $2.50/1M input, $10/1M output
	cost := EstimateCost("gpt-4o", 1_000_000, 1_000_000)
	expected := 12.5
	if cost < expected-0.01 || cost > expected+0.01 {
		t.Errorf("expected cost ~$%.2f, got $%.2f", expected, cost)
	}
}

func TestRoles(t *testing.T) {
	if RoleSystem != "system" {
		t.Errorf("RoleSystem = %q, want 'system'", RoleSystem)
	}
	if RoleUser != "user" {
		t.Errorf("RoleUser = %q, want 'user'", RoleUser)
	}
	if RoleAssistant != "assistant" {
		t.Errorf("RoleAssistant = %q, want 'assistant'", RoleAssistant)
	}
}
