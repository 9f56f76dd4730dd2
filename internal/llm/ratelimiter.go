package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitedProvider wraps a Provider with a token bucket that refills at
// rpm tokens per minute and holds at most rpm tokens.
type RateLimitedProvider struct {
	provider Provider
	interval time.Duration
	burst    float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimitedProvider wraps the given provider with a rate limiter
// that allows at most rpm requests per minute.
func NewRateLimitedProvider(provider Provider, rpm int) Provider {
	if rpm <= 0 {
		return provider
	}
	return &RateLimitedProvider{
		provider: provider,
		interval: time.Minute / time.Duration(rpm),
		burst:    float64(rpm),
		tokens:   float64(rpm),
		last:     time.Now(),
	}
}

func (r *RateLimitedProvider) Name() string {
	return r.provider.Name()
}

func (r *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.provider.Complete(ctx, req)
}

// reserve takes a token if one is available, or reports how long until one is.
func (r *RateLimitedProvider) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.tokens = min(r.burst, r.tokens+float64(now.Sub(r.last))/float64(r.interval))
	r.last = now

	if r.tokens >= 1 {
		r.tokens--
		return 0
	}
	return time.Duration((1 - r.tokens) * float64(r.interval))
}

func (r *RateLimitedProvider) wait(ctx context.Context) error {
	for {
		delay := r.reserve()
		if delay == 0 {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
