package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedLLM throttles model calls with a token bucket shared by every stage
type RateLimitedLLM struct {
	next    LLMService
	limiter *rate.Limiter
}

// NewRateLimitedLLM allows requestsPerMinute calls with a burst of a tenth of that (at least one)
func NewRateLimitedLLM(next LLMService, requestsPerMinute int) *RateLimitedLLM {
	if requestsPerMinute <= 0 {
		return &RateLimitedLLM{next: next, limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	burst := max(1, requestsPerMinute/10)
	return &RateLimitedLLM{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst),
	}
}

func (r *RateLimitedLLM) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("model rate limiter: %w", err)
	}
	return nil
}

func (r *RateLimitedLLM) InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	return r.next.InvokeWithPrompt(ctx, systemPrompt, userPrompt)
}

func (r *RateLimitedLLM) InvokeStructured(ctx context.Context, systemPrompt, userPrompt string, result any) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.InvokeStructured(ctx, systemPrompt, userPrompt, result)
}

func (r *RateLimitedLLM) ChatWithTools(ctx context.Context, systemPrompt string, messages []ChatMessage, tools []ToolDefinition) (*ChatResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.ChatWithTools(ctx, systemPrompt, messages, tools)
}
