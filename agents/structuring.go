package agents

import (
	"context"
	"errors"
	"fmt"

	"stock-analyst/models"
	"stock-analyst/observability"
	"stock-analyst/services"
)

const structuringSystemPrompt = `You convert a stock analysis into a fixed JSON structure. Use only facts from the analysis.
When the analysis does not cover a field, write exactly "` + models.MissingSection + `".

Respond with JSON in exactly this shape:
{
  "price_performance_analysis": "...",
  "trend_analysis_and_momentum": "...",
  "technical_indicator_deep_dive": "...",
  "financial_valuation_metrics": "...",
  "news_sentiment_integration": "...",
  "investment_recommendation_and_risk_assessment": {
    "call": "BUY|HOLD|SELL",
    "justification": "...",
    "risk_reward_profile": "...",
    "entry_exit_criteria": "...",
    "conflicting_signals": "..."
  }
}`

// OutputStructurer coerces narrative text into the six-section StructuredNarrative.
// Exhausting its attempts fails the whole run.
type OutputStructurer struct {
	llm         LLMService
	maxAttempts int
}

// NewOutputStructurer creates a new OutputStructurer
func NewOutputStructurer(llm LLMService, maxAttempts int) *OutputStructurer {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &OutputStructurer{llm: llm, maxAttempts: maxAttempts}
}

// Structure returns the structured form of text with every blank field set to models.MissingSection
func (s *OutputStructurer) Structure(ctx context.Context, text string) (*models.StructuredNarrative, error) {
	prompt := "Analysis to structure:\n\n" + text

	result, tries, err := services.Attempt(ctx, s.maxAttempts, services.RetryAny,
		func(ctx context.Context) (*models.StructuredNarrative, error) {
			var n models.StructuredNarrative
			if err := s.llm.InvokeStructured(ctx, structuringSystemPrompt, prompt, &n); err != nil {
				return nil, err
			}
			return &n, nil
		})
	observability.GetMetrics().RecordModelAttempts(StageStructuring, tries)

	if errors.Is(err, services.ErrAttemptsExhausted) {
		return nil, fmt.Errorf("%w: %w", ErrStructuringFailed, err)
	}
	if err != nil {
		return nil, err
	}

	result.FillMissing()
	return result, nil
}
