package agents

import (
	"context"
	"errors"
	"strings"

	"stock-analyst/services"
)

// Stage failures. Callers test them with errors.Is.
var (
	ErrNoNewsFound          = errors.New("no news found")
	ErrNoPriceData          = errors.New("no price data")
	ErrMetricsUnavailable   = errors.New("financial metrics unavailable")
	ErrInsufficientHistory  = errors.New("insufficient price history")
	ErrSentimentUnavailable = errors.New("sentiment unavailable")
	ErrStructuringFailed    = errors.New("could not structure the analyst output")
	ErrToolLoopExhausted    = errors.New("tool loop reached its iteration limit")
	ErrFieldAlreadyWritten  = errors.New("workflow state field already written")
)

// categorizeError categorizes an error for metrics labeling
func categorizeError(err error) string {
	if err == nil {
		return "none"
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrNoNewsFound):
		return "no_news"
	case errors.Is(err, ErrNoPriceData), errors.Is(err, ErrInsufficientHistory):
		return "no_price_data"
	case errors.Is(err, ErrMetricsUnavailable):
		return "metrics_unavailable"
	case errors.Is(err, ErrSentimentUnavailable), errors.Is(err, ErrStructuringFailed):
		return "retries_exhausted"
	case errors.Is(err, ErrToolLoopExhausted):
		return "tool_loop"
	case errors.Is(err, services.ErrSchemaValidation):
		return "schema"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "circuit breaker"):
		return "circuit_breaker"
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"):
		return "rate_limit"
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "network"):
		return "network"
	default:
		return "other"
	}
}
