package services

import (
	"context"
	"errors"
	"fmt"

	"stock-analyst/models"
	"stock-analyst/observability"
)

// NamedNewsSource labels a NewsSource for logging
type NamedNewsSource struct {
	Name   string
	Source NewsSource
}

// FallbackNewsSource tries each source in order until one answers without error.
// An empty answer is a valid answer and stops the chain.
type FallbackNewsSource struct {
	sources []NamedNewsSource
}

// NewFallbackNewsSource builds a chain; nil sources are skipped
func NewFallbackNewsSource(sources ...NamedNewsSource) *FallbackNewsSource {
	chain := &FallbackNewsSource{}
	for _, s := range sources {
		if s.Source != nil {
			chain.sources = append(chain.sources, s)
		}
	}
	return chain
}

// GetNews returns the first successful source's articles
func (f *FallbackNewsSource) GetNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	if len(f.sources) == 0 {
		return nil, errors.New("no news sources configured")
	}

	var errs []error
	for _, s := range f.sources {
		articles, err := s.Source.GetNews(ctx, symbol, limit)
		if err == nil {
			return articles, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		observability.Warn("news source failed, trying next",
			"source", s.Name,
			"symbol", symbol,
			"error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return nil, fmt.Errorf("all news sources failed: %w", errors.Join(errs...))
}
