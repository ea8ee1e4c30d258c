package services

import (
	"context"
	"strings"
	"time"

	"stock-analyst/market"
	"stock-analyst/models"
	"stock-analyst/observability"
)

// MarketDataSource provides both bars and quotes
type MarketDataSource interface {
	PriceHistorySource
	QuoteSource
}

// MarketRouter serves US equities from a dedicated source and everything else,
// including US symbols the dedicated source fails on, from the fallback.
type MarketRouter struct {
	us       MarketDataSource
	fallback MarketDataSource
}

// NewMarketRouter creates a router. A nil us source sends every symbol to fallback.
func NewMarketRouter(us, fallback MarketDataSource) *MarketRouter {
	return &MarketRouter{us: us, fallback: fallback}
}

func (r *MarketRouter) primary(symbol string) MarketDataSource {
	// Indices such as ^GSPC are not Alpaca symbols
	if r.us == nil || market.Detect(symbol) != market.US || strings.HasPrefix(symbol, "^") {
		return nil
	}
	return r.us
}

// GetHistory returns daily bars for symbol
func (r *MarketRouter) GetHistory(ctx context.Context, symbol string, start, end time.Time) (models.Bars, error) {
	if src := r.primary(symbol); src != nil {
		bars, err := src.GetHistory(ctx, symbol, start, end)
		if err == nil && len(bars) > 0 {
			return bars, nil
		}
		r.logFallback(ctx, "history", symbol, err)
	}
	return r.fallback.GetHistory(ctx, symbol, start, end)
}

// GetIntraday returns the last session's minute bars for symbol
func (r *MarketRouter) GetIntraday(ctx context.Context, symbol string) (models.Bars, error) {
	if src := r.primary(symbol); src != nil {
		bars, err := src.GetIntraday(ctx, symbol)
		if err == nil && len(bars) > 0 {
			return bars, nil
		}
		r.logFallback(ctx, "intraday", symbol, err)
	}
	return r.fallback.GetIntraday(ctx, symbol)
}

// GetQuote returns the current session quote for symbol
func (r *MarketRouter) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if src := r.primary(symbol); src != nil {
		q, err := src.GetQuote(ctx, symbol)
		if err == nil {
			return q, nil
		}
		r.logFallback(ctx, "quote", symbol, err)
	}
	return r.fallback.GetQuote(ctx, symbol)
}

func (r *MarketRouter) logFallback(ctx context.Context, op, symbol string, err error) {
	if ctx.Err() != nil {
		return
	}
	observability.WithContext(ctx).Warn("primary market data source failed, using fallback",
		"op", op,
		"symbol", symbol,
		"error", err)
}
