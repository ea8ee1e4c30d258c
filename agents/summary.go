package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-analyst/indicators"
	"stock-analyst/models"
)

// SummaryLookbackWeeks is the daily history a snapshot is computed over
const SummaryLookbackWeeks = 72

// StockSummaryCollector builds the technical and fundamental snapshot of a ticker.
// It does not retry; any fetch failure propagates.
type StockSummaryCollector struct {
	prices  PriceHistorySource
	company CompanyInfoSource
	now     func() time.Time
	health  *AvailabilityProbe
}

// NewStockSummaryCollector creates a new StockSummaryCollector
func NewStockSummaryCollector(prices PriceHistorySource, company CompanyInfoSource) *StockSummaryCollector {
	return NewStockSummaryCollectorWithCacheTTL(prices, company, DefaultProbeTTL)
}

// NewStockSummaryCollectorWithCacheTTL creates a new StockSummaryCollector whose availability is cached for probeTTL
func NewStockSummaryCollectorWithCacheTTL(prices PriceHistorySource, company CompanyInfoSource, probeTTL time.Duration) *StockSummaryCollector {
	c := &StockSummaryCollector{
		prices:  prices,
		company: company,
		now:     time.Now,
	}
	c.health = NewAvailabilityProbe(StageSummary, probeTTL, c.probe)
	return c
}

// Collect fetches about 72 weeks of daily bars and the company profile and assembles a StockSnapshot.
// An empty series is ErrNoPriceData, a profile failure is ErrMetricsUnavailable, and fewer than six
// bars (too short for the five-day change) is ErrInsufficientHistory. Oscillators still in their
// warm-up are left out of the snapshot.
func (c *StockSummaryCollector) Collect(ctx context.Context, ticker string) (*models.StockSnapshot, error) {
	end := c.now()
	start := end.AddDate(0, 0, -7*SummaryLookbackWeeks)

	bars, err := c.prices.GetHistory(ctx, ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrNoPriceData, ticker, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoPriceData, ticker)
	}

	summary, err := indicators.Summarize(bars)
	if err != nil {
		return nil, historyError(ticker, len(bars), err)
	}
	momentum := indicators.Momentum(bars)
	trend, err := indicators.Trend(bars)
	if err != nil {
		return nil, historyError(ticker, len(bars), err)
	}
	series, latest := indicators.TrailingSeries(bars, momentum)

	profile, err := c.company.GetCompanyProfile(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrMetricsUnavailable, ticker, err)
	}

	return &models.StockSnapshot{
		Ticker:           ticker,
		Summary:          summary,
		LatestIndicators: latest,
		IndicatorSeries:  series,
		FinancialMetrics: models.FinancialRatios{
			PERatio:       profile.ForwardPE,
			PriceToBook:   profile.PriceToBook,
			DebtToEquity:  profile.DebtToEquity,
			ProfitMargins: profile.ProfitMargins,
		},
		RecentPrices:   indicators.RecentPriceRows(bars),
		TrendDetection: trend,
	}, nil
}

func historyError(ticker string, n int, err error) error {
	if errors.Is(err, indicators.ErrInsufficientData) {
		return fmt.Errorf("%w for %s (%d bars): %w", ErrInsufficientHistory, ticker, n, err)
	}
	return fmt.Errorf("failed to compute indicators for %s: %w", ticker, err)
}

// Name returns the stage name
func (c *StockSummaryCollector) Name() string {
	return "Stock Summary Collector"
}

// IsAvailable reports whether the price source answers, cached for the probe TTL
func (c *StockSummaryCollector) IsAvailable(ctx context.Context) bool {
	return c.health.Available(ctx)
}

// Health returns the availability probe, for invalidation and the last failure
func (c *StockSummaryCollector) Health() *AvailabilityProbe {
	return c.health
}

func (c *StockSummaryCollector) probe(ctx context.Context) error {
	end := c.now()
	_, err := c.prices.GetHistory(ctx, "AAPL", end.AddDate(0, 0, -7), end)
	return err
}
