package e2e

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"stock-analyst/models"
	"stock-analyst/services"

	"github.com/shopspring/decimal"
)

// FixedNow is the clock the price target estimator and the chart builder run on:
// a Tuesday mid-session for US equities.
var FixedNow = time.Date(2024, 6, 11, 15, 30, 0, 0, time.UTC)

// trendAnchor keeps generated prices identical across overlapping windows
var trendAnchor = time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

var _ services.MarketDataSource = (*FixtureMarket)(nil)

// FixtureMarket serves a deterministic rising price series for every listed symbol.
// Bars exist on weekdays only.
type FixtureMarket struct {
	now      time.Time
	mu       sync.RWMutex
	unlisted map[string]bool
	calls    map[string]int
}

// NewFixtureMarket creates a FixtureMarket whose sessions end at now
func NewFixtureMarket(now time.Time) *FixtureMarket {
	return &FixtureMarket{
		now:      now,
		unlisted: make(map[string]bool),
		calls:    make(map[string]int),
	}
}

// Unlist makes every lookup for symbol return no data
func (f *FixtureMarket) Unlist(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlisted[symbol] = true
}

// Calls returns how many times op ("history", "intraday" or "quote") was served
func (f *FixtureMarket) Calls(op string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls[op]
}

func (f *FixtureMarket) record(op, symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return !f.unlisted[symbol]
}

// GetHistory returns one bar per weekday in [start, end]
func (f *FixtureMarket) GetHistory(ctx context.Context, symbol string, start, end time.Time) (models.Bars, error) {
	if !f.record("history", symbol) {
		return models.Bars{}, nil
	}

	day := time.Date(start.Year(), start.Month(), start.Day(), 20, 0, 0, 0, time.UTC)
	if day.Before(start) {
		day = day.AddDate(0, 0, 1)
	}

	var bars models.Bars
	for ; !day.After(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		bars = append(bars, fixtureBar(symbol, day, dailyClose(symbol, day)))
	}
	return bars, nil
}

// GetIntraday returns five-minute bars from the 13:30 UTC open to the fixture clock
func (f *FixtureMarket) GetIntraday(ctx context.Context, symbol string) (models.Bars, error) {
	if !f.record("intraday", symbol) {
		return models.Bars{}, nil
	}

	open := time.Date(f.now.Year(), f.now.Month(), f.now.Day(), 13, 30, 0, 0, time.UTC)
	base := dailyClose(symbol, open.AddDate(0, 0, -1))

	var bars models.Bars
	for i, ts := 0, open; !ts.After(f.now); i, ts = i+1, ts.Add(5*time.Minute) {
		bars = append(bars, fixtureBar(symbol, ts, base+0.05*float64(i)))
	}
	return bars, nil
}

// GetQuote returns the session so far: opened at the previous close, up since
func (f *FixtureMarket) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if !f.record("quote", symbol) {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}

	prev := dailyClose(symbol, f.now.AddDate(0, 0, -1))
	price := dailyClose(symbol, f.now)
	return &models.Quote{
		Symbol:        symbol,
		Open:          round(prev),
		Price:         round(price),
		PreviousClose: round(prev),
		DayHigh:       round(math.Max(prev, price) + 1),
		DayLow:        round(math.Min(prev, price) - 1),
		Volume:        1_000_000,
		Timestamp:     f.now,
	}, nil
}

// dailyClose is a slow uptrend with a small oscillation, scaled per symbol
func dailyClose(symbol string, day time.Time) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	base := 50 + float64(h.Sum32()%400)

	n := day.Sub(trendAnchor).Hours() / 24
	return base + 0.15*n + 2*math.Sin(n/3)
}

func fixtureBar(symbol string, ts time.Time, closePrice float64) models.Bar {
	return models.Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      round(closePrice - 0.5),
		High:      round(closePrice + 1),
		Low:       round(closePrice - 1.5),
		Close:     round(closePrice),
		Volume:    500_000,
	}
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
