package charts

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-analyst/models"
)

type mockPrices struct {
	mu       sync.Mutex
	short    models.Bars
	long     models.Bars
	intraday models.Bars
	err      error
	calls    int
}

// GetHistory serves the long series for windows reaching back further than 60 days
func (m *mockPrices) GetHistory(ctx context.Context, symbol string, start, end time.Time) (models.Bars, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if end.Sub(start) > 60*24*time.Hour {
		return m.long, nil
	}
	return m.short, nil
}

func (m *mockPrices) GetIntraday(ctx context.Context, symbol string) (models.Bars, error) {
	if m.intraday == nil {
		return nil, errors.New("no intraday")
	}
	return m.intraday, nil
}

type mockCompany struct {
	name string
}

func (m *mockCompany) GetCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	if m.name == "" {
		return nil, errors.New("profile unavailable")
	}
	return &models.CompanyProfile{Symbol: symbol, LongName: m.name}, nil
}

// mockCache stores JSON like the database cache does
type mockCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    []time.Duration
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string][]byte{}}
}

func (m *mockCache) GetCached(ctx context.Context, symbol, dataType string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[symbol+"/"+dataType]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (m *mockCache) SetCached(ctx context.Context, symbol, dataType string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[symbol+"/"+dataType] = data
	m.ttls = append(m.ttls, ttl)
	return nil
}

// linearBars builds n daily bars ending before end, closes moving by step
func linearBars(n int, first, step float64, end time.Time) models.Bars {
	bars := make(models.Bars, n)
	start := end.AddDate(0, 0, -n)
	for i := range bars {
		c := first + step*float64(i)
		bars[i] = models.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      decimal.NewFromFloat(c),
			High:      decimal.NewFromFloat(c + 2),
			Low:       decimal.NewFromFloat(c - 2),
			Close:     decimal.NewFromFloat(c),
			Volume:    1000,
		}
	}
	return bars
}

// US session, 10:00 New York time on a Wednesday
var usOpen = time.Date(2024, 6, 12, 14, 0, 0, 0, time.UTC)

// Saturday
var usWeekend = time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC)
