package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"stock-analyst/indicators"
	"stock-analyst/models"
)

func TestStockSummaryCollector_Collect(t *testing.T) {
	prices := &mockPriceSource{bars: dailyBars(300, 100, 1, marketOpenUS)}
	collector := NewStockSummaryCollector(prices, &mockCompanySource{profile: testProfile()})
	collector.now = fixedClock(marketOpenUS)

	snap, err := collector.Collect(context.Background(), "TCS.NS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.Summary.CurrentPrice != 399 {
		t.Errorf("CurrentPrice = %v, want 399", snap.Summary.CurrentPrice)
	}
	if snap.TrendDetection.Trend != models.TrendBullish {
		t.Errorf("Trend = %v, want bullish for a slope of 1", snap.TrendDetection.Trend)
	}
	if snap.TrendDetection.LinearSlope != 1 {
		t.Errorf("LinearSlope = %v, want 1", snap.TrendDetection.LinearSlope)
	}
	for _, key := range []string{indicators.KeyRSI, indicators.KeyStochastic, indicators.KeyMACD, indicators.KeyMACDSignal, indicators.KeyVWAP} {
		if _, ok := snap.LatestIndicators[key]; !ok {
			t.Errorf("latest indicator %s missing", key)
		}
		if got := len(snap.IndicatorSeries[key]); got != indicators.SeriesWindow {
			t.Errorf("series %s has %d points, want %d", key, got, indicators.SeriesWindow)
		}
	}
	if len(snap.RecentPrices) != indicators.RecentRows {
		t.Errorf("RecentPrices = %d rows, want %d", len(snap.RecentPrices), indicators.RecentRows)
	}
	if snap.FinancialMetrics.PERatio == nil || *snap.FinancialMetrics.PERatio != 28.4 {
		t.Errorf("PERatio = %v, want forward P/E 28.4", snap.FinancialMetrics.PERatio)
	}
}

func TestStockSummaryCollector_Errors(t *testing.T) {
	tests := []struct {
		name    string
		prices  *mockPriceSource
		company *mockCompanySource
		wantErr error
	}{
		{"empty series", &mockPriceSource{}, &mockCompanySource{profile: testProfile()}, ErrNoPriceData},
		{"history failure", &mockPriceSource{err: errors.New("404")}, &mockCompanySource{profile: testProfile()}, ErrNoPriceData},
		{"five bars", &mockPriceSource{bars: dailyBars(5, 100, 1, marketOpenUS)}, &mockCompanySource{profile: testProfile()}, ErrInsufficientHistory},
		{"profile failure", &mockPriceSource{bars: dailyBars(300, 100, 1, marketOpenUS)}, &mockCompanySource{err: errors.New("401")}, ErrMetricsUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := NewStockSummaryCollector(tt.prices, tt.company)
			_, err := collector.Collect(context.Background(), "AAPL")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStockSummaryCollector_ShortHistory(t *testing.T) {
	tests := []struct {
		bars    int
		wantErr error
		latest  []string
	}{
		{5, ErrInsufficientHistory, nil},
		{6, nil, nil},
		{20, nil, []string{indicators.KeyRSI, indicators.KeyStochastic, indicators.KeyVWAP}},
		{34, nil, []string{indicators.KeyRSI, indicators.KeyMACD, indicators.KeyMACDSignal}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d bars", tt.bars), func(t *testing.T) {
			prices := &mockPriceSource{bars: dailyBars(tt.bars, 100, 1, marketOpenUS)}
			collector := NewStockSummaryCollector(prices, &mockCompanySource{profile: testProfile()})

			snap, err := collector.Collect(context.Background(), "AAPL")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if want := float64(100 + tt.bars - 1); snap.Summary.CurrentPrice != want {
				t.Errorf("CurrentPrice = %v, want %v", snap.Summary.CurrentPrice, want)
			}
			for _, key := range tt.latest {
				if _, ok := snap.LatestIndicators[key]; !ok {
					t.Errorf("latest indicator %s missing", key)
				}
			}
			if tt.bars < 34 {
				if _, ok := snap.IndicatorSeries[indicators.KeyMACD]; ok {
					t.Error("MACD is still warming up and should be omitted")
				}
			}
			if _, err := json.Marshal(snap); err != nil {
				t.Errorf("snapshot must encode without NaN values: %v", err)
			}
		})
	}
}

func TestStockSummaryCollector_TrendClassification(t *testing.T) {
	tests := []struct {
		name string
		step float64
		want models.Trend
	}{
		{"rising", 0.5, models.TrendBullish},
		{"falling", -0.5, models.TrendBearish},
		{"flat", 0.1, models.TrendSideways},
		{"just under 0.3 is sideways", 0.299, models.TrendSideways},
		{"just under -0.3 is sideways", -0.299, models.TrendSideways},
		{"just over 0.3 is bullish", 0.3001, models.TrendBullish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := &mockPriceSource{bars: dailyBars(120, 500, tt.step, marketOpenUS)}
			collector := NewStockSummaryCollector(prices, &mockCompanySource{profile: testProfile()})

			snap, err := collector.Collect(context.Background(), "AAPL")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if snap.TrendDetection.Trend != tt.want {
				t.Errorf("Trend = %v (slope %v), want %v", snap.TrendDetection.Trend, snap.TrendDetection.LinearSlope, tt.want)
			}
		})
	}
}
