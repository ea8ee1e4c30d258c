package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContentTypeStory marks a substantive news article. Other content types (videos, press releases) are discarded.
const ContentTypeStory = "STORY"

// Quote represents the current trading session for a stock
type Quote struct {
	Symbol        string          `json:"symbol"`
	Open          decimal.Decimal `json:"open"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	DayHigh       decimal.Decimal `json:"day_high"`
	DayLow        decimal.Decimal `json:"day_low"`
	Volume        int64           `json:"volume"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Bar represents OHLCV price data for a time period
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// Bars is an ordered (oldest first) price series
type Bars []Bar

// Closes returns the close prices as float64 for indicator math
func (b Bars) Closes() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Close.InexactFloat64()
	}
	return out
}

// Highs returns the high prices as float64
func (b Bars) Highs() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.High.InexactFloat64()
	}
	return out
}

// Lows returns the low prices as float64
func (b Bars) Lows() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Low.InexactFloat64()
	}
	return out
}

// Volumes returns the traded volumes as float64
func (b Bars) Volumes() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = float64(bar.Volume)
	}
	return out
}

// Tail returns the last n bars, or all of them when fewer exist
func (b Bars) Tail(n int) Bars {
	if n >= len(b) {
		return b
	}
	return b[len(b)-n:]
}

// NewsArticle represents a news article about a stock
type NewsArticle struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
	ContentType string    `json:"content_type"`
	PublishedAt time.Time `json:"published_at"`
}

// IsStory reports whether the article is a primary story
func (a NewsArticle) IsStory() bool {
	return a.ContentType == ContentTypeStory
}

// CompanyProfile holds point-in-time company information. Any ratio may be absent.
type CompanyProfile struct {
	Symbol        string   `json:"symbol"`
	LongName      string   `json:"long_name"`
	Sector        string   `json:"sector,omitempty"`
	Industry      string   `json:"industry,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`
	ForwardPE     *float64 `json:"forward_pe,omitempty"`
	PriceToBook   *float64 `json:"price_to_book,omitempty"`
	DebtToEquity  *float64 `json:"debt_to_equity,omitempty"`
	ProfitMargins *float64 `json:"profit_margins,omitempty"`
	Address       string   `json:"address,omitempty"`
	City          string   `json:"city,omitempty"`
	Country       string   `json:"country,omitempty"`
}

// BetaOr returns the profile beta, or fallback when it is unknown
func (p *CompanyProfile) BetaOr(fallback float64) float64 {
	if p == nil || p.Beta == nil {
		return fallback
	}
	return *p.Beta
}
