package models

// Crossover is the EMA-9 vs EMA-21 ordering change at the last two observations
type Crossover string

const (
	CrossoverBullish Crossover = "bullish_crossover"
	CrossoverBearish Crossover = "bearish_crossover"
	CrossoverNone    Crossover = "no_crossover"
)

// Trend is the OLS slope classification over the trailing closes
type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
)

// PriceSummary holds headline price statistics over the lookback window
type PriceSummary struct {
	CurrentPrice     float64 `json:"current_price"`
	FiveDayChangePct float64 `json:"5_day_change_percent"`
	FiftyTwoWeekHigh float64 `json:"52_week_high"`
	FiftyTwoWeekLow  float64 `json:"52_week_low"`
	AverageVolume    int64   `json:"average_volume"`
}

// FinancialRatios are point-in-time valuation ratios; nil means the source had no value
type FinancialRatios struct {
	PERatio       *float64 `json:"pe_ratio"`
	PriceToBook   *float64 `json:"price_to_book"`
	DebtToEquity  *float64 `json:"debt_to_equity"`
	ProfitMargins *float64 `json:"profit_margins"`
}

// PriceRow is one daily OHLCV row in the recent-prices table
type PriceRow struct {
	Date   string  `json:"Date"`
	Open   float64 `json:"Open"`
	High   float64 `json:"High"`
	Low    float64 `json:"Low"`
	Close  float64 `json:"Close"`
	Volume int64   `json:"Volume"`
}

// TrendDetection summarizes the slope fit and the EMA crossover
type TrendDetection struct {
	LinearSlope float64   `json:"linear_slope"`
	EMA9        float64   `json:"ema_9"`
	EMA21       float64   `json:"ema_21"`
	Crossover   Crossover `json:"crossover"`
	Trend       Trend     `json:"trend"`
}

// IndicatorSeries maps a date (YYYY-MM-DD) to an indicator value
type IndicatorSeries map[string]float64

// StockSnapshot is the technical and fundamental picture of one ticker
type StockSnapshot struct {
	Ticker           string                     `json:"ticker"`
	Summary          PriceSummary               `json:"summary"`
	LatestIndicators map[string]float64         `json:"latest_indicators"`
	IndicatorSeries  map[string]IndicatorSeries `json:"indicator_series,omitempty"`
	FinancialMetrics FinancialRatios            `json:"financial_metrics"`
	RecentPrices     []PriceRow                 `json:"recent_prices"`
	TrendDetection   TrendDetection             `json:"trend_detection"`
}
