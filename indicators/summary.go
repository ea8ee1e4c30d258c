package indicators

import (
	"math"

	"stock-analyst/models"
)

const (
	// SeriesWindow is how many trailing observations of each oscillator a snapshot keeps
	SeriesWindow = 12
	// SlopeWindow is how many trailing closes the trend line is fitted over
	SlopeWindow = 21
	// RecentRows is how many daily rows a snapshot shows
	RecentRows = 10
)

// Summarize computes the headline price statistics of a daily series.
// The five-day change reads position n-6, so fewer than six bars is ErrInsufficientData.
func Summarize(bars models.Bars) (models.PriceSummary, error) {
	n := len(bars)
	if n < 6 {
		return models.PriceSummary{}, ErrInsufficientData
	}

	closes := bars.Closes()
	hi, lo := closes[0], closes[0]
	for _, c := range closes {
		hi = max(hi, c)
		lo = min(lo, c)
	}

	return models.PriceSummary{
		CurrentPrice:     round(closes[n-1], 2),
		FiveDayChangePct: round(PercentChange(closes[n-6], closes[n-1]), 2),
		FiftyTwoWeekHigh: round(hi, 2),
		FiftyTwoWeekLow:  round(lo, 2),
		AverageVolume:    int64(mean(bars.Volumes())),
	}, nil
}

// Trend fits the trailing SlopeWindow closes and reads the EMA-9/EMA-21 crossover
func Trend(bars models.Bars) (models.TrendDetection, error) {
	closes := bars.Closes()
	line, err := FitLine(LastN(closes, SlopeWindow))
	if err != nil {
		return models.TrendDetection{}, err
	}

	ema9 := EMA(closes, 9)
	ema21 := EMA(closes, 21)
	last9, _ := Last(ema9)
	last21, _ := Last(ema21)

	return models.TrendDetection{
		LinearSlope: round(line.Slope, 4),
		EMA9:        round(last9, 2),
		EMA21:       round(last21, 2),
		Crossover:   DetectCrossover(ema9, ema21),
		Trend:       ClassifySlope(line.Slope),
	}, nil
}

// TrailingSeries keys the last SeriesWindow values of each indicator by bar date (YYYY-MM-DD)
// and returns the latest reading of each. NaN warm-up points are left out, and an indicator
// with no defined point in the window is omitted altogether.
func TrailingSeries(bars models.Bars, series map[string][]float64) (map[string]models.IndicatorSeries, map[string]float64) {
	trailing := make(map[string]models.IndicatorSeries, len(series))
	latest := make(map[string]float64, len(series))

	for name, values := range series {
		window := LastN(values, SeriesWindow)
		dates := bars.Tail(len(window))
		s := make(models.IndicatorSeries, len(window))
		for i, v := range window {
			if !math.IsNaN(v) {
				s[dates[i].Timestamp.Format("2006-01-02")] = round(v, 2)
			}
		}
		if len(s) == 0 {
			continue
		}
		trailing[name] = s
		if v, _ := Last(window); !math.IsNaN(v) {
			latest[name] = round(v, 2)
		}
	}
	return trailing, latest
}

// RecentPriceRows returns the last RecentRows bars as display rows rounded to cents
func RecentPriceRows(bars models.Bars) []models.PriceRow {
	tail := bars.Tail(RecentRows)
	rows := make([]models.PriceRow, len(tail))
	for i, b := range tail {
		rows[i] = models.PriceRow{
			Date:   b.Timestamp.Format("2006-01-02"),
			Open:   round(b.Open.InexactFloat64(), 2),
			High:   round(b.High.InexactFloat64(), 2),
			Low:    round(b.Low.InexactFloat64(), 2),
			Close:  round(b.Close.InexactFloat64(), 2),
			Volume: b.Volume,
		}
	}
	return rows
}
