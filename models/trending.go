package models

import "math"

// TrendingEntry is the intraday move of one trending ticker
type TrendingEntry struct {
	PointsChange     float64 `json:"points_change"`
	PercentageChange float64 `json:"percentage_change"`
}

// NewTrendingEntry computes the move from open to current, both rounded to two decimals.
// A zero open yields a zero percentage.
func NewTrendingEntry(open, current float64) TrendingEntry {
	points := current - open
	pct := 0.0
	if open != 0 {
		pct = points / open * 100
	}
	return TrendingEntry{
		PointsChange:     Round(points, 2),
		PercentageChange: Round(pct, 2),
	}
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
