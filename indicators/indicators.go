// Package indicators computes technical indicators over daily OHLCV series.
// Inputs are chronological (oldest first); outputs are aligned with the input index.
package indicators

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"

	"stock-analyst/models"
)

// ErrInsufficientData is returned when a series is too short for the requested window
var ErrInsufficientData = errors.New("insufficient data for indicator window")

// Indicator keys used in snapshots and prompts
const (
	KeyRSI        = "RSI"
	KeyStochastic = "Stochastic_Oscillator"
	KeyMACD       = "MACD"
	KeyMACDSignal = "MACD_Signal"
	KeyVWAP       = "vwap"
)

// Last returns the most recent value of an indicator series
func Last(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrInsufficientData
	}
	return values[len(values)-1], nil
}

// LastN returns the last n values, or the whole series when it is shorter
func LastN(values []float64, n int) []float64 {
	if n <= 0 || n > len(values) {
		return values
	}
	return values[len(values)-n:]
}

// Warm-up lengths: the first index each oscillator has a value for
const (
	rsiLookback   = 14
	stochLookback = 13 + 2 + 2
	macdLookback  = 25 + 8
	vwapLookback  = 13
)

// Momentum computes the oscillator series shown in a stock snapshot:
// RSI(14), Stochastic %K(14,3,3), MACD(12,26,9) line and signal, and rolling VWAP(14).
// Every series is as long as bars. Positions inside an oscillator's warm-up are NaN,
// so a short history yields NaN-only series rather than an error.
func Momentum(bars models.Bars) map[string][]float64 {
	closes := bars.Closes()
	highs := bars.Highs()
	lows := bars.Lows()
	n := len(closes)

	macd, signal := undefined(n), undefined(n)
	if n > macdLookback {
		line, sig, _ := talib.Macd(closes, 12, 26, 9)
		macd, signal = blankWarmup(line, macdLookback), blankWarmup(sig, macdLookback)
	}

	return map[string][]float64{
		KeyRSI: warmup(n, rsiLookback, func() []float64 {
			return talib.Rsi(closes, 14)
		}),
		KeyStochastic: warmup(n, stochLookback, func() []float64 {
			slowK, _ := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
			return slowK
		}),
		KeyMACD:       macd,
		KeyMACDSignal: signal,
		KeyVWAP: warmup(n, vwapLookback, func() []float64 {
			return VWAP(highs, lows, closes, bars.Volumes(), 14)
		}),
	}
}

// warmup calls compute only when n covers lookback; talib indexes past the end of shorter input
func warmup(n, lookback int, compute func() []float64) []float64 {
	if n <= lookback {
		return undefined(n)
	}
	return blankWarmup(compute(), lookback)
}

func blankWarmup(values []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

func undefined(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// VWAP is the rolling volume-weighted typical price over window bars.
// Positions before the first full window, or with zero volume, are zero.
func VWAP(highs, lows, closes, volumes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) < window {
		return out
	}

	typical := talib.TypPrice(highs, lows, closes)
	weighted := make([]float64, len(typical))
	for i := range typical {
		weighted[i] = typical[i] * volumes[i]
	}

	num := talib.Sum(weighted, window)
	den := talib.Sum(volumes, window)
	for i := window - 1; i < len(out); i++ {
		if den[i] != 0 {
			out[i] = num[i] / den[i]
		}
	}
	return out
}

// EMA is the SMA-seeded exponential moving average used for signal detection.
// The first period-1 positions are NaN, and all of them when closes is shorter than period.
func EMA(closes []float64, period int) []float64 {
	return warmup(len(closes), period-1, func() []float64 {
		return talib.Ema(closes, period)
	})
}

// EMAFromFirst is an exponential moving average seeded with the first observation,
// so every point has a value. Chart lines use it to span the whole window.
func EMAFromFirst(closes []float64, span int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = alpha*closes[i] + (1-alpha)*out[i-1]
	}
	return out
}

// DetectCrossover compares the ordering of a short and long moving average at the last two observations.
// A NaN at either observation compares false both ways and reports no crossover.
func DetectCrossover(short, long []float64) models.Crossover {
	n := len(short)
	if n < 2 || len(long) != n {
		return models.CrossoverNone
	}
	prevShort, prevLong := short[n-2], long[n-2]
	curShort, curLong := short[n-1], long[n-1]

	switch {
	case prevShort < prevLong && curShort > curLong:
		return models.CrossoverBullish
	case prevShort > prevLong && curShort < curLong:
		return models.CrossoverBearish
	default:
		return models.CrossoverNone
	}
}

// TrendThreshold is the absolute OLS slope, in price per trading day, above which a trend is directional
const TrendThreshold = 0.3

// ClassifySlope maps a slope onto a trend. Exactly ±TrendThreshold is sideways.
func ClassifySlope(slope float64) models.Trend {
	switch {
	case slope > TrendThreshold:
		return models.TrendBullish
	case slope < -TrendThreshold:
		return models.TrendBearish
	default:
		return models.TrendSideways
	}
}

// Line is an ordinary least-squares fit of y against x = 0..n-1
type Line struct {
	Slope     float64
	Intercept float64
	RSquared  float64
}

// At returns the fitted value at index x
func (l Line) At(x int) float64 {
	return l.Intercept + l.Slope*float64(x)
}

// Values returns the fitted line over n points
func (l Line) Values(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = l.At(i)
	}
	return out
}

// FitLine fits y = a + b*x with x the position in the series.
// RSquared is 1 for a perfect fit and 0 when y is constant.
func FitLine(y []float64) (Line, error) {
	n := float64(len(y))
	if len(y) < 2 {
		return Line{}, ErrInsufficientData
	}

	var sumX, sumY float64
	for i, v := range y {
		sumX += float64(i)
		sumY += v
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy, syy float64
	for i, v := range y {
		dx := float64(i) - meanX
		dy := v - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	slope := sxy / sxx
	line := Line{Slope: slope, Intercept: meanY - slope*meanX}
	if syy > 0 {
		line.RSquared = (sxy * sxy) / (sxx * syy)
	}
	return line, nil
}

// PercentChange returns (to-from)/from*100, or 0 when from is 0
func PercentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return models.Round(v, places)
}
