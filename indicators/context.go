package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"stock-analyst/models"
)

// MinContextBars is the shortest history TechnicalContext accepts
const MinContextBars = 30

// Context is the technical picture used to reason about stop-loss and target levels
type Context struct {
	CurrentPrice   float64 `json:"current_price"`
	PreviousClose  float64 `json:"previous_close"`
	High52w        float64 `json:"high_52w"`
	Low52w         float64 `json:"low_52w"`
	SMA20          float64 `json:"sma_20"`
	SMA50          float64 `json:"sma_50"`
	EMA12          float64 `json:"ema_12"`
	EMA26          float64 `json:"ema_26"`
	Volatility20d  float64 `json:"volatility_20d"`
	RSI            float64 `json:"rsi"`
	MACD           float64 `json:"macd"`
	MACDSignal     float64 `json:"macd_signal"`
	BBUpper        float64 `json:"bb_upper"`
	BBMiddle       float64 `json:"bb_middle"`
	BBLower        float64 `json:"bb_lower"`
	Resistance     float64 `json:"resistance_level"`
	Support        float64 `json:"support_level"`
	ATR            float64 `json:"atr"`
	AvgVolume      float64 `json:"avg_volume"`
	CurrentVolume  float64 `json:"current_volume"`
	VolumeRatio    float64 `json:"volume_ratio"`
	PriceChange1d  float64 `json:"price_change_1d"`
	PriceChange5d  float64 `json:"price_change_5d"`
	PriceChange20d float64 `json:"price_change_20d"`
}

// TechnicalContext derives price levels, averages, volatility and momentum from a daily series.
// It needs at least MinContextBars bars.
func TechnicalContext(bars models.Bars) (*Context, error) {
	n := len(bars)
	if n < MinContextBars {
		return nil, ErrInsufficientData
	}

	closes := bars.Closes()
	highs := bars.Highs()
	lows := bars.Lows()
	volumes := bars.Volumes()

	c := &Context{
		CurrentPrice:  closes[n-1],
		PreviousClose: closes[n-2],
		CurrentVolume: volumes[n-1],
	}

	window52w := min(252, n)
	c.High52w, _ = Last(talib.Max(highs, window52w))
	c.Low52w, _ = Last(talib.Min(lows, window52w))

	c.SMA20, _ = Last(talib.Sma(closes, 20))
	c.SMA50 = c.SMA20
	if n >= 50 {
		c.SMA50, _ = Last(talib.Sma(closes, 50))
	}
	c.EMA12, _ = Last(talib.Ema(closes, 12))
	c.EMA26, _ = Last(talib.Ema(closes, 26))

	returns := talib.Rocp(closes, 1)
	stdev, _ := Last(talib.StdDev(returns[1:], 20, 1))
	c.Volatility20d = stdev * math.Sqrt(252)

	c.RSI, _ = Last(talib.Rsi(closes, 14))
	macd, signal, _ := talib.Macd(closes, 12, 26, 9)
	c.MACD, _ = Last(macd)
	c.MACDSignal, _ = Last(signal)

	upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	c.BBUpper, _ = Last(upper)
	c.BBMiddle, _ = Last(middle)
	c.BBLower, _ = Last(lower)

	c.Resistance, _ = Last(talib.Max(highs, 20))
	c.Support, _ = Last(talib.Min(lows, 20))
	c.ATR, _ = Last(talib.Atr(highs, lows, closes, 14))

	c.AvgVolume, _ = Last(talib.Sma(volumes, 20))
	if c.AvgVolume > 0 {
		c.VolumeRatio = c.CurrentVolume / c.AvgVolume
	}

	c.PriceChange1d = PercentChange(c.PreviousClose, c.CurrentPrice)
	c.PriceChange5d = PercentChange(closes[n-6], c.CurrentPrice)
	c.PriceChange20d = PercentChange(closes[n-21], c.CurrentPrice)

	c.roundAll()
	return c, nil
}

func (c *Context) roundAll() {
	for _, f := range []*float64{
		&c.CurrentPrice, &c.PreviousClose, &c.High52w, &c.Low52w, &c.SMA20, &c.SMA50,
		&c.EMA12, &c.EMA26, &c.RSI, &c.MACD, &c.MACDSignal, &c.BBUpper, &c.BBMiddle,
		&c.BBLower, &c.Resistance, &c.Support, &c.ATR, &c.AvgVolume, &c.VolumeRatio,
		&c.PriceChange1d, &c.PriceChange5d, &c.PriceChange20d,
	} {
		*f = round(*f, 2)
	}
	c.Volatility20d = round(c.Volatility20d, 4)
}
