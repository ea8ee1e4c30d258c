// Package charts builds the price figures and analysis summary returned with every answered query.
// Figures carry data only; rendering is left to the client.
package charts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stock-analyst/indicators"
	"stock-analyst/market"
	"stock-analyst/models"
	"stock-analyst/observability"
	"stock-analyst/services"
)

// ErrNoPriceData is returned when the 30 or 90 day daily series is empty
var ErrNoPriceData = errors.New("no chart data available")

// Figure keys in ChartBundle.Figures
const (
	FigureIntraday   = "intraday"
	FigureEMA        = "ema_analysis"
	FigureRegression = "regression"
	FigureLongTerm   = "long_term"
)

// DefaultCacheTTL is how long a built bundle is served from cache
const DefaultCacheTTL = 5 * time.Minute

const (
	cacheDataType    = "charts"
	shortWindowDays  = 30
	longWindowDays   = 90
	dateLayout       = "2006-01-02"
	intradayLayout   = "2006-01-02 15:04"
	pricePlaces      = 2
	regressionPlaces = 4
	rSquaredPlaces   = 3
)

// Trend labels used in the analysis summary
const (
	TrendBullish  = "Bullish"
	TrendBearish  = "Bearish"
	TrendSideways = "Sideways"
)

// Cache stores finished bundles. repository.Repository satisfies it.
type Cache interface {
	GetCached(ctx context.Context, symbol, dataType string, dest any) (bool, error)
	SetCached(ctx context.Context, symbol, dataType string, value any, ttl time.Duration) error
}

// Builder assembles chart bundles from price history
type Builder struct {
	prices  services.PriceHistorySource
	company services.CompanyInfoSource
	cache   Cache
	ttl     time.Duration
	now     func() time.Time
}

// NewBuilder creates a chart builder. cache may be nil.
func NewBuilder(prices services.PriceHistorySource, company services.CompanyInfoSource, cache Cache, ttl time.Duration) *Builder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Builder{
		prices:  prices,
		company: company,
		cache:   cache,
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for windows and market status
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

type chartData struct {
	company  string
	intraday models.Bars
	short    models.Bars
	long     models.Bars
}

// Build returns the four figures and the summary for symbol, from cache when fresh
func (b *Builder) Build(ctx context.Context, symbol string) (*models.ChartBundle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	ctx = observability.ContextWithSymbol(ctx, symbol)
	logger := observability.WithContext(ctx).With("component", "charts")

	if b.cache != nil {
		metrics := observability.GetMetrics()
		var cached models.ChartBundle
		found, err := b.cache.GetCached(ctx, symbol, cacheDataType, &cached)
		switch {
		case err != nil:
			metrics.RecordChartCache("error")
			logger.Warn("chart cache read failed", "error", err)
		case found:
			metrics.RecordChartCache("hit")
			logger.Debug("chart cache hit")
			return &cached, nil
		default:
			metrics.RecordChartCache("miss")
		}
	}

	now := b.now()
	data, err := b.fetch(ctx, symbol, now)
	if err != nil {
		return nil, err
	}

	bundle := assemble(symbol, market.ProfileFor(symbol), data, now)

	if b.cache != nil {
		if err := b.cache.SetCached(ctx, symbol, cacheDataType, bundle, b.ttl); err != nil {
			logger.Warn("chart cache write failed", "error", err)
		}
	}
	return bundle, nil
}

// fetch loads every series concurrently. Only the daily windows are required.
func (b *Builder) fetch(ctx context.Context, symbol string, now time.Time) (*chartData, error) {
	data := &chartData{company: symbol}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bars, err := b.prices.GetHistory(gctx, symbol, now.AddDate(0, 0, -shortWindowDays), now)
		if err != nil {
			return fmt.Errorf("%w for %s: %w", ErrNoPriceData, symbol, err)
		}
		mu.Lock()
		data.short = bars
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		bars, err := b.prices.GetHistory(gctx, symbol, now.AddDate(0, 0, -longWindowDays), now)
		if err != nil {
			return fmt.Errorf("%w for %s: %w", ErrNoPriceData, symbol, err)
		}
		mu.Lock()
		data.long = bars
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		bars, err := b.prices.GetIntraday(gctx, symbol)
		if err != nil {
			observability.Warn("intraday bars unavailable", "symbol", symbol, "error", err)
			return nil
		}
		mu.Lock()
		data.intraday = bars
		mu.Unlock()
		return nil
	})
	if b.company != nil {
		g.Go(func() error {
			profile, err := b.company.GetCompanyProfile(gctx, symbol)
			if err != nil || profile == nil || profile.LongName == "" {
				return nil
			}
			mu.Lock()
			data.company = profile.LongName
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(data.short) == 0 || len(data.long) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoPriceData, symbol)
	}
	return data, nil
}

func assemble(symbol string, profile *market.Profile, data *chartData, now time.Time) *models.ChartBundle {
	shortCloses := data.short.Closes()
	longCloses := data.long.Closes()

	ema9 := indicators.EMAFromFirst(shortCloses, 9)
	ema21 := indicators.EMAFromFirst(shortCloses, 21)
	ema20 := indicators.EMAFromFirst(longCloses, 20)
	ema50 := indicators.EMAFromFirst(longCloses, 50)

	current := shortCloses[len(shortCloses)-1]
	shortTrend := ShortTermTrend(current, ema9[len(ema9)-1], ema21[len(ema21)-1])
	longTrend := LongTermTrend(ema20[len(ema20)-1], ema50[len(ema50)-1])

	line, err := indicators.FitLine(shortCloses)
	if err != nil {
		// a single bar has no slope; draw it flat
		line = indicators.Line{Intercept: current}
	}

	title := fmt.Sprintf("%s (%s)", data.company, symbol)
	yAxis := fmt.Sprintf("Price (%s)", profile.CurrencySymbol())
	shortDates := dates(data.short, profile)
	longDates := dates(data.long, profile)

	figures := map[string]models.Figure{
		FigureIntraday: intradayFigure(title, yAxis, profile, data.intraday, now),
		FigureEMA: {
			Title:      title + " - 30-Day Price Analysis with EMA Signals",
			Subtitle:   fmt.Sprintf("Current Trend: %s | %s", shortTrend, profile.DisplayName()),
			XAxisTitle: "Date",
			YAxisTitle: yAxis,
			Series: []models.Series{
				{Name: "Close Price", X: shortDates, Y: shortCloses},
				{Name: "EMA 9", X: shortDates, Y: ema9},
				{Name: "EMA 21", X: shortDates, Y: ema21},
			},
		},
		FigureRegression: {
			Title:      title + " - 30-Day Linear Regression Trend Analysis",
			Subtitle:   fmt.Sprintf("Regression Slope: %.4f | R²: %.3f | %s", line.Slope, line.RSquared, profile.DisplayName()),
			XAxisTitle: "Date",
			YAxisTitle: yAxis,
			Series: []models.Series{
				{Name: "Close Price", X: shortDates, Y: shortCloses},
				{Name: fmt.Sprintf("Linear Regression (R²=%.3f)", line.RSquared), X: shortDates, Y: line.Values(len(shortCloses)), Dash: true},
			},
		},
		FigureLongTerm: {
			Title:      title + " - 90-Day Long-term Analysis with EMAs",
			Subtitle:   fmt.Sprintf("Long-term Trend: %s | %s", longTrend, profile.DisplayName()),
			XAxisTitle: "Date",
			YAxisTitle: yAxis,
			Series: []models.Series{
				{Name: "Close Price", X: longDates, Y: longCloses},
				{Name: "EMA 20", X: longDates, Y: ema20},
				{Name: "EMA 50", X: longDates, Y: ema50},
			},
		},
	}

	summary := models.AnalysisSummary{
		Symbol:          symbol,
		CompanyName:     data.company,
		MarketType:      string(profile.Code()),
		MarketName:      profile.DisplayName(),
		CurrentPrice:    models.Round(current, pricePlaces),
		CurrencySymbol:  profile.CurrencySymbol(),
		ShortTermTrend:  shortTrend,
		LongTermTrend:   longTrend,
		Performance30d:  models.Round(indicators.PercentChange(shortCloses[0], current), pricePlaces),
		Performance90d:  models.Round(indicators.PercentChange(longCloses[0], longCloses[len(longCloses)-1]), pricePlaces),
		RegressionSlope: models.Round(line.Slope, regressionPlaces),
		RSquared:        models.Round(line.RSquared, rSquaredPlaces),
		MarketStatus:    profile.Status(now),
		CurrentTime:     profile.FormatClock(now),
	}

	return &models.ChartBundle{Figures: figures, AnalysisSummary: summary}
}

func intradayFigure(title, yAxis string, profile *market.Profile, bars models.Bars, now time.Time) models.Figure {
	fig := models.Figure{XAxisTitle: "Time", YAxisTitle: yAxis}

	if profile.IsOpen(now) {
		fig.Title = title + " - Today's Intraday Price Movement"
		fig.Subtitle = "Market Open | Last Updated: " + profile.FormatClock(now)
	} else {
		fig.Title = title + " - Last Trading Day Price Movement"
		if len(bars) > 0 {
			last := profile.LocalTime(bars[len(bars)-1].Timestamp)
			fig.Subtitle = "Market Closed | Last Trading Day: " + last.Format(dateLayout)
		} else {
			fig.Subtitle = "Market Closed | " + profile.FormatClock(now)
		}
	}

	if len(bars) == 0 {
		return fig
	}

	x := make([]string, len(bars))
	for i, bar := range bars {
		x[i] = profile.LocalTime(bar.Timestamp).Format(intradayLayout)
	}
	fig.Series = []models.Series{{Name: "Price", X: x, Y: bars.Closes()}}

	high, low := maxOf(bars.Highs()), minOf(bars.Lows())
	fig.Levels = []models.Level{
		{Label: "Day High: " + profile.FormatCurrency(high), Value: high},
		{Label: "Day Low: " + profile.FormatCurrency(low), Value: low},
	}
	return fig
}

// ShortTermTrend reads the EMA 9/21 crossover together with where price sits against the short EMA
func ShortTermTrend(price, emaShort, emaLong float64) string {
	switch {
	case emaShort > emaLong && price > emaShort:
		return TrendBullish
	case emaShort < emaLong && price < emaShort:
		return TrendBearish
	default:
		return TrendSideways
	}
}

// LongTermTrend is bullish while EMA 20 is above EMA 50
func LongTermTrend(ema20, ema50 float64) string {
	if ema20 > ema50 {
		return TrendBullish
	}
	return TrendBearish
}

func dates(bars models.Bars, profile *market.Profile) []string {
	out := make([]string, len(bars))
	for i, bar := range bars {
		out[i] = profile.LocalTime(bar.Timestamp).Format(dateLayout)
	}
	return out
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
