package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stock-analyst/indicators"
	"stock-analyst/market"
	"stock-analyst/observability"
)

// Sentinel values written in place of prices when no estimate is made
const (
	MarketClosedSentinel = "Market is closed today"
	NoDataSentinel       = "No data available for this symbol"
	errorSentinelPrefix  = "Error: "
)

// targetLookbackDays is the independent daily pull the estimator reasons over
const targetLookbackDays = 90

const stopLossSystemPrompt = `You are a risk manager setting a stop-loss for a stock position.
You are given the technical context of the stock, its beta and the current news sentiment score (1-100).
Weigh support levels, ATR, recent volatility and downside risk. The stop-loss must sit below the current price.
Respond with JSON only: {"stop_loss": <number>}`

const targetSystemPrompt = `You are an equity analyst setting a short-term price target for a stock.
You are given the technical context of the stock, its beta and the current news sentiment score (1-100).
Weigh resistance levels, momentum, moving averages and upside potential. The target must sit above the current price
unless the technical picture is clearly bearish.
Respond with JSON only: {"target_price": <number>}`

// PriceTargets holds the formatted stop-loss and target, or sentinel strings
type PriceTargets struct {
	StopLoss    string `json:"stop_loss"`
	TargetPrice string `json:"target_price"`
}

func sentinelTargets(s string) PriceTargets {
	return PriceTargets{StopLoss: s, TargetPrice: s}
}

type stopLossAnswer struct {
	StopLoss *float64 `json:"stop_loss" validate:"required,gt=0"`
}

type targetAnswer struct {
	TargetPrice *float64 `json:"target_price" validate:"required,gt=0"`
}

// PriceTargetEstimator asks the model for a stop-loss and a target price grounded in a technical context.
// It never fails: closed markets, short histories and errors all yield sentinel strings.
type PriceTargetEstimator struct {
	llm     LLMService
	prices  PriceHistorySource
	company CompanyInfoSource
	now     func() time.Time
}

// NewPriceTargetEstimator creates a new PriceTargetEstimator
func NewPriceTargetEstimator(llm LLMService, prices PriceHistorySource, company CompanyInfoSource) *PriceTargetEstimator {
	return &PriceTargetEstimator{
		llm:     llm,
		prices:  prices,
		company: company,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for the market-hours check and the history window
func (e *PriceTargetEstimator) WithClock(now func() time.Time) *PriceTargetEstimator {
	e.now = now
	return e
}

// Estimate returns currency-formatted stop-loss and target prices for ticker
func (e *PriceTargetEstimator) Estimate(ctx context.Context, ticker string, sentimentScore int) PriceTargets {
	profile := market.ProfileFor(ticker)
	now := e.now()
	if !profile.IsOpen(now) {
		observability.Info("market closed, skipping price targets",
			"symbol", ticker,
			"market", profile.Code())
		return sentinelTargets(MarketClosedSentinel)
	}

	targets, err := e.estimate(ctx, ticker, sentimentScore, profile, now)
	if err != nil {
		observability.Warn("price target estimation failed",
			"symbol", ticker,
			"error", err)
		observability.GetMetrics().RecordStageError(StageTargets, categorizeError(err))
		return sentinelTargets(errorSentinelPrefix + err.Error())
	}
	return targets
}

func (e *PriceTargetEstimator) estimate(ctx context.Context, ticker string, sentimentScore int, profile *market.Profile, now time.Time) (PriceTargets, error) {
	bars, err := e.prices.GetHistory(ctx, ticker, now.AddDate(0, 0, -targetLookbackDays), now)
	if err != nil {
		return PriceTargets{}, fmt.Errorf("failed to fetch history: %w", err)
	}
	if len(bars) < indicators.MinContextBars {
		return sentinelTargets(NoDataSentinel), nil
	}

	tc, err := indicators.TechnicalContext(bars)
	if err != nil {
		return PriceTargets{}, fmt.Errorf("failed to compute technical context: %w", err)
	}

	info, err := e.company.GetCompanyProfile(ctx, ticker)
	if err != nil {
		return PriceTargets{}, fmt.Errorf("failed to fetch company profile: %w", err)
	}

	prompt, err := targetPrompt(ticker, profile, tc, info.LongName, info.Sector, info.BetaOr(1.0), sentimentScore)
	if err != nil {
		return PriceTargets{}, err
	}

	var stop stopLossAnswer
	if err := e.llm.InvokeStructured(ctx, stopLossSystemPrompt, prompt, &stop); err != nil {
		return PriceTargets{}, fmt.Errorf("failed to estimate stop-loss: %w", err)
	}
	var target targetAnswer
	if err := e.llm.InvokeStructured(ctx, targetSystemPrompt, prompt, &target); err != nil {
		return PriceTargets{}, fmt.Errorf("failed to estimate target price: %w", err)
	}

	return PriceTargets{
		StopLoss:    profile.FormatCurrency(*stop.StopLoss),
		TargetPrice: profile.FormatCurrency(*target.TargetPrice),
	}, nil
}

func targetPrompt(ticker string, profile *market.Profile, tc *indicators.Context, name, sector string, beta float64, sentimentScore int) (string, error) {
	data, err := json.MarshalIndent(struct {
		Ticker         string              `json:"ticker"`
		CompanyName    string              `json:"company_name"`
		Sector         string              `json:"sector"`
		Market         string              `json:"market"`
		Currency       string              `json:"currency_symbol"`
		Beta           float64             `json:"beta"`
		SentimentScore int                 `json:"news_sentiment_score"`
		Technicals     *indicators.Context `json:"technical_context"`
	}{ticker, name, sector, profile.DisplayName(), profile.CurrencySymbol(), beta, sentimentScore, tc}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode technical context: %w", err)
	}
	return fmt.Sprintf("Technical context for %s:\n%s", ticker, data), nil
}
