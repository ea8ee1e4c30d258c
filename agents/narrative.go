package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"stock-analyst/market"
	"stock-analyst/models"
	"stock-analyst/services"
)

// Tool names offered to the narrative model
const (
	ToolNewsSentiment = "get_news_sentiment"
	ToolStockSummary  = "get_stock_summary"
)

const narrativeSystemPrompt = `You are a senior equity analyst writing an investment narrative for a retail investor.
You are given a stock snapshot (price summary, indicators, trend detection, financial ratios, recent prices),
a news sentiment record, and a stop-loss and target price. Quote prices with the given currency symbol.

Respond with JSON in exactly this shape:
{
  "price_summary": "<current price, 5-day change, 52-week range>",
  "trend_detection": "<slope and EMA crossover reading>",
  "technical_indicators": "<RSI, stochastic, MACD, VWAP reading>",
  "financial_metrics": "<P/E, price-to-book, debt-to-equity, margins>",
  "news_sentiment": "<what the news flow means for the stock>",
  "investment_recommendation": {"verdict": "Buy|Hold|Sell", "reasoning": "<justification>"}
}`

const narrativeToolSystemPrompt = `You are a senior equity analyst answering an investor's question about a stock.
The data gathered so far is included in the first message. You may call get_news_sentiment or get_stock_summary
with {"ticker": "<symbol>"} to refresh or extend it. When you have enough information, answer without calling a tool.

Structure the answer with these sections: price performance, trend and momentum, technical indicators,
financial and valuation metrics, news sentiment, and a final Buy/Hold/Sell call with risk/reward,
entry and exit levels and any conflicting signals. Quote prices with the given currency symbol.`

// NarrativeInput is the accumulated workflow state the narrative is written from
type NarrativeInput struct {
	Ticker      string                  `json:"ticker"`
	Query       string                  `json:"query"`
	Currency    string                  `json:"currency_symbol"`
	Snapshot    *models.StockSnapshot   `json:"stock_snapshot"`
	Sentiment   *models.SentimentRecord `json:"news_sentiment"`
	StopLoss    string                  `json:"stop_loss"`
	TargetPrice string                  `json:"target_price"`
}

// NarrativeInputFrom reads the narrative input out of the workflow state
func NarrativeInputFrom(s *WorkflowState) NarrativeInput {
	query := ""
	if len(s.Conversation) > 0 {
		query = s.Conversation[0].Content
	}
	return NarrativeInput{
		Ticker:      s.Ticker,
		Query:       query,
		Currency:    market.ProfileFor(s.Ticker).CurrencySymbol(),
		Snapshot:    s.Snapshot,
		Sentiment:   s.Sentiment,
		StopLoss:    s.StopLoss,
		TargetPrice: s.TargetPrice,
	}
}

func (in NarrativeInput) prompt() (string, error) {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode narrative input: %w", err)
	}
	return fmt.Sprintf("Investor question: %s\n\nAnalysis data for %s (currency %s):\n%s",
		in.Query, in.Ticker, in.Currency, data), nil
}

// NarrativeGenerator writes the final analysis.
// Generate makes one structured call; GenerateWithTools runs a bounded tool loop.
type NarrativeGenerator struct {
	llm           LLMService
	news          *NewsSentimentCollector
	summary       *StockSummaryCollector
	maxIterations int
}

// NewNarrativeGenerator creates a new NarrativeGenerator. The collectors back the model's tools.
func NewNarrativeGenerator(llm LLMService, news *NewsSentimentCollector, summary *StockSummaryCollector, maxIterations int) *NarrativeGenerator {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	return &NarrativeGenerator{
		llm:           llm,
		news:          news,
		summary:       summary,
		maxIterations: maxIterations,
	}
}

// Generate produces a NarrativeRecord with a single structured model call and no retry
func (g *NarrativeGenerator) Generate(ctx context.Context, in NarrativeInput) (*models.NarrativeRecord, error) {
	prompt, err := in.prompt()
	if err != nil {
		return nil, err
	}
	var record models.NarrativeRecord
	if err := g.llm.InvokeStructured(ctx, narrativeSystemPrompt, prompt, &record); err != nil {
		return nil, fmt.Errorf("failed to generate narrative for %s: %w", in.Ticker, err)
	}
	return &record, nil
}

// GenerateWithTools lets the model call the collectors before answering in free text.
// It fails with ErrToolLoopExhausted when the model is still requesting tools at the iteration cap.
func (g *NarrativeGenerator) GenerateWithTools(ctx context.Context, in NarrativeInput) (string, error) {
	prompt, err := in.prompt()
	if err != nil {
		return "", err
	}
	messages := []services.ChatMessage{{Role: services.RoleUser, Content: prompt}}

	res, err := runToolLoop(ctx, g.llm, StageNarrative, narrativeToolSystemPrompt, messages, g.tools(), g.maxIterations)
	if err != nil {
		return "", fmt.Errorf("failed to generate narrative for %s: %w", in.Ticker, err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", fmt.Errorf("failed to generate narrative for %s: model returned an empty answer", in.Ticker)
	}
	return text, nil
}

var tickerParameters = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"ticker": map[string]any{
			"type":        "string",
			"description": "Stock ticker symbol, e.g. AAPL or TCS.NS",
		},
	},
	"required": []string{"ticker"},
}

type tickerArgs struct {
	Ticker string `json:"ticker"`
}

func parseTickerArgs(arguments string) (string, error) {
	var args tickerArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	ticker := strings.ToUpper(strings.TrimSpace(args.Ticker))
	if ticker == "" {
		return "", fmt.Errorf("ticker is required")
	}
	return ticker, nil
}

func (g *NarrativeGenerator) tools() []Tool {
	return []Tool{
		{
			Definition: services.ToolDefinition{
				Name:        ToolNewsSentiment,
				Description: "Classify recent news about a stock and return its sentiment record",
				Parameters:  tickerParameters,
			},
			Run: func(ctx context.Context, arguments string) (string, error) {
				ticker, err := parseTickerArgs(arguments)
				if err != nil {
					return "", err
				}
				record, err := g.news.Collect(ctx, ticker)
				if err != nil {
					return "", err
				}
				return toJSON(record)
			},
		},
		{
			Definition: services.ToolDefinition{
				Name:        ToolStockSummary,
				Description: "Return the technical and fundamental snapshot of a stock",
				Parameters:  tickerParameters,
			},
			Run: func(ctx context.Context, arguments string) (string, error) {
				ticker, err := parseTickerArgs(arguments)
				if err != nil {
					return "", err
				}
				snap, err := g.summary.Collect(ctx, ticker)
				if err != nil {
					return "", err
				}
				return toJSON(snap)
			},
		},
	}
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
