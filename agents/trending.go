package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"golang.org/x/sync/errgroup"

	"stock-analyst/models"
	"stock-analyst/observability"
	"stock-analyst/services"
)

// ToolWebSearch is the search tool offered to the discovery model
const ToolWebSearch = "web_search"

// MaxExtractedTickers caps ExtractTickers output
const MaxExtractedTickers = 15

// SampleTrendingTickers is the candidate list used when discovery is not enabled
var SampleTrendingTickers = []string{"AAPL", "RS", "MSFT", "GOOGL", "TSLA", "NVDA"}

const discoverySystemPrompt = `You find the stocks that are trending today. Use the web_search tool as needed.`

const discoveryPrompt = `Search for the most trending and actively traded stocks today. Look for:
1. Most active stocks by volume
2. Top gainers and losers
3. Trending stocks on social media
4. Stocks with high analyst interest

Find 10-15 stock ticker symbols (like AAPL, GOOGL, MSFT, TSLA, etc.) that are currently trending.
Return ONLY the ticker symbols in a comma-separated format: AAPL, GOOGL, MSFT, TSLA, NVDA, etc.

Do not include any explanations, just the ticker symbols.`

var tickerPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// excludedTokens are uppercase words that match tickerPattern but are not tickers
var excludedTokens = toSet(
	"THE", "AND", "FOR", "ARE", "BUT", "NOT", "YOU", "ALL", "CAN", "HER", "WAS", "ONE", "OUR", "HAD",
	"WHAT", "YOUR", "WHEN", "HIM", "MY", "HAS", "BEEN", "MORE", "WHO", "OIL", "GAS", "NEW", "NOW", "OLD",
	"SEE", "TWO", "WAY", "ITS", "DID", "GET", "MAY", "SAY", "SHE", "USE", "HOW", "TOP", "DAY", "OUT", "OFF",
	"END", "WHY", "LET", "PUT", "TOO", "RUN", "GOT", "TRY", "WIN", "YES", "BUY", "SELL", "HOLD", "STOCK",
	"STOCKS", "MARKET", "TRADING", "PRICE", "VOLUME", "TODAY", "WEEK", "MONTH", "YEAR", "HIGH", "LOW",
	"CHANGE", "PERCENT", "GAIN", "LOSS", "SHARES", "COMPANY", "TECH", "SECTOR", "INDEX", "FUND", "TRADE",
	"INVEST", "MONEY", "CASH", "BANK", "FINANCIAL", "BUSINESS", "NEWS", "REPORT", "EARNINGS", "REVENUE",
	"PROFIT", "GROWTH", "RATE", "ANALYSIS", "RECOMMENDATION", "ANALYST", "RESEARCH", "UPGRADE", "DOWNGRADE",
	"TARGET", "ESTIMATE", "FORECAST", "OUTLOOK", "PERFORMANCE", "RESULT", "QUARTER", "ANNUAL", "MONTHLY",
	"WEEKLY", "DAILY", "CURRENT", "LATEST", "RECENT", "ACTIVE", "POPULAR", "TRENDING", "VOLATILE", "STABLE",
	"RISING", "FALLING", "BULLISH", "BEARISH", "NEUTRAL", "POSITIVE", "NEGATIVE", "STRONG", "WEAK", "BEST",
	"WORST", "MOST", "LEAST", "FIRST", "LAST", "NEXT", "PREVIOUS", "ABOVE", "BELOW", "BETWEEN", "WITHIN",
	"AROUND", "OVER", "UNDER", "NEAR", "FAR", "CLOSE", "OPEN", "AFTER", "BEFORE", "DURING", "WHILE", "SINCE",
	"UNTIL", "FROM", "WITH", "WITHOUT", "THROUGH", "ACROSS", "ALONG", "BEHIND", "BEYOND", "EXCEPT", "INSIDE",
	"OUTSIDE", "TOWARD", "AGAINST",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// ExtractTickers returns the ticker-like tokens of text in first-seen order,
// without common uppercase words or duplicates, capped at MaxExtractedTickers.
func ExtractTickers(text string) []string {
	seen := make(map[string]struct{})
	tickers := make([]string, 0, MaxExtractedTickers)
	for _, token := range tickerPattern.FindAllString(text, -1) {
		if _, excluded := excludedTokens[token]; excluded {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tickers = append(tickers, token)
		if len(tickers) == MaxExtractedTickers {
			break
		}
	}
	return tickers
}

// TrendingDiscovery asks a search-enabled model which stocks are trending and extracts their tickers.
// It never fails; a broken search or an unfinished loop gives a short or empty list.
type TrendingDiscovery struct {
	llm           LLMService
	search        WebSearcher
	maxIterations int
}

// NewTrendingDiscovery creates a new TrendingDiscovery
func NewTrendingDiscovery(llm LLMService, search WebSearcher, maxIterations int) *TrendingDiscovery {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	return &TrendingDiscovery{llm: llm, search: search, maxIterations: maxIterations}
}

// Discover returns up to MaxExtractedTickers trending tickers
func (d *TrendingDiscovery) Discover(ctx context.Context) []string {
	messages := []services.ChatMessage{{Role: services.RoleUser, Content: discoveryPrompt}}

	res, err := runToolLoop(ctx, d.llm, StageTrending, discoverySystemPrompt, messages, d.tools(), d.maxIterations)
	text := res.Text
	if err != nil {
		observability.Warn("trending search did not finish",
			"iterations", res.Iterations,
			"error", err)
		text = res.assistantText()
	}

	tickers := ExtractTickers(text)
	observability.Info("trending tickers discovered", "count", len(tickers))
	return tickers
}

func (d *TrendingDiscovery) tools() []Tool {
	return []Tool{{
		Definition: services.ToolDefinition{
			Name:        ToolWebSearch,
			Description: "Search for current market information, trending stocks, and stock tickers",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search query"},
				},
				"required": []string{"query"},
			},
		},
		Run: func(ctx context.Context, arguments string) (string, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if args.Query == "" {
				return "", fmt.Errorf("query is required")
			}
			return d.search.Search(ctx, args.Query)
		},
	}}
}

// TrendingQuotes computes the intraday move of trending tickers
type TrendingQuotes struct {
	quotes QuoteSource
	limit  int
}

// NewTrendingQuotes creates a TrendingQuotes that looks at the first limit candidates
func NewTrendingQuotes(quotes QuoteSource, limit int) *TrendingQuotes {
	if limit <= 0 {
		limit = 5
	}
	return &TrendingQuotes{quotes: quotes, limit: limit}
}

// Moves fetches quotes for the first limit tickers concurrently. Tickers whose quote fails are left out.
func (t *TrendingQuotes) Moves(ctx context.Context, tickers []string) map[string]models.TrendingEntry {
	if len(tickers) > t.limit {
		tickers = tickers[:t.limit]
	}

	var mu sync.Mutex
	moves := make(map[string]models.TrendingEntry, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	for _, ticker := range tickers {
		ticker := ticker
		g.Go(func() error {
			q, err := t.quotes.GetQuote(gctx, ticker)
			if err != nil {
				observability.Warn("skipping trending ticker",
					"symbol", ticker,
					"error", err)
				return nil
			}
			entry := models.NewTrendingEntry(q.Open.InexactFloat64(), q.Price.InexactFloat64())
			mu.Lock()
			moves[ticker] = entry
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return moves
}

// TrendingMessage renders the final answer of the trending branch
func TrendingMessage(moves map[string]models.TrendingEntry) (string, error) {
	data, err := json.MarshalIndent(moves, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode trending stocks: %w", err)
	}
	return "The trending stocks are \n\n" + string(data), nil
}
