//go:build e2e
// +build e2e

package scenarios

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"stock-analyst/agents"
	"stock-analyst/charts"
	"stock-analyst/config"
	"stock-analyst/e2e"
	"stock-analyst/e2e/mocks"
	"stock-analyst/models"

	"github.com/google/uuid"
)

type queryResponse struct {
	Response        string                          `json:"response"`
	Figures         map[string]models.Figure        `json:"figures"`
	AnalysisSummary models.AnalysisSummary          `json:"analysis_summary"`
	TrendingStocks  map[string]models.TrendingEntry `json:"trending_stocks"`
	AIInsights      map[string]any                  `json:"aiInsights"`
	Sentiment       *models.SentimentRecord         `json:"sentiment"`
	Error           string                          `json:"error"`
}

type runsResponse struct {
	Runs  []models.QueryRun `json:"runs"`
	Count int               `json:"count"`
}

func TestAnalysis_AdvancedPipeline(t *testing.T) {
	harness := setupHarness(t, config.ModeAdvanced)
	mock := harness.MockServer()
	token := signup(t, harness, "advanced@example.com", "password")

	resp := harness.DoAuthRequest(http.MethodPost, "/api/query",
		`{"ticker":"aapl","query":"Should I buy Apple now?"}`, token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var out queryResponse
	decode(t, resp.Body.Bytes(), &out)

	t.Run("answer is the structured narrative", func(t *testing.T) {
		if !strings.Contains(out.Response, "## Price Performance Analysis") {
			t.Errorf("expected structured sections in response, got %q", out.Response)
		}
		if got := out.AIInsights["news_sentiment_integration"]; got != models.MissingSection {
			t.Errorf("expected blank section to be filled, got %v", got)
		}
		if out.AIInsights["targetPrice"] != "$215.25" || out.AIInsights["stopLoss"] != "$180.50" {
			t.Errorf("unexpected price targets: target=%v stop=%v", out.AIInsights["targetPrice"], out.AIInsights["stopLoss"])
		}
	})

	t.Run("sentiment covers stories only", func(t *testing.T) {
		if out.Sentiment == nil {
			t.Fatal("expected sentiment in response")
		}
		if len(out.Sentiment.NewsRating) != 3 {
			t.Errorf("expected 3 rated stories, got %d", len(out.Sentiment.NewsRating))
		}
		if out.Sentiment.SentimentScore != 72 {
			t.Errorf("expected sentiment score 72, got %d", out.Sentiment.SentimentScore)
		}
	})

	t.Run("charts and summary", func(t *testing.T) {
		for _, name := range []string{charts.FigureIntraday, charts.FigureEMA, charts.FigureRegression, charts.FigureLongTerm} {
			if _, ok := out.Figures[name]; !ok {
				t.Errorf("missing figure %q in %v", name, keys(out.Figures))
			}
		}
		summary := out.AnalysisSummary
		if summary.Symbol != "AAPL" || summary.CompanyName != "Apple Inc." {
			t.Errorf("unexpected summary identity: %+v", summary)
		}
		if summary.CurrencySymbol != "$" || summary.CurrentPrice <= 0 {
			t.Errorf("unexpected summary price: %+v", summary)
		}
		if len(out.TrendingStocks) != 0 {
			t.Errorf("expected no trending stocks for an analysis, got %v", out.TrendingStocks)
		}
	})

	t.Run("every model stage was called", func(t *testing.T) {
		for _, stage := range []string{mocks.StageNews, mocks.StageStopLoss, mocks.StageTarget, mocks.StageStructure} {
			if mock.ChatCalls(stage) != 1 {
				t.Errorf("expected one %s call, got %d", stage, mock.ChatCalls(stage))
			}
		}
		// one tool call round plus the final answer
		if mock.ChatCalls(mocks.StageToolAnswer) != 2 {
			t.Errorf("expected two tool narrative calls, got %d", mock.ChatCalls(mocks.StageToolAnswer))
		}
		if mock.ChatCalls(mocks.StageNarrative) != 0 {
			t.Errorf("advanced mode must not use the single-shot narrative")
		}
	})

	t.Run("charts are cached", func(t *testing.T) {
		var rows int
		err := harness.Repository().Pool().QueryRow(harness.Context(),
			"SELECT COUNT(*) FROM market_data_cache WHERE symbol = $1", "AAPL").Scan(&rows)
		if err != nil {
			t.Fatalf("failed to count cache rows: %v", err)
		}
		if rows == 0 {
			t.Error("expected chart data in market_data_cache")
		}
	})

	t.Run("run is recorded", func(t *testing.T) {
		resp := harness.DoAuthRequest(http.MethodGet, "/api/runs?limit=10", "", token)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", resp.Code)
		}
		var runs runsResponse
		decode(t, resp.Body.Bytes(), &runs)

		if runs.Count != 1 || len(runs.Runs) != 1 {
			t.Fatalf("expected one run, got %+v", runs)
		}
		run := runs.Runs[0]
		if run.Status != models.QueryRunStatusCompleted || run.Ticker != "AAPL" || run.Mode != config.ModeAdvanced {
			t.Errorf("unexpected run: %+v", run)
		}
		if run.Intent != string(agents.IntentAnalyze) {
			t.Errorf("expected intent %s, got %s", agents.IntentAnalyze, run.Intent)
		}
	})
}

func TestAnalysis_BasicPipeline(t *testing.T) {
	harness := setupHarness(t, config.ModeBasic)
	mock := harness.MockServer()
	token := signup(t, harness, "basic@example.com", "password")

	resp := harness.DoAuthRequest(http.MethodPost, "/api/query",
		`{"ticker":"AAPL","query":"Give me an outlook"}`, token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var out queryResponse
	decode(t, resp.Body.Bytes(), &out)

	if !strings.Contains(out.Response, "## Investment Recommendation\nBuy:") {
		t.Errorf("expected the narrative recommendation in response, got %q", out.Response)
	}
	if _, ok := out.AIInsights["price_summary"]; !ok {
		t.Errorf("expected narrative sections in aiInsights, got %v", out.AIInsights)
	}
	if mock.ChatCalls(mocks.StageNarrative) != 1 {
		t.Errorf("expected one narrative call, got %d", mock.ChatCalls(mocks.StageNarrative))
	}
	if mock.ChatCalls(mocks.StageToolAnswer) != 0 || mock.ChatCalls(mocks.StageStructure) != 0 {
		t.Error("basic mode must not use tools or structuring")
	}
}

func TestAnalysis_IndianMarketClosed(t *testing.T) {
	harness := setupHarness(t, config.ModeBasic)
	token := signup(t, harness, "india@example.com", "password")

	resp := harness.DoAuthRequest(http.MethodPost, "/api/query",
		`{"ticker":"TCS.NS","query":"How is TCS doing?"}`, token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var out queryResponse
	decode(t, resp.Body.Bytes(), &out)

	// 15:30 UTC is after the NSE close
	if out.AIInsights["targetPrice"] != agents.MarketClosedSentinel || out.AIInsights["stopLoss"] != agents.MarketClosedSentinel {
		t.Errorf("expected market closed sentinels, got %v / %v", out.AIInsights["targetPrice"], out.AIInsights["stopLoss"])
	}
	if out.AnalysisSummary.CurrencySymbol != "₹" {
		t.Errorf("expected rupee currency, got %q", out.AnalysisSummary.CurrencySymbol)
	}
	if harness.MockServer().ChatCalls(mocks.StageTarget) != 0 {
		t.Error("no price target should be requested while the market is closed")
	}
}

func TestAnalysis_TrendingQuery(t *testing.T) {
	harness := setupHarness(t, config.ModeAdvanced)
	token := signup(t, harness, "trending@example.com", "password")

	resp := harness.DoAuthRequest(http.MethodPost, "/api/query",
		`{"ticker":"AAPL","query":"Which stocks are trending today?"}`, token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var out queryResponse
	decode(t, resp.Body.Bytes(), &out)

	for _, ticker := range []string{"NVDA", "TSLA", "AMD"} {
		if _, ok := out.TrendingStocks[ticker]; !ok {
			t.Errorf("expected %s in trending stocks, got %v", ticker, out.TrendingStocks)
		}
	}
	if harness.MockServer().CountRequests("/search") != 1 {
		t.Errorf("expected one web search, got %d", harness.MockServer().CountRequests("/search"))
	}
	if harness.MockServer().ChatCalls(mocks.StageNews) != 0 {
		t.Error("trending queries must skip the analysis stages")
	}
	if out.Sentiment != nil {
		t.Errorf("expected no sentiment for a trending query, got %+v", out.Sentiment)
	}
}

func TestAnalysis_Failures(t *testing.T) {
	harness := setupHarness(t, config.ModeAdvanced)
	token := signup(t, harness, "failures@example.com", "password")

	t.Run("invalid requests", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"missing ticker", `{"query":"outlook?"}`},
			{"missing query", `{"ticker":"AAPL"}`},
			{"invalid characters", `{"ticker":"AAPL!","query":"outlook?"}`},
			{"invalid JSON", `{invalid}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp := harness.DoAuthRequest(http.MethodPost, "/api/query", tt.body, token)
				if resp.Code != http.StatusBadRequest {
					t.Errorf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
				}
			})
		}
	})

	t.Run("unknown ticker fails the run", func(t *testing.T) {
		harness.Market().Unlist("NOPE")

		resp := harness.DoAuthRequest(http.MethodPost, "/api/query", `{"ticker":"NOPE","query":"outlook?"}`, token)
		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d: %s", resp.Code, resp.Body.String())
		}

		runs, err := harness.Repository().ListQueryRunsByUser(harness.Context(), userID(t, harness, "failures@example.com"), 10)
		if err != nil {
			t.Fatalf("ListQueryRunsByUser failed: %v", err)
		}
		if len(runs) != 1 || runs[0].Status != models.QueryRunStatusFailed {
			t.Fatalf("expected one failed run, got %+v", runs)
		}
		if !strings.Contains(runs[0].ErrorMessage, agents.ErrNoPriceData.Error()) {
			t.Errorf("expected a price data error, got %q", runs[0].ErrorMessage)
		}
	})

	t.Run("model outage", func(t *testing.T) {
		harness.MockServer().SetChatError(errors.New("upstream overloaded"))
		defer harness.MockServer().ClearErrors()

		resp := harness.DoAuthRequest(http.MethodPost, "/api/query", `{"ticker":"AAPL","query":"outlook?"}`, token)
		if resp.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d: %s", resp.Code, resp.Body.String())
		}
	})
}

func userID(t *testing.T, h *e2e.TestHarness, email string) uuid.UUID {
	t.Helper()
	user, err := h.Repository().GetUserByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	return user.ID
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
