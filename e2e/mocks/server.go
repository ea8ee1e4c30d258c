// Package mocks provides a mock upstream for end-to-end tests: an OpenAI-compatible
// chat endpoint, the Yahoo Finance JSON endpoints and the Serper search API.
package mocks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Stages reported by ChatCalls, keyed off each system prompt
const (
	StageNews       = "news"
	StageStopLoss   = "stop_loss"
	StageTarget     = "target"
	StageNarrative  = "narrative"
	StageToolAnswer = "tool_narrative"
	StageStructure  = "structuring"
	StageDiscovery  = "discovery"
)

// TrendingAnswer is the discovery model's final text
const TrendingAnswer = "Today's most active names are NVDA, TSLA and AMD."

// stagePrompts maps a distinctive system prompt fragment to its stage
var stagePrompts = []struct {
	fragment string
	stage    string
}{
	{"news sentiment analysis", StageNews},
	{"setting a stop-loss", StageStopLoss},
	{"short-term price target", StageTarget},
	{"writing an investment narrative", StageNarrative},
	{"answering an investor's question", StageToolAnswer},
	{"convert a stock analysis", StageStructure},
	{"stocks that are trending today", StageDiscovery},
}

var tickerArg = regexp.MustCompile(`"ticker":\s*"([^"]+)"`)

// MockServer provides mock implementations of the upstream APIs
type MockServer struct {
	server *httptest.Server
	mu     sync.RWMutex

	companies     map[string]Company
	headlines     []Headline
	searchResults []SearchResult
	stopLoss      float64
	targetPrice   float64

	// Error injection
	chatError  error
	yahooError error

	requestLog []RequestLog
	chatCalls  map[string]int
}

// NewMockServer creates and starts a new mock server
func NewMockServer() *MockServer {
	m := &MockServer{
		companies:  make(map[string]Company),
		requestLog: make([]RequestLog, 0),
		chatCalls:  make(map[string]int),
	}
	m.setDefaults()
	m.server = httptest.NewServer(http.HandlerFunc(m.handleRequest))
	return m
}

// URL returns the base URL of the mock server
func (m *MockServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server
func (m *MockServer) Close() {
	m.server.Close()
}

func (m *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{
		Method: r.Method,
		Path:   r.URL.Path,
		Body:   string(body),
	})
	m.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/v1/chat/completions":
		m.handleChat(w, body)
	case strings.HasPrefix(path, "/v10/finance/quoteSummary/"):
		m.handleQuoteSummary(w, strings.TrimPrefix(path, "/v10/finance/quoteSummary/"))
	case path == "/v1/finance/search":
		m.handleYahooSearch(w, r)
	case r.Method == http.MethodPost && path == "/search":
		m.handleSerper(w, r, body)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GetRequestLog returns all logged requests for assertions
func (m *MockServer) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// CountRequests returns how many logged requests hit a path starting with prefix
func (m *MockServer) CountRequests(prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requestLog {
		if strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

// ChatCalls returns how many chat completions a stage has requested
func (m *MockServer) ChatCalls(stage string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chatCalls[stage]
}

// ClearRequestLog clears the request log and the per-stage chat counters
func (m *MockServer) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = make([]RequestLog, 0)
	m.chatCalls = make(map[string]int)
}

// SetCompany configures the quoteSummary profile of a symbol
func (m *MockServer) SetCompany(symbol string, c Company) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[symbol] = c
}

// SetHeadlines replaces the news served for every symbol
func (m *MockServer) SetHeadlines(headlines []Headline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headlines = headlines
}

// SetTargets configures the stop-loss and target price the model answers with
func (m *MockServer) SetTargets(stopLoss, targetPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLoss = stopLoss
	m.targetPrice = targetPrice
}

// SetChatError makes every chat completion fail
func (m *MockServer) SetChatError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatError = err
}

// SetYahooError makes the Yahoo endpoints fail
func (m *MockServer) SetYahooError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.yahooError = err
}

// ClearErrors removes all error injections
func (m *MockServer) ClearErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatError = nil
	m.yahooError = nil
}

// Reset restores the default fixtures and clears errors and logs
func (m *MockServer) Reset() {
	m.mu.Lock()
	m.companies = make(map[string]Company)
	m.requestLog = make([]RequestLog, 0)
	m.chatCalls = make(map[string]int)
	m.chatError = nil
	m.yahooError = nil
	m.mu.Unlock()
	m.setDefaults()
}

func (m *MockServer) setDefaults() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.companies["AAPL"] = Company{
		LongName:      "Apple Inc.",
		Sector:        "Technology",
		Industry:      "Consumer Electronics",
		Country:       "United States",
		Beta:          1.24,
		ForwardPE:     28.5,
		PriceToBook:   45.2,
		DebtToEquity:  151.8,
		ProfitMargins: 0.253,
	}
	m.companies["TCS.NS"] = Company{
		LongName:      "Tata Consultancy Services Limited",
		Sector:        "Technology",
		Industry:      "Information Technology Services",
		Country:       "India",
		Beta:          0.52,
		ForwardPE:     29.1,
		PriceToBook:   14.3,
		ProfitMargins: 0.191,
	}

	m.headlines = []Headline{
		{Title: "Apple beats quarterly revenue estimates", Link: "https://news.example/apple-beats", Publisher: "Reuters", Type: "STORY", Summary: "Services revenue hit a record."},
		{Title: "iPhone demand steady in China", Link: "https://news.example/iphone-china", Publisher: "Bloomberg", Type: "STORY"},
		{Title: "Regulators open new app store probe", Link: "https://news.example/app-store-probe", Publisher: "FT", Type: "STORY"},
		{Title: "Watch: market open recap", Link: "https://news.example/video", Publisher: "Yahoo", Type: "VIDEO"},
	}

	m.searchResults = []SearchResult{
		{Title: "Nvidia leads chip rally", Link: "https://search.example/nvda", Snippet: "NVDA shares rose 4% in heavy trading.", Date: "1 hour ago"},
		{Title: "Tesla deliveries top forecasts", Link: "https://search.example/tsla", Snippet: "TSLA jumped after the delivery report."},
		{Title: "Most active stocks today", Link: "https://search.example/active", Snippet: "NVDA, TSLA and AMD top the volume list."},
	}

	m.stopLoss = 180.5
	m.targetPrice = 215.25
}

func (m *MockServer) handleChat(w http.ResponseWriter, body []byte) {
	m.mu.RLock()
	err := m.chatError
	m.mu.RUnlock()

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]string{"message": err.Error(), "type": "server_error"},
		})
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]string{"message": "invalid request body", "type": "invalid_request_error"},
		})
		return
	}

	var system, user string
	toolResults := 0
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			system = msg.text()
		case "user":
			if user == "" {
				user = msg.text()
			}
		case "tool":
			toolResults++
		}
	}

	stage := ""
	for _, p := range stagePrompts {
		if strings.Contains(system, p.fragment) {
			stage = p.stage
			break
		}
	}

	m.mu.Lock()
	m.chatCalls[stage]++
	m.mu.Unlock()

	if msg := checkRequestShape(stage, req); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]string{"message": msg, "type": "invalid_request_error"},
		})
		return
	}

	var msg responseMessage
	switch stage {
	case StageNews:
		msg = m.jsonAnswer(m.sentimentAnswer())
	case StageStopLoss:
		m.mu.RLock()
		msg = m.jsonAnswer(map[string]float64{"stop_loss": m.stopLoss})
		m.mu.RUnlock()
	case StageTarget:
		m.mu.RLock()
		msg = m.jsonAnswer(map[string]float64{"target_price": m.targetPrice})
		m.mu.RUnlock()
	case StageNarrative:
		msg = m.jsonAnswer(narrativeAnswer())
	case StageStructure:
		msg = m.jsonAnswer(structuredAnswer())
	case StageToolAnswer:
		if toolResults == 0 {
			ticker := "AAPL"
			if match := tickerArg.FindStringSubmatch(user); match != nil {
				ticker = match[1]
			}
			msg = toolCallMessage("get_stock_summary", fmt.Sprintf(`{"ticker":%q}`, ticker))
		} else {
			msg = responseMessage{Role: "assistant", Content: toolNarrativeAnswer}
		}
	case StageDiscovery:
		if toolResults == 0 {
			msg = toolCallMessage("web_search", `{"query":"most trending stocks today"}`)
		} else {
			msg = responseMessage{Role: "assistant", Content: TrendingAnswer}
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]string{"message": "unrecognized system prompt", "type": "invalid_request_error"},
		})
		return
	}

	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	writeJSON(w, http.StatusOK, chatCompletion{
		ID:      "chatcmpl-e2e",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{Index: 0, FinishReason: finish, Message: msg}},
		Usage:   chatUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	})
}

// checkRequestShape rejects structured stages outside JSON mode and tool stages without tools
func checkRequestShape(stage string, req chatRequest) string {
	switch stage {
	case StageToolAnswer, StageDiscovery:
		if len(req.Tools) == 0 {
			return "tool stage sent without tools"
		}
	case "":
		return ""
	default:
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			return "structured stage sent without json_object response format"
		}
	}
	return ""
}

func (m *MockServer) jsonAnswer(v any) responseMessage {
	data, _ := json.Marshal(v)
	return responseMessage{Role: "assistant", Content: string(data)}
}

func toolCallMessage(name, arguments string) responseMessage {
	return responseMessage{
		Role: "assistant",
		ToolCalls: []toolCall{{
			ID:       "call_" + name,
			Type:     "function",
			Function: toolFunction{Name: name, Arguments: arguments},
		}},
	}
}

// sentimentAnswer rates every story headline; non-stories are left out the way the collector filters them
func (m *MockServer) sentimentAnswer() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labels := []string{"POSITIVE", "POSITIVE", "NEGATIVE"}
	rating := make(map[string][]string)
	i := 0
	for _, h := range m.headlines {
		if !strings.EqualFold(h.Type, "STORY") {
			continue
		}
		rating[h.Title] = []string{labels[i%len(labels)], h.Link}
		i++
	}
	return map[string]any{
		"news_rating":          rating,
		"overall_news_summary": "Strong earnings offset by regulatory headlines.",
		"overall_sentiment":    "POSITIVE",
		"sentiment_score":      72,
	}
}

func narrativeAnswer() map[string]any {
	return map[string]any{
		"price_summary":        "The stock trades near its 52-week high after a steady climb.",
		"trend_detection":      "Upward trend over both the short and the long window.",
		"technical_indicators": "RSI is elevated but below overbought; MACD sits above its signal line.",
		"financial_metrics":    "Forward P/E of 28.5 with a 25% profit margin.",
		"news_sentiment":       "News flow is positive with a score of 72.",
		"investment_recommendation": map[string]string{
			"verdict":   "Buy",
			"reasoning": "Momentum and earnings support further upside.",
		},
	}
}

func structuredAnswer() map[string]any {
	return map[string]any{
		"price_performance_analysis":    "Shares are up over the last quarter.",
		"trend_analysis_and_momentum":   "Momentum is positive.",
		"technical_indicator_deep_dive": "RSI and MACD confirm the uptrend.",
		"financial_valuation_metrics":   "Valuation is rich but supported by margins.",
		"news_sentiment_integration":    "",
		"investment_recommendation_and_risk_assessment": map[string]string{
			"call":                "Buy",
			"justification":       "Earnings momentum.",
			"risk_reward_profile": "Favorable with a tight stop.",
			"entry_exit_criteria": "Enter on pullbacks, exit below the stop-loss.",
			"conflicting_signals": "Regulatory probe.",
		},
	}
}

const toolNarrativeAnswer = `Apple remains in an uptrend. RSI is firm and the MACD is positive.
Recent news is mostly positive. Recommendation: Buy, with a stop-loss below recent support.`

func (m *MockServer) handleQuoteSummary(w http.ResponseWriter, symbol string) {
	m.mu.RLock()
	err := m.yahooError
	company, ok := m.companies[symbol]
	m.mu.RUnlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"quoteSummary": map[string]any{
				"result": nil,
				"error": map[string]string{
					"code":        "Not Found",
					"description": "Quote not found for symbol: " + symbol,
				},
			},
		})
		return
	}

	value := func(v float64) *yahooValue {
		if v == 0 {
			return nil
		}
		return &yahooValue{Raw: v, Fmt: fmt.Sprintf("%.2f", v)}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"quoteSummary": map[string]any{
			"result": []map[string]any{{
				"price": map[string]string{"longName": company.LongName, "shortName": company.LongName},
				"summaryProfile": map[string]string{
					"sector":   company.Sector,
					"industry": company.Industry,
					"country":  company.Country,
				},
				"defaultKeyStatistics": map[string]any{
					"beta":        value(company.Beta),
					"forwardPE":   value(company.ForwardPE),
					"priceToBook": value(company.PriceToBook),
				},
				"summaryDetail": map[string]any{},
				"financialData": map[string]any{
					"debtToEquity":  value(company.DebtToEquity),
					"profitMargins": value(company.ProfitMargins),
				},
			}},
			"error": nil,
		},
	})
}

func (m *MockServer) handleYahooSearch(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	err := m.yahooError
	headlines := m.headlines
	m.mu.RUnlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	published := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC).Unix()
	news := make([]yahooNews, 0, len(headlines))
	for i, h := range headlines {
		news = append(news, yahooNews{
			UUID:                fmt.Sprintf("%s-%d", r.URL.Query().Get("q"), i),
			Title:               h.Title,
			Publisher:           h.Publisher,
			Link:                h.Link,
			ProviderPublishTime: published - int64(i*3600),
			Type:                h.Type,
			Summary:             h.Summary,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"news": news})
}

func (m *MockServer) handleSerper(w http.ResponseWriter, r *http.Request, body []byte) {
	if r.Header.Get("X-API-KEY") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized."})
		return
	}

	var req struct {
		Q string `json:"q"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Missing query."})
		return
	}

	m.mu.RLock()
	results := m.searchResults
	m.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"searchParameters": map[string]string{"q": req.Q, "type": "search"},
		"topStories":       results[:1],
		"organic":          results[1:],
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
