package agents

import (
	"context"
	"errors"
	"sync"
	"time"

	"stock-analyst/models"
	"stock-analyst/services"

	"github.com/shopspring/decimal"
)

// mockLLM scripts every LLMService method. Unset functions fail the call.
type mockLLM struct {
	mu sync.Mutex

	structured func(systemPrompt, userPrompt string, result any) error
	chat       func(call int, messages []services.ChatMessage, tools []services.ToolDefinition) (*services.ChatResponse, error)

	structuredCalls int
	chatCalls       int
	chatHistory     [][]services.ChatMessage
}

func (m *mockLLM) InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", errors.New("not scripted")
}

func (m *mockLLM) InvokeStructured(ctx context.Context, systemPrompt, userPrompt string, result any) error {
	m.mu.Lock()
	m.structuredCalls++
	m.mu.Unlock()
	if m.structured == nil {
		return errors.New("not scripted")
	}
	return m.structured(systemPrompt, userPrompt, result)
}

func (m *mockLLM) ChatWithTools(ctx context.Context, systemPrompt string, messages []services.ChatMessage, tools []services.ToolDefinition) (*services.ChatResponse, error) {
	m.mu.Lock()
	m.chatCalls++
	call := m.chatCalls
	m.chatHistory = append(m.chatHistory, append([]services.ChatMessage(nil), messages...))
	m.mu.Unlock()
	if m.chat == nil {
		return nil, errors.New("not scripted")
	}
	return m.chat(call, messages, tools)
}

func (m *mockLLM) calls() (structured, chat int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.structuredCalls, m.chatCalls
}

const (
	sentimentJSON = `{"news_rating":{"Record quarter":["POSITIVE","https://news.example/1"]},` +
		`"overall_news_summary":"Strong results","overall_sentiment":"POSITIVE","sentiment_score":72}`
	narrativeJSON = `{"price_summary":"p","trend_detection":"t","technical_indicators":"ti","financial_metrics":"f",` +
		`"news_sentiment":"n","investment_recommendation":{"verdict":"Buy","reasoning":"momentum and news"}}`
	structuredJSON = `{"price_performance_analysis":"up 4%","trend_analysis_and_momentum":"bullish",` +
		`"technical_indicator_deep_dive":"","financial_valuation_metrics":"fair",` +
		`"news_sentiment_integration":"positive","investment_recommendation_and_risk_assessment":` +
		`{"call":"BUY","justification":"j","risk_reward_profile":"r","entry_exit_criteria":"e"}}`
)

// answerByType fills each structured result with a valid canned answer, decoded and validated
// the same way the real services do.
func answerByType(systemPrompt, userPrompt string, result any) error {
	switch result.(type) {
	case *models.SentimentRecord:
		return services.DecodeStructured(sentimentJSON, result)
	case *stopLossAnswer:
		return services.DecodeStructured(`{"stop_loss": 95.5}`, result)
	case *targetAnswer:
		return services.DecodeStructured(`{"target_price": 120.25}`, result)
	case *models.NarrativeRecord:
		return services.DecodeStructured(narrativeJSON, result)
	case *models.StructuredNarrative:
		return services.DecodeStructured(structuredJSON, result)
	}
	return errors.New("unexpected result type")
}

// finalAnswer is a chat script that answers immediately
func finalAnswer(text string) func(int, []services.ChatMessage, []services.ToolDefinition) (*services.ChatResponse, error) {
	return func(int, []services.ChatMessage, []services.ToolDefinition) (*services.ChatResponse, error) {
		return &services.ChatResponse{Content: text}, nil
	}
}

func newHappyLLM() *mockLLM {
	return &mockLLM{structured: answerByType, chat: finalAnswer("Buy. The stock trends higher on strong news.")}
}

type mockNewsSource struct {
	mu        sync.Mutex
	articles  []models.NewsArticle
	err       error
	callCount int
}

func (m *mockNewsSource) GetNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.articles, nil
}

func storyArticles() []models.NewsArticle {
	return []models.NewsArticle{
		{Title: "Record quarter", Summary: "Revenue up", URL: "https://news.example/1", ContentType: models.ContentTypeStory,
			PublishedAt: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)},
		{Title: "Earnings call replay", URL: "https://news.example/2", ContentType: "VIDEO"},
	}
}

type mockPriceSource struct {
	mu        sync.Mutex
	bars      models.Bars
	intraday  models.Bars
	err       error
	callCount int
}

func (m *mockPriceSource) GetHistory(ctx context.Context, symbol string, start, end time.Time) (models.Bars, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.bars, nil
}

func (m *mockPriceSource) GetIntraday(ctx context.Context, symbol string) (models.Bars, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.intraday, nil
}

type mockCompanySource struct {
	profile *models.CompanyProfile
	err     error
}

func (m *mockCompanySource) GetCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.profile, nil
}

func ptr(v float64) *float64 { return &v }

func testProfile() *models.CompanyProfile {
	return &models.CompanyProfile{
		Symbol:        "TCS.NS",
		LongName:      "Tata Consultancy Services Limited",
		Sector:        "Technology",
		Beta:          ptr(0.6),
		ForwardPE:     ptr(28.4),
		PriceToBook:   ptr(14.2),
		DebtToEquity:  ptr(9.1),
		ProfitMargins: ptr(0.19),
	}
}

type mockQuoteSource struct {
	quotes map[string]*models.Quote
}

func (m *mockQuoteSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	q, ok := m.quotes[symbol]
	if !ok {
		return nil, errors.New("quote not found")
	}
	return q, nil
}

func quote(open, price float64) *models.Quote {
	return &models.Quote{Open: decimal.NewFromFloat(open), Price: decimal.NewFromFloat(price)}
}

type mockSearcher struct {
	result  string
	err     error
	queries []string
}

func (m *mockSearcher) Search(ctx context.Context, query string) (string, error) {
	m.queries = append(m.queries, query)
	return m.result, m.err
}

type mockWorkflowRepo struct {
	mu      sync.Mutex
	created []*models.QueryRun
	updated []*models.QueryRun
}

func (m *mockWorkflowRepo) CreateQueryRun(ctx context.Context, run *models.QueryRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, run)
	return nil
}

func (m *mockWorkflowRepo) UpdateQueryRun(ctx context.Context, run *models.QueryRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, run)
	return nil
}

// dailyBars builds n consecutive daily bars ending the day before end, closes moving by step
func dailyBars(n int, first, step float64, end time.Time) models.Bars {
	bars := make(models.Bars, n)
	start := end.AddDate(0, 0, -n)
	for i := range bars {
		c := first + step*float64(i)
		bars[i] = models.Bar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      decimal.NewFromFloat(c - 0.5),
			High:      decimal.NewFromFloat(c + 1),
			Low:       decimal.NewFromFloat(c - 1),
			Close:     decimal.NewFromFloat(c),
			Volume:    int64(1000 + 10*i),
		}
	}
	return bars
}

// marketOpenUS is a Wednesday at 10:00 New York time
var marketOpenUS = time.Date(2024, 6, 12, 14, 0, 0, 0, time.UTC)

// marketOpenIN is a Wednesday at 11:00 Kolkata time
var marketOpenIN = time.Date(2024, 6, 12, 5, 30, 0, 0, time.UTC)

// marketClosed is a Saturday
var marketClosed = time.Date(2024, 6, 15, 15, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
