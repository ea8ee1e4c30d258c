package api

import (
	"context"
	"errors"
	"sync"

	"stock-analyst/agents"
	"stock-analyst/models"
	"stock-analyst/repository"

	"github.com/google/uuid"
)

type mockRepo struct {
	mu        sync.Mutex
	users     map[string]*models.User
	runs      []models.QueryRun
	runsLimit int
	healthErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: map[string]*models.User{}}
}

func (m *mockRepo) Close()                           {}
func (m *mockRepo) Health(ctx context.Context) error { return m.healthErr }

func (m *mockRepo) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[email]; ok {
		return user, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, user := range m.users {
		if user.ID == id {
			delete(m.users, email)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *mockRepo) ListQueryRunsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.QueryRun, error) {
	m.runsLimit = limit
	var out []models.QueryRun
	for _, run := range m.runs {
		if run.UserID != nil && *run.UserID == userID {
			out = append(out, run)
		}
	}
	return out, nil
}

// mockWorkflow answers every query with a fixed analysis
type mockWorkflow struct {
	err      error
	trending bool
	lastReq  agents.Request
}

func (m *mockWorkflow) Run(ctx context.Context, req agents.Request) (*agents.WorkflowState, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}

	state := agents.NewWorkflowState(req.Ticker, req.Query)
	if m.trending {
		state.Trending = map[string]models.TrendingEntry{"NVDA": {PointsChange: 6.1, PercentageChange: 5}}
		state.Answer("NVDA leads today's movers")
		return state, nil
	}

	state.Sentiment = &models.SentimentRecord{
		NewsRating:       map[string][]string{"Record quarter": {"POSITIVE", "https://news.example/1"}},
		OverallSummary:   "Upbeat coverage",
		OverallSentiment: models.SentimentPositive,
		SentimentScore:   72,
	}
	state.TargetPrice = "$210.00"
	state.StopLoss = "$180.50"
	state.Narrative = &models.NarrativeRecord{
		PriceSummary:             "Trading near highs",
		TrendDetection:           "Uptrend",
		TechnicalIndicators:      "RSI 61",
		FinancialMetrics:         "P/E 28",
		NewsSentiment:            "Positive",
		InvestmentRecommendation: models.Recommendation{Verdict: models.VerdictBuy, Reasoning: "Momentum"},
	}
	state.Answer(state.Narrative.Text())
	return state, nil
}

func (m *mockWorkflow) Health(ctx context.Context) map[string]bool {
	return map[string]bool{"news": true}
}

func (m *mockWorkflow) Mode() string { return "basic" }

type mockCharts struct {
	err error
}

func (m *mockCharts) Build(ctx context.Context, symbol string) (*models.ChartBundle, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.ChartBundle{
		Figures: map[string]models.Figure{
			"ema_analysis": {Title: symbol + " EMA", Series: []models.Series{{Name: "Close", X: []string{"2024-06-03"}, Y: []float64{190}}}},
		},
		AnalysisSummary: models.AnalysisSummary{Symbol: symbol, CurrentPrice: 190, ShortTermTrend: "Bullish"},
	}, nil
}

var errUpstream = errors.New("upstream exploded")
