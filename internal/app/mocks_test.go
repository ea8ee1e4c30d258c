package app

import (
	"context"
	"sync"

	"stock-analyst/agents"
	"stock-analyst/models"
	"stock-analyst/repository"

	"github.com/google/uuid"
)

type mockRepo struct {
	mu      sync.Mutex
	users   map[string]*models.User
	runs    map[uuid.UUID][]models.QueryRun
	closed  bool
	deleted []uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: map[string]*models.User{}, runs: map[uuid.UUID][]models.QueryRun{}}
}

func (m *mockRepo) Close()                           { m.closed = true }
func (m *mockRepo) Health(ctx context.Context) error { return nil }

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
	user, ok := m.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (m *mockRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, user := range m.users {
		if user.ID == id {
			delete(m.users, email)
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *mockRepo) ListQueryRunsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.QueryRun, error) {
	return m.runs[userID], nil
}

type mockWorkflow struct {
	run      func(ctx context.Context, req agents.Request) (*agents.WorkflowState, error)
	requests []agents.Request
}

func (m *mockWorkflow) Run(ctx context.Context, req agents.Request) (*agents.WorkflowState, error) {
	m.requests = append(m.requests, req)
	if m.run != nil {
		return m.run(ctx, req)
	}
	state := agents.NewWorkflowState(req.Ticker, req.Query)
	state.Answer("Buy")
	return state, nil
}

func (m *mockWorkflow) Health(ctx context.Context) map[string]bool {
	return map[string]bool{"news": true, "summary": true}
}

func (m *mockWorkflow) Mode() string { return "basic" }

type mockCharts struct {
	err error
}

func (m *mockCharts) Build(ctx context.Context, symbol string) (*models.ChartBundle, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.ChartBundle{AnalysisSummary: models.AnalysisSummary{Symbol: symbol}}, nil
}
