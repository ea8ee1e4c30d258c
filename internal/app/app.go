package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stock-analyst/agents"
	"stock-analyst/config"
	"stock-analyst/internal/auth"
	"stock-analyst/models"
	"stock-analyst/observability"
	"stock-analyst/repository"

	"github.com/google/uuid"
)

var (
	ErrQueueFull          = errors.New("query queue full, too many concurrent requests - try again later")
	ErrDatabaseNotReady   = errors.New("database not initialized")
	ErrWorkflowNotReady   = errors.New("workflow not initialized")
	ErrEmailRegistered    = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrNotAccountOwner    = errors.New("not authorized to delete this account")
	ErrMissingCredentials = errors.New("email and password are required")
)

// RepositoryInterface defines the repository operations needed by App
type RepositoryInterface interface {
	Close()
	Health(ctx context.Context) error
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListQueryRunsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.QueryRun, error)
}

// WorkflowInterface runs one analyst query
type WorkflowInterface interface {
	Run(ctx context.Context, req agents.Request) (*agents.WorkflowState, error)
	Health(ctx context.Context) map[string]bool
	Mode() string
}

// ChartBuilderInterface builds the chart bundle for a ticker
type ChartBuilderInterface interface {
	Build(ctx context.Context, symbol string) (*models.ChartBundle, error)
}

// App holds application dependencies using interfaces for testability
type App struct {
	cfg      *config.Config
	repo     RepositoryInterface
	workflow WorkflowInterface
	charts   ChartBuilderInterface
	tokens   *auth.Issuer
	querySem chan struct{}
}

// New creates the application facade. repo may be nil when no database is configured.
func New(cfg *config.Config, repo RepositoryInterface, workflow WorkflowInterface, charts ChartBuilderInterface, tokens *auth.Issuer) *App {
	return &App{
		cfg:      cfg,
		repo:     repo,
		workflow: workflow,
		charts:   charts,
		tokens:   tokens,
		querySem: make(chan struct{}, cfg.Workflow.ConcurrencyLimit),
	}
}

// Shutdown releases the database pool
func (a *App) Shutdown() {
	if a.repo != nil {
		a.repo.Close()
	}
}

// Repo returns the repository interface for API handlers
func (a *App) Repo() RepositoryInterface {
	return a.repo
}

// Tokens returns the bearer token issuer
func (a *App) Tokens() *auth.Issuer {
	return a.tokens
}

// Workflow returns the analyst workflow
func (a *App) Workflow() WorkflowInterface {
	return a.workflow
}

// QueryResult is a finished query: the workflow's state plus the charts for the ticker
type QueryResult struct {
	State  *agents.WorkflowState
	Charts *models.ChartBundle
}

// Query runs the workflow and then builds charts for the ticker.
// Excess concurrent queries are rejected with ErrQueueFull rather than queued.
func (a *App) Query(ctx context.Context, userID *uuid.UUID, ticker, query string) (*QueryResult, error) {
	if a.workflow == nil || a.charts == nil {
		return nil, ErrWorkflowNotReady
	}

	metrics := observability.GetMetrics()
	select {
	case a.querySem <- struct{}{}:
		metrics.QueryStarted()
		defer func() {
			<-a.querySem
			metrics.QueryFinished()
		}()
	default:
		metrics.RecordQueryRejected("queue_full")
		return nil, ErrQueueFull
	}

	state, err := a.workflow.Run(ctx, agents.Request{Ticker: ticker, Query: query, UserID: userID})
	if err != nil {
		return nil, err
	}

	bundle, err := a.charts.Build(ctx, ticker)
	if err != nil {
		return &QueryResult{State: state}, fmt.Errorf("failed to build charts: %w", err)
	}
	return &QueryResult{State: state, Charts: bundle}, nil
}

// Register creates an account with a bcrypt-hashed password
func (a *App) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	if a.repo == nil {
		return nil, ErrDatabaseNotReady
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
	}

	if err := a.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailRegistered
		}
		return nil, err
	}
	return user, nil
}

// Login checks credentials and returns a bearer token
func (a *App) Login(ctx context.Context, email, password string) (string, error) {
	user, err := a.authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}
	if a.tokens == nil {
		return "", errors.New("token issuer not initialized")
	}
	token, _, err := a.tokens.Issue(user.ID)
	return token, err
}

// DeleteAccount removes the caller's own account after re-checking the password
func (a *App) DeleteAccount(ctx context.Context, callerID uuid.UUID, email, password string) error {
	if a.repo == nil {
		return ErrDatabaseNotReady
	}

	user, err := a.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotAccountOwner
	}
	if err != nil {
		return err
	}
	if user.ID != callerID {
		return ErrNotAccountOwner
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return ErrIncorrectPassword
	}
	return a.repo.DeleteUser(ctx, user.ID)
}

// RecentRuns returns the caller's latest query runs
func (a *App) RecentRuns(ctx context.Context, userID uuid.UUID, limit int) ([]models.QueryRun, error) {
	if a.repo == nil {
		return nil, ErrDatabaseNotReady
	}
	return a.repo.ListQueryRunsByUser(ctx, userID, limit)
}

func (a *App) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	if a.repo == nil {
		return nil, ErrDatabaseNotReady
	}
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := a.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, ErrIncorrectPassword
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// QuerySemCapacity returns the capacity of the query semaphore (for testing)
func (a *App) QuerySemCapacity() int {
	return cap(a.querySem)
}
