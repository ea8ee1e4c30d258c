package e2e

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stock-analyst/agents"
	"stock-analyst/charts"
	"stock-analyst/config"
	"stock-analyst/e2e/mocks"
	"stock-analyst/internal/api"
	"stock-analyst/internal/app"
	"stock-analyst/internal/auth"
	"stock-analyst/repository"
	"stock-analyst/services"
)

// Stack is the API wired the way the server wires it, with the model, Yahoo and Serper
// pointed at a mock upstream and prices served by a FixtureMarket
type Stack struct {
	Mock   *mocks.MockServer
	Market *FixtureMarket
	Config *config.Config
	Repo   *repository.Repository
	App    *app.App
	Router http.Handler
}

// NewStack starts the mock upstream, migrates the database at databaseURL and builds the API
func NewStack(ctx context.Context, mode, databaseURL string) (*Stack, error) {
	services.SetGlobalRegistry(services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig))

	s := &Stack{
		Mock:   mocks.NewMockServer(),
		Market: NewFixtureMarket(FixedNow),
	}
	s.Config = stackConfig(s.Mock.URL(), mode, databaseURL)

	repo, err := repository.NewRepository(ctx, databaseURL)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	s.Repo = repo
	if err := repo.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	workflow, err := s.buildWorkflow(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	tokens, err := auth.NewIssuer(s.Config.Auth.TokenSecret, time.Duration(s.Config.Auth.TokenTTLMinutes)*time.Minute)
	if err != nil {
		s.Close()
		return nil, err
	}
	builder := charts.NewBuilder(s.Market, services.NewYahooService(s.Config), repo,
		time.Duration(s.Config.Workflow.ChartCacheSeconds)*time.Second).
		WithClock(fixedClock)

	s.App = app.New(s.Config, repo, workflow, builder, tokens)
	s.Router = api.NewRouter(api.NewHandler(s.App, s.Config), s.Config)
	return s, nil
}

func fixedClock() time.Time { return FixedNow }

func (s *Stack) buildWorkflow(ctx context.Context) (*agents.AnalystWorkflow, error) {
	cfg := s.Config

	openai, err := services.NewOpenAIService(cfg)
	if err != nil {
		return nil, err
	}
	llm := services.NewRateLimitedLLM(openai, cfg.LLM.RequestsPerMinute)

	search, err := services.NewSerperService(cfg)
	if err != nil {
		return nil, err
	}

	yahoo := services.NewYahooService(cfg)
	news := services.NewFallbackNewsSource(services.NamedNewsSource{Name: "yahoo", Source: yahoo})
	newsCollector := agents.NewNewsSentimentCollector(llm, news, cfg.Workflow.SentimentRetries)
	summary := agents.NewStockSummaryCollector(s.Market, yahoo)

	return agents.NewAnalystWorkflow(ctx, cfg.Workflow, agents.WorkflowDeps{
		Classifier: agents.NewKeywordClassifier(),
		News:       newsCollector,
		Summary:    summary,
		Targets:    agents.NewPriceTargetEstimator(llm, s.Market, yahoo).WithClock(fixedClock),
		Narrative:  agents.NewNarrativeGenerator(llm, newsCollector, summary, cfg.Workflow.MaxToolIterations),
		Structurer: agents.NewOutputStructurer(llm, cfg.Workflow.StructuringRetries),
		Discovery:  agents.NewTrendingDiscovery(llm, search, cfg.Workflow.SearchIterations),
		Quotes:     agents.NewTrendingQuotes(s.Market, cfg.Workflow.TrendingLimit),
		Repo:       s.Repo,
	})
}

func stackConfig(mockURL, mode, databaseURL string) *config.Config {
	cfg := config.NewTestConfig()
	cfg.Database.URL = databaseURL
	cfg.OpenAI.APIKey = "e2e-key"
	cfg.OpenAI.BaseURL = mockURL + "/v1"
	cfg.Yahoo.BaseURL = mockURL
	cfg.Serper.APIKey = "e2e-key"
	cfg.Serper.BaseURL = mockURL
	cfg.Workflow.Mode = mode
	cfg.Workflow.SentimentRetries = 1
	cfg.Workflow.StructuringRetries = 1
	return cfg
}

// CleanData deletes every user, query run and cache row
func (s *Stack) CleanData(ctx context.Context) error {
	// query_runs cascade from users; anonymous runs are removed explicitly
	for _, q := range []string{
		"DELETE FROM query_runs",
		"DELETE FROM users",
		"DELETE FROM market_data_cache",
	} {
		if _, err := s.Repo.Pool().Exec(ctx, q); err != nil {
			return fmt.Errorf("cleanup %q failed: %w", q, err)
		}
	}
	return nil
}

// Close releases the database pool and stops the mock upstream
func (s *Stack) Close() {
	if s.App != nil {
		s.App.Shutdown()
	} else if s.Repo != nil {
		s.Repo.Close()
	}
	if s.Mock != nil {
		s.Mock.Close()
	}
}
