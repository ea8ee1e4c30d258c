package main

import (
	"context"
	"fmt"
	"time"

	"stock-analyst/agents"
	"stock-analyst/charts"
	"stock-analyst/config"
	"stock-analyst/internal/app"
	"stock-analyst/internal/auth"
	"stock-analyst/observability"
	"stock-analyst/repository"
	"stock-analyst/services"
)

// components are the long-lived dependencies shared by every command
type components struct {
	cfg       *config.Config
	repo      *repository.Repository
	market    *services.MarketRouter
	yahoo     *services.YahooService
	workflow  *agents.AnalystWorkflow
	discovery *agents.TrendingDiscovery
}

// close releases the database pool, if any
func (c *components) close() {
	if c.repo != nil {
		c.repo.Close()
	}
}

// newLLM builds the configured model provider behind the request limiter
func newLLM(ctx context.Context, cfg *config.Config) (services.LLMService, error) {
	var (
		llm services.LLMService
		err error
	)
	switch cfg.LLM.Provider {
	case config.ProviderBedrock:
		llm, err = services.NewBedrockService(ctx, cfg)
	default:
		llm, err = services.NewOpenAIService(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s model: %w", cfg.LLM.Provider, err)
	}
	return services.NewRateLimitedLLM(llm, cfg.LLM.RequestsPerMinute), nil
}

// wire builds everything the workflow needs. A database is optional; the model is not.
func wire(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{cfg: cfg}

	if cfg.HasDatabase() {
		repo, err := repository.NewRepository(ctx, cfg.Database.URL, repository.WithMaxConns(cfg.Database.MaxConns))
		if err != nil {
			observability.Warn("failed to connect to database, continuing without persistence", "error", err)
		} else if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		} else {
			c.repo = repo
		}
	} else {
		observability.Warn("DATABASE_URL not set, accounts and query history disabled")
	}

	llm, err := newLLM(ctx, cfg)
	if err != nil {
		c.close()
		return nil, err
	}

	c.yahoo = services.NewYahooService(cfg)
	var us services.MarketDataSource
	if cfg.HasAlpaca() {
		us = services.NewAlpacaService(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret)
		observability.Info("using Alpaca market data for US equities")
	}
	c.market = services.NewMarketRouter(us, c.yahoo)

	if cfg.HasSerper() {
		search, err := services.NewSerperService(cfg)
		if err != nil {
			c.close()
			return nil, err
		}
		c.discovery = agents.NewTrendingDiscovery(llm, search, cfg.Workflow.SearchIterations)
	} else {
		observability.Warn("SERPER_API_KEY not set, trending discovery uses the sample ticker list")
	}

	news := services.NewFallbackNewsSource(newsChain(cfg, c.yahoo)...)
	newsCollector := agents.NewNewsSentimentCollector(llm, news, cfg.Workflow.SentimentRetries)
	summary := agents.NewStockSummaryCollector(c.market, c.yahoo)

	deps := agents.WorkflowDeps{
		Classifier: agents.NewKeywordClassifier(),
		News:       newsCollector,
		Summary:    summary,
		Targets:    agents.NewPriceTargetEstimator(llm, c.market, c.yahoo),
		Narrative:  agents.NewNarrativeGenerator(llm, newsCollector, summary, cfg.Workflow.MaxToolIterations),
		Structurer: agents.NewOutputStructurer(llm, cfg.Workflow.StructuringRetries),
		Discovery:  c.discovery,
		Quotes:     agents.NewTrendingQuotes(c.market, cfg.Workflow.TrendingLimit),
	}
	if c.repo != nil {
		deps.Repo = c.repo
	}

	workflow, err := agents.NewAnalystWorkflow(ctx, cfg.Workflow, deps)
	if err != nil {
		c.close()
		return nil, err
	}
	c.workflow = workflow
	return c, nil
}

func newsChain(cfg *config.Config, yahoo *services.YahooService) []services.NamedNewsSource {
	chain := []services.NamedNewsSource{{Name: "yahoo", Source: yahoo}}
	if cfg.HasNewsAPI() {
		chain = append(chain, services.NamedNewsSource{Name: "newsapi", Source: services.NewNewsAPIService(cfg.NewsAPI.APIKey)})
	}
	if cfg.RSS.FeedURLTemplate != "" {
		chain = append(chain, services.NamedNewsSource{Name: "rss", Source: services.NewRSSService(cfg.RSS.FeedURLTemplate)})
	}
	return chain
}

// newApp assembles the HTTP-facing application from wired components
func newApp(c *components) (*app.App, error) {
	tokens, err := auth.NewIssuer(c.cfg.Auth.TokenSecret, time.Duration(c.cfg.Auth.TokenTTLMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(c.cfg.Workflow.ChartCacheSeconds) * time.Second
	var cache charts.Cache
	var repo app.RepositoryInterface
	if c.repo != nil {
		cache = c.repo
		repo = c.repo
	}
	builder := charts.NewBuilder(c.market, c.yahoo, cache, ttl)

	return app.New(c.cfg, repo, c.workflow, builder, tokens), nil
}
