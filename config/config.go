package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Model providers
	LLM     LLMConfig
	OpenAI  OpenAIConfig
	Bedrock BedrockConfig

	// External service configurations
	Yahoo   YahooConfig
	Serper  SerperConfig
	NewsAPI NewsAPIConfig
	RSS     RSSConfig
	Alpaca  AlpacaConfig

	// Workflow configuration
	Workflow WorkflowConfig

	// Authentication configuration
	Auth AuthConfig

	// HTTP configuration
	HTTP HTTPConfig

	// Logging configuration
	Log LogConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL               string
	MaxConns          int
	CacheSweepMinutes int // how often expired chart cache rows are deleted; 0 disables
}

// LLMConfig selects the model provider
type LLMConfig struct {
	Provider          string // openai or bedrock
	RequestsPerMinute int
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string // optional, for OpenAI-compatible endpoints
}

// BedrockConfig holds AWS Bedrock configuration
type BedrockConfig struct {
	Region           string
	ModelID          string
	MaxTokens        int
	AnthropicVersion string
}

// YahooConfig holds Yahoo Finance endpoint configuration
type YahooConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// SerperConfig holds Serper web search configuration
type SerperConfig struct {
	APIKey  string
	BaseURL string
}

// NewsAPIConfig holds NewsAPI configuration
type NewsAPIConfig struct {
	APIKey string
}

// RSSConfig holds the headline feeds used as the last news fallback
type RSSConfig struct {
	FeedURLTemplate string // %s is replaced by the ticker
}

// AlpacaConfig holds Alpaca market data configuration
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// WorkflowConfig holds orchestration configuration
type WorkflowConfig struct {
	Mode               string // basic or advanced
	TimeoutSeconds     int
	ConcurrencyLimit   int
	SentimentRetries   int
	StructuringRetries int
	MaxToolIterations  int
	SearchIterations   int
	TrendingLimit      int
	ChartCacheSeconds  int
}

// AuthConfig holds token configuration
type AuthConfig struct {
	TokenSecret     string
	TokenTTLMinutes int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr               string
	CORSAllowedOrigins string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Format string // json or text
	Level  string
}

const (
	ModeBasic    = "basic"
	ModeAdvanced = "advanced"

	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL:               os.Getenv("DATABASE_URL"),
			MaxConns:          getEnvInt("DATABASE_MAX_CONNS", 10),
			CacheSweepMinutes: getEnvCount("CACHE_SWEEP_MINUTES", 30),
		},
		LLM: LLMConfig{
			Provider:          strings.ToLower(getEnvString("LLM_PROVIDER", ProviderOpenAI)),
			RequestsPerMinute: getEnvInt("LLM_REQUESTS_PER_MINUTE", 120),
		},
		OpenAI: OpenAIConfig{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:     getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvInt("OPENAI_MAX_TOKENS", 4096),
			BaseURL:   os.Getenv("OPENAI_BASE_URL"),
		},
		Bedrock: BedrockConfig{
			Region:           os.Getenv("AWS_REGION"),
			ModelID:          os.Getenv("BEDROCK_MODEL_ID"),
			MaxTokens:        getEnvInt("BEDROCK_MAX_TOKENS", 4096),
			AnthropicVersion: getEnvString("BEDROCK_ANTHROPIC_VERSION", "bedrock-2023-05-31"),
		},
		Yahoo: YahooConfig{
			BaseURL:        getEnvString("YAHOO_BASE_URL", "https://query2.finance.yahoo.com"),
			TimeoutSeconds: getEnvInt("YAHOO_TIMEOUT_SECONDS", 30),
		},
		Serper: SerperConfig{
			APIKey:  os.Getenv("SERPER_API_KEY"),
			BaseURL: getEnvString("SERPER_BASE_URL", "https://google.serper.dev"),
		},
		NewsAPI: NewsAPIConfig{
			APIKey: os.Getenv("NEWS_API_KEY"),
		},
		RSS: RSSConfig{
			FeedURLTemplate: getEnvString("NEWS_RSS_URL_TEMPLATE", "https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US"),
		},
		Alpaca: AlpacaConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
			BaseURL:   getEnvString("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
		},
		Workflow: WorkflowConfig{
			Mode:               strings.ToLower(getEnvString("PIPELINE_MODE", ModeAdvanced)),
			TimeoutSeconds:     getEnvInt("WORKFLOW_TIMEOUT_SECONDS", 180),
			ConcurrencyLimit:   getEnvInt("QUERY_CONCURRENCY_LIMIT", 3),
			SentimentRetries:   getEnvInt("SENTIMENT_MAX_ATTEMPTS", 3),
			StructuringRetries: getEnvInt("STRUCTURING_MAX_ATTEMPTS", 3),
			MaxToolIterations:  getEnvInt("NARRATIVE_MAX_TOOL_ITERATIONS", 6),
			SearchIterations:   getEnvInt("TRENDING_SEARCH_ITERATIONS", 5),
			TrendingLimit:      getEnvInt("TRENDING_LIMIT", 5),
			ChartCacheSeconds:  getEnvInt("CHART_CACHE_SECONDS", 300),
		},
		Auth: AuthConfig{
			TokenSecret:     os.Getenv("AUTH_TOKEN_SECRET"),
			TokenTTLMinutes: getEnvInt("AUTH_TOKEN_TTL_MINUTES", 30),
		},
		HTTP: HTTPConfig{
			Addr:               getEnvString("HTTP_ADDR", ":8080"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
		},
		Log: LogConfig{
			Format: strings.ToLower(getEnvString("LOG_FORMAT", "text")),
			Level:  strings.ToLower(getEnvString("LOG_LEVEL", "info")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Workflow.Mode {
	case ModeBasic, ModeAdvanced:
	default:
		return fmt.Errorf("PIPELINE_MODE must be %q or %q, got %q", ModeBasic, ModeAdvanced, c.Workflow.Mode)
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderBedrock:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderBedrock, c.LLM.Provider)
	}

	if c.Workflow.TimeoutSeconds <= 0 {
		return fmt.Errorf("WORKFLOW_TIMEOUT_SECONDS must be positive, got %d", c.Workflow.TimeoutSeconds)
	}
	if c.Workflow.ConcurrencyLimit <= 0 {
		return fmt.Errorf("QUERY_CONCURRENCY_LIMIT must be positive, got %d", c.Workflow.ConcurrencyLimit)
	}
	if c.Workflow.SentimentRetries <= 0 || c.Workflow.StructuringRetries <= 0 {
		return fmt.Errorf("retry attempts must be positive (sentiment=%d, structuring=%d)",
			c.Workflow.SentimentRetries, c.Workflow.StructuringRetries)
	}
	if c.Workflow.MaxToolIterations <= 0 {
		return fmt.Errorf("NARRATIVE_MAX_TOOL_ITERATIONS must be positive, got %d", c.Workflow.MaxToolIterations)
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL_MINUTES must be positive, got %d", c.Auth.TokenTTLMinutes)
	}

	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasOpenAI returns true if OpenAI configuration is available
func (c *Config) HasOpenAI() bool {
	return c.OpenAI.APIKey != ""
}

// HasBedrock returns true if Bedrock configuration is available
func (c *Config) HasBedrock() bool {
	return c.Bedrock.Region != "" && c.Bedrock.ModelID != ""
}

// HasSerper returns true if web search is configured
func (c *Config) HasSerper() bool {
	return c.Serper.APIKey != ""
}

// HasNewsAPI returns true if NewsAPI configuration is available
func (c *Config) HasNewsAPI() bool {
	return c.NewsAPI.APIKey != ""
}

// HasAlpaca returns true if Alpaca configuration is available
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// IsAdvanced reports whether the tool-loop pipeline is selected
func (c *Config) IsAdvanced() bool {
	return c.Workflow.Mode == ModeAdvanced
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// getEnvCount is getEnvInt for settings where 0 means "off"
func getEnvCount(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxConns: 4,
		},
		LLM: LLMConfig{
			Provider:          ProviderOpenAI,
			RequestsPerMinute: 600,
		},
		OpenAI: OpenAIConfig{
			Model:     "gpt-4o-mini",
			MaxTokens: 4096,
		},
		Bedrock: BedrockConfig{
			MaxTokens:        4096,
			AnthropicVersion: "bedrock-2023-05-31",
		},
		Yahoo: YahooConfig{
			BaseURL:        "https://query2.finance.yahoo.com",
			TimeoutSeconds: 30,
		},
		Serper: SerperConfig{
			BaseURL: "https://google.serper.dev",
		},
		RSS: RSSConfig{
			FeedURLTemplate: "https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US",
		},
		Alpaca: AlpacaConfig{
			BaseURL: "https://paper-api.alpaca.markets",
		},
		Workflow: WorkflowConfig{
			Mode:               ModeAdvanced,
			TimeoutSeconds:     180,
			ConcurrencyLimit:   3,
			SentimentRetries:   3,
			StructuringRetries: 3,
			MaxToolIterations:  6,
			SearchIterations:   5,
			TrendingLimit:      5,
			ChartCacheSeconds:  300,
		},
		Auth: AuthConfig{
			TokenSecret:     "test-secret",
			TokenTTLMinutes: 30,
		},
		HTTP: HTTPConfig{
			Addr:               ":8080",
			CORSAllowedOrigins: "*",
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}
