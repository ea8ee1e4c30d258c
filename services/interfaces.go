package services

import (
	"context"
	"time"

	"stock-analyst/models"
)

// Chat roles understood by every LLMService implementation
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one turn of a tool-enabled conversation.
// Assistant turns may carry ToolCalls; tool turns answer one call by ToolCallID.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolDefinition describes a function the model may request.
// Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a model request to run a tool with JSON-encoded arguments
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatResponse is the model's reply to a tool-enabled conversation
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model asked for tools instead of finishing
func (r *ChatResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// LLMService is the language-model contract shared by the OpenAI and Bedrock backends
type LLMService interface {
	InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// InvokeStructured decodes the model's JSON answer into result and validates it.
	// Malformed or invalid output wraps ErrSchemaValidation; call failures wrap ErrTransientCall.
	InvokeStructured(ctx context.Context, systemPrompt, userPrompt string, result any) error
	ChatWithTools(ctx context.Context, systemPrompt string, messages []ChatMessage, tools []ToolDefinition) (*ChatResponse, error)
}

// PriceHistorySource provides daily and intraday OHLCV bars, oldest first
type PriceHistorySource interface {
	GetHistory(ctx context.Context, symbol string, start, end time.Time) (models.Bars, error)
	GetIntraday(ctx context.Context, symbol string) (models.Bars, error)
}

// QuoteSource provides the current session quote
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// CompanyInfoSource provides company profile and valuation ratios
type CompanyInfoSource interface {
	GetCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
}

// NewsSource provides recent articles about a symbol
type NewsSource interface {
	GetNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error)
}

// WebSearcher runs a general web search and returns a text digest of the results
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Compile-time interface verification
var _ LLMService = (*OpenAIService)(nil)
var _ LLMService = (*BedrockService)(nil)
var _ LLMService = (*RateLimitedLLM)(nil)
var _ PriceHistorySource = (*YahooService)(nil)
var _ PriceHistorySource = (*AlpacaService)(nil)
var _ QuoteSource = (*YahooService)(nil)
var _ QuoteSource = (*AlpacaService)(nil)
var _ CompanyInfoSource = (*YahooService)(nil)
var _ NewsSource = (*YahooService)(nil)
var _ NewsSource = (*NewsAPIService)(nil)
var _ NewsSource = (*RSSService)(nil)
var _ NewsSource = (*FallbackNewsSource)(nil)
var _ WebSearcher = (*SerperService)(nil)
var _ MarketDataSource = (*MarketRouter)(nil)
