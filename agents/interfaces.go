package agents

import (
	"stock-analyst/services"
)

// Type aliases for service interfaces - defined in services package
// These aliases allow agents to reference interfaces without importing concrete implementations
type LLMService = services.LLMService
type PriceHistorySource = services.PriceHistorySource
type QuoteSource = services.QuoteSource
type CompanyInfoSource = services.CompanyInfoSource
type NewsSource = services.NewsSource
type WebSearcher = services.WebSearcher
