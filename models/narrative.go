package models

import (
	"fmt"
	"strings"
)

// MissingSection is written into any structured field the source analysis did not cover
const MissingSection = "Data not available in source analysis"

// Verdict is the final investment call
type Verdict string

const (
	VerdictBuy  Verdict = "Buy"
	VerdictHold Verdict = "Hold"
	VerdictSell Verdict = "Sell"
)

// Recommendation is the verdict with its justification
type Recommendation struct {
	Verdict   Verdict `json:"verdict" validate:"required,oneof=Buy Hold Sell"`
	Reasoning string  `json:"reasoning" validate:"required"`
}

// NarrativeRecord is the analyst write-up produced from the accumulated workflow state
type NarrativeRecord struct {
	PriceSummary             string         `json:"price_summary" validate:"required"`
	TrendDetection           string         `json:"trend_detection" validate:"required"`
	TechnicalIndicators      string         `json:"technical_indicators" validate:"required"`
	FinancialMetrics         string         `json:"financial_metrics" validate:"required"`
	NewsSentiment            string         `json:"news_sentiment" validate:"required"`
	InvestmentRecommendation Recommendation `json:"investment_recommendation" validate:"required"`
}

// Text renders the narrative as the human-readable answer
func (n *NarrativeRecord) Text() string {
	var b strings.Builder
	section(&b, "Price Summary", n.PriceSummary)
	section(&b, "Trend Detection", n.TrendDetection)
	section(&b, "Technical Indicators", n.TechnicalIndicators)
	section(&b, "Financial Metrics", n.FinancialMetrics)
	section(&b, "News Sentiment", n.NewsSentiment)
	section(&b, "Investment Recommendation",
		fmt.Sprintf("%s: %s", n.InvestmentRecommendation.Verdict, n.InvestmentRecommendation.Reasoning))
	return strings.TrimSpace(b.String())
}

// RiskAssessment is the sixth structured section. Blank fields are filled by FillMissing.
type RiskAssessment struct {
	Call               string `json:"call"`
	Justification      string `json:"justification"`
	RiskRewardProfile  string `json:"risk_reward_profile"`
	EntryExitCriteria  string `json:"entry_exit_criteria"`
	ConflictingSignals string `json:"conflicting_signals"`
}

// StructuredNarrative is the fixed six-section form of an analysis
type StructuredNarrative struct {
	PricePerformanceAnalysis   string         `json:"price_performance_analysis"`
	TrendAnalysisAndMomentum   string         `json:"trend_analysis_and_momentum"`
	TechnicalIndicatorDeepDive string         `json:"technical_indicator_deep_dive"`
	FinancialValuationMetrics  string         `json:"financial_valuation_metrics"`
	NewsSentimentIntegration   string         `json:"news_sentiment_integration"`
	RecommendationAndRisk      RiskAssessment `json:"investment_recommendation_and_risk_assessment"`
}

// FillMissing replaces blank fields with MissingSection so no section is ever empty
func (s *StructuredNarrative) FillMissing() {
	for _, f := range []*string{
		&s.PricePerformanceAnalysis,
		&s.TrendAnalysisAndMomentum,
		&s.TechnicalIndicatorDeepDive,
		&s.FinancialValuationMetrics,
		&s.NewsSentimentIntegration,
		&s.RecommendationAndRisk.Call,
		&s.RecommendationAndRisk.Justification,
		&s.RecommendationAndRisk.RiskRewardProfile,
		&s.RecommendationAndRisk.EntryExitCriteria,
		&s.RecommendationAndRisk.ConflictingSignals,
	} {
		if strings.TrimSpace(*f) == "" {
			*f = MissingSection
		}
	}
}

// Text renders the structured narrative as the human-readable answer
func (s *StructuredNarrative) Text() string {
	var b strings.Builder
	section(&b, "Price Performance Analysis", s.PricePerformanceAnalysis)
	section(&b, "Trend Analysis And Momentum", s.TrendAnalysisAndMomentum)
	section(&b, "Technical Indicator Deep Dive", s.TechnicalIndicatorDeepDive)
	section(&b, "Financial Valuation Metrics", s.FinancialValuationMetrics)
	section(&b, "News Sentiment Integration", s.NewsSentimentIntegration)

	r := s.RecommendationAndRisk
	section(&b, "Investment Recommendation & Risk Assessment", fmt.Sprintf(
		"Call: %s\nJustification: %s\nRisk Reward Profile: %s\nEntry/Exit Criteria: %s\nConflicting Signals: %s",
		r.Call, r.Justification, r.RiskRewardProfile, r.EntryExitCriteria, r.ConflictingSignals))
	return strings.TrimSpace(b.String())
}

func section(b *strings.Builder, heading, body string) {
	b.WriteString("## ")
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n\n")
}
