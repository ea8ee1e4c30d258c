package models

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSentimentRecord_Check(t *testing.T) {
	tests := []struct {
		name    string
		rating  map[string][]string
		wantErr bool
	}{
		{"valid labels", map[string][]string{"A": {"POSITIVE", "http://a"}, "B": {"NEUTRAL", "http://b"}}, false},
		{"empty map", map[string][]string{}, false},
		{"lowercase label rejected", map[string][]string{"A": {"positive", "http://a"}}, true},
		{"missing url", map[string][]string{"A": {"NEGATIVE"}}, true},
		{"extra values", map[string][]string{"A": {"NEGATIVE", "http://a", "x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &SentimentRecord{NewsRating: tt.rating}
			err := r.Check()
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStructuredNarrative_FillMissing(t *testing.T) {
	s := &StructuredNarrative{
		PricePerformanceAnalysis: "Price is up 4%",
		TrendAnalysisAndMomentum: "   ",
		RecommendationAndRisk: RiskAssessment{
			Call: "BUY",
		},
	}

	s.FillMissing()

	if s.PricePerformanceAnalysis != "Price is up 4%" {
		t.Errorf("existing content was overwritten: %q", s.PricePerformanceAnalysis)
	}
	if s.TrendAnalysisAndMomentum != MissingSection {
		t.Errorf("blank section = %q, want placeholder", s.TrendAnalysisAndMomentum)
	}
	if s.RecommendationAndRisk.Call != "BUY" {
		t.Errorf("Call = %q, want BUY", s.RecommendationAndRisk.Call)
	}
	if s.RecommendationAndRisk.ConflictingSignals != MissingSection {
		t.Errorf("ConflictingSignals = %q, want placeholder", s.RecommendationAndRisk.ConflictingSignals)
	}
	if strings.Contains(s.Text(), "\n\n\n") {
		t.Error("Text() should not contain empty sections")
	}
}

func TestNarrativeRecord_Text(t *testing.T) {
	n := &NarrativeRecord{
		PriceSummary:             "p",
		TrendDetection:           "t",
		TechnicalIndicators:      "ti",
		FinancialMetrics:         "f",
		NewsSentiment:            "n",
		InvestmentRecommendation: Recommendation{Verdict: VerdictHold, Reasoning: "mixed signals"},
	}
	text := n.Text()
	if !strings.HasPrefix(text, "## Price Summary") {
		t.Errorf("unexpected prefix: %q", text)
	}
	if !strings.Contains(text, "Hold: mixed signals") {
		t.Errorf("verdict missing from %q", text)
	}
}

func TestNewTrendingEntry(t *testing.T) {
	tests := []struct {
		name          string
		open, current float64
		wantPoints    float64
		wantPct       float64
	}{
		{"gain", 100, 103.456, 3.46, 3.46},
		{"loss", 200, 190, -10, -5},
		{"flat", 50, 50, 0, 0},
		{"zero open", 0, 10, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewTrendingEntry(tt.open, tt.current)
			if e.PointsChange != tt.wantPoints {
				t.Errorf("PointsChange = %v, want %v", e.PointsChange, tt.wantPoints)
			}
			if e.PercentageChange != tt.wantPct {
				t.Errorf("PercentageChange = %v, want %v", e.PercentageChange, tt.wantPct)
			}
		})
	}
}

func TestBars_Accessors(t *testing.T) {
	bars := Bars{
		{Close: decimal.NewFromFloat(1.5), High: decimal.NewFromInt(2), Low: decimal.NewFromInt(1), Volume: 10},
		{Close: decimal.NewFromFloat(2.5), High: decimal.NewFromInt(3), Low: decimal.NewFromInt(2), Volume: 20},
		{Close: decimal.NewFromFloat(3.5), High: decimal.NewFromInt(4), Low: decimal.NewFromInt(3), Volume: 30},
	}

	if got := bars.Closes(); got[2] != 3.5 {
		t.Errorf("Closes()[2] = %v, want 3.5", got[2])
	}
	if got := bars.Volumes(); got[0] != 10 {
		t.Errorf("Volumes()[0] = %v, want 10", got[0])
	}
	if got := bars.Tail(2); len(got) != 2 || got[0].Volume != 20 {
		t.Errorf("Tail(2) = %+v", got)
	}
	if got := bars.Tail(10); len(got) != 3 {
		t.Errorf("Tail(10) len = %d, want 3", len(got))
	}
}

func TestCompanyProfile_BetaOr(t *testing.T) {
	var nilProfile *CompanyProfile
	if got := nilProfile.BetaOr(1.0); got != 1.0 {
		t.Errorf("nil profile BetaOr = %v, want 1.0", got)
	}
	beta := 1.3
	p := &CompanyProfile{Beta: &beta}
	if got := p.BetaOr(1.0); got != 1.3 {
		t.Errorf("BetaOr = %v, want 1.3", got)
	}
}
