package agents

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"stock-analyst/config"
	"stock-analyst/models"
	"stock-analyst/services"
)

type workflowFixture struct {
	llm    *mockLLM
	news   *mockNewsSource
	prices *mockPriceSource
	repo   *mockWorkflowRepo
	deps   WorkflowDeps
}

func newWorkflowFixture() *workflowFixture {
	f := &workflowFixture{
		llm:    newHappyLLM(),
		news:   &mockNewsSource{articles: storyArticles()},
		prices: &mockPriceSource{bars: dailyBars(300, 3800, 0.2, marketOpenIN)},
		repo:   &mockWorkflowRepo{},
	}
	company := &mockCompanySource{profile: testProfile()}

	news := NewNewsSentimentCollector(f.llm, f.news, 3)
	summary := NewStockSummaryCollector(f.prices, company)
	summary.now = fixedClock(marketOpenIN)

	f.deps = WorkflowDeps{
		News:       news,
		Summary:    summary,
		Targets:    NewPriceTargetEstimator(f.llm, f.prices, company).WithClock(fixedClock(marketOpenIN)),
		Narrative:  NewNarrativeGenerator(f.llm, news, summary, 6),
		Structurer: NewOutputStructurer(f.llm, 3),
		Quotes: NewTrendingQuotes(&mockQuoteSource{quotes: map[string]*models.Quote{
			"AAPL":  quote(100, 101),
			"RS":    quote(50, 49),
			"MSFT":  quote(400, 404),
			"GOOGL": quote(170, 170),
			"TSLA":  quote(180, 189),
			"NVDA":  quote(120, 126),
		}}, 5),
		Repo: f.repo,
	}
	return f
}

func workflowConfig(mode string) config.WorkflowConfig {
	return config.WorkflowConfig{Mode: mode, TimeoutSeconds: 30}
}

func newTestWorkflow(t *testing.T, mode string, deps WorkflowDeps) *AnalystWorkflow {
	t.Helper()
	w, err := NewAnalystWorkflow(context.Background(), workflowConfig(mode), deps)
	if err != nil {
		t.Fatalf("failed to build workflow: %v", err)
	}
	return w
}

func TestAnalystWorkflow_Analyze(t *testing.T) {
	tests := []struct {
		mode       string
		wantWrites []string
	}{
		{config.ModeBasic, []string{FieldSentiment, FieldSnapshot, FieldPriceTargets, FieldNarrative}},
		{config.ModeAdvanced, []string{FieldSentiment, FieldSnapshot, FieldPriceTargets, FieldNarrative, FieldStructured}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			f := newWorkflowFixture()
			w := newTestWorkflow(t, tt.mode, f.deps)

			state, err := w.Run(context.Background(), Request{Ticker: "tcs.ns", Query: "Should I buy this stock?"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if state.Ticker != "TCS.NS" {
				t.Errorf("Ticker = %q, want upper-cased", state.Ticker)
			}
			if state.Intent != IntentAnalyze {
				t.Errorf("Intent = %v, want %v", state.Intent, IntentAnalyze)
			}
			if !reflect.DeepEqual(state.Writes, tt.wantWrites) {
				t.Errorf("Writes = %v, want %v", state.Writes, tt.wantWrites)
			}
			if state.Sentiment == nil || state.Sentiment.SentimentScore != 72 {
				t.Errorf("Sentiment = %+v", state.Sentiment)
			}
			if state.Snapshot == nil {
				t.Fatal("Snapshot not written")
			}
			if state.StopLoss != "₹95.50" || state.TargetPrice != "₹120.25" {
				t.Errorf("targets = %s / %s", state.StopLoss, state.TargetPrice)
			}
			if state.Trending != nil {
				t.Error("trending list must stay empty on the analysis branch")
			}
			if len(state.Conversation) < 2 || state.Conversation[len(state.Conversation)-1].Role != services.RoleAssistant {
				t.Errorf("last turn should be the assistant answer: %+v", state.Conversation)
			}
		})
	}
}

func TestAnalystWorkflow_AdvancedAnswerIsStructured(t *testing.T) {
	f := newWorkflowFixture()
	w := newTestWorkflow(t, config.ModeAdvanced, f.deps)

	state, err := w.Run(context.Background(), Request{Ticker: "TCS.NS", Query: "Should I buy this stock?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.NarrativeText != "Buy. The stock trends higher on strong news." {
		t.Errorf("NarrativeText = %q", state.NarrativeText)
	}
	if state.Structured == nil || state.Structured.TechnicalIndicatorDeepDive != models.MissingSection {
		t.Errorf("Structured = %+v", state.Structured)
	}
	if state.LastTurn() != state.Structured.Text() {
		t.Error("final answer should be the structured text")
	}
}

func TestAnalystWorkflow_Trending(t *testing.T) {
	for _, mode := range []string{config.ModeBasic, config.ModeAdvanced} {
		t.Run(mode, func(t *testing.T) {
			f := newWorkflowFixture()
			w := newTestWorkflow(t, mode, f.deps)

			state, err := w.Run(context.Background(), Request{Ticker: "AAPL", Query: "what stocks are worth buying today"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if state.Intent != IntentTrending {
				t.Errorf("Intent = %v, want %v", state.Intent, IntentTrending)
			}
			if len(state.Trending) == 0 || len(state.Trending) > 5 {
				t.Errorf("expected 1..5 trending entries, got %d", len(state.Trending))
			}
			if state.Sentiment != nil || state.Snapshot != nil || state.Narrative != nil || state.NarrativeText != "" {
				t.Error("analysis fields must stay empty on the trending branch")
			}
			if !reflect.DeepEqual(state.Writes, []string{FieldTrending}) {
				t.Errorf("Writes = %v", state.Writes)
			}
			if !strings.HasPrefix(state.LastTurn(), "The trending stocks are") {
				t.Errorf("answer = %q", state.LastTurn())
			}
			if f.news.callCount != 0 {
				t.Error("news must not be fetched for a trending query")
			}
		})
	}
}

func TestAnalystWorkflow_AdvancedTrendingUsesDiscovery(t *testing.T) {
	f := newWorkflowFixture()
	f.llm.chat = finalAnswer("Today: NVDA and TSLA lead")
	f.deps.Discovery = NewTrendingDiscovery(f.llm, &mockSearcher{}, 5)
	w := newTestWorkflow(t, config.ModeAdvanced, f.deps)

	state, err := w.Run(context.Background(), Request{Ticker: "AAPL", Query: "show me trending stocks"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.Trending) != 2 {
		t.Fatalf("expected the two discovered tickers, got %v", state.Trending)
	}
	if got := state.Trending["NVDA"]; got.PercentageChange != 5 {
		t.Errorf("NVDA = %+v", got)
	}
}

func TestAnalystWorkflow_StageFailure(t *testing.T) {
	f := newWorkflowFixture()
	f.news.articles = nil
	w := newTestWorkflow(t, config.ModeBasic, f.deps)

	state, err := w.Run(context.Background(), Request{Ticker: "TCS.NS", Query: "Should I buy this stock?"})
	if !errors.Is(err, ErrNoNewsFound) {
		t.Fatalf("expected ErrNoNewsFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "news stage failed") {
		t.Errorf("error should name the stage: %v", err)
	}
	if len(state.Writes) != 0 {
		t.Errorf("no field may be written after the failing stage, got %v", state.Writes)
	}
	if f.prices.callCount != 0 {
		t.Error("later stages must not run")
	}
	if _, chat := f.llm.calls(); chat != 0 {
		t.Error("no narrative should be generated")
	}
}

func TestAnalystWorkflow_StructuringFailure(t *testing.T) {
	f := newWorkflowFixture()
	f.llm.structured = func(sys, user string, result any) error {
		if _, ok := result.(*models.StructuredNarrative); ok {
			return services.DecodeStructured("{", result)
		}
		return answerByType(sys, user, result)
	}
	w := newTestWorkflow(t, config.ModeAdvanced, f.deps)

	state, err := w.Run(context.Background(), Request{Ticker: "TCS.NS", Query: "Should I buy this stock?"})
	if !errors.Is(err, ErrStructuringFailed) {
		t.Fatalf("expected ErrStructuringFailed, got %v", err)
	}
	if state.Written(FieldStructured) {
		t.Error("structured narrative must not be written")
	}
	if !state.Written(FieldNarrative) {
		t.Error("narrative should have been written before structuring")
	}
}

func TestAnalystWorkflow_RecordsRuns(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		f := newWorkflowFixture()
		w := newTestWorkflow(t, config.ModeBasic, f.deps)
		if _, err := w.Run(context.Background(), Request{Ticker: "TCS.NS", Query: "Should I buy this stock?"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(f.repo.created) != 1 || len(f.repo.updated) != 1 {
			t.Fatalf("created %d, updated %d runs", len(f.repo.created), len(f.repo.updated))
		}
		run := f.repo.updated[0]
		if run.Status != models.QueryRunStatusCompleted || run.Intent != string(IntentAnalyze) {
			t.Errorf("run = %+v", run)
		}
		if run.Mode != config.ModeBasic || len(run.Stages) != 4 {
			t.Errorf("run mode %q stages %v", run.Mode, run.Stages)
		}
	})

	t.Run("failed", func(t *testing.T) {
		f := newWorkflowFixture()
		f.news.articles = nil
		w := newTestWorkflow(t, config.ModeBasic, f.deps)
		_, _ = w.Run(context.Background(), Request{Ticker: "TCS.NS", Query: "Should I buy this stock?"})

		if len(f.repo.updated) != 1 {
			t.Fatalf("expected one updated run, got %d", len(f.repo.updated))
		}
		run := f.repo.updated[0]
		if run.Status != models.QueryRunStatusFailed || !strings.Contains(run.ErrorMessage, "no news") {
			t.Errorf("run = %+v", run)
		}
	})
}

func TestNewAnalystWorkflow_Validation(t *testing.T) {
	f := newWorkflowFixture()

	missing := f.deps
	missing.News = nil
	if _, err := NewAnalystWorkflow(context.Background(), workflowConfig(config.ModeBasic), missing); err == nil {
		t.Error("expected error without a news stage")
	}

	noStructurer := f.deps
	noStructurer.Structurer = nil
	if _, err := NewAnalystWorkflow(context.Background(), workflowConfig(config.ModeAdvanced), noStructurer); err == nil {
		t.Error("expected error for advanced mode without a structurer")
	}
	if _, err := NewAnalystWorkflow(context.Background(), workflowConfig(config.ModeBasic), noStructurer); err != nil {
		t.Errorf("basic mode should not need a structurer: %v", err)
	}
}
