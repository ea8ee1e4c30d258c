package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"stock-analyst/config"
	"stock-analyst/models"
	"stock-analyst/observability"
)

// Graph node names. They double as stage labels in logs and metrics.
const (
	StageRoute       = "route"
	StageNews        = "news"
	StageSummary     = "summary"
	StageTargets     = "targets"
	StageNarrative   = "narrative"
	StageStructuring = "structuring"
	StageTrending    = "trending"
)

// WorkflowRepository records query runs. It is optional.
type WorkflowRepository interface {
	CreateQueryRun(ctx context.Context, run *models.QueryRun) error
	UpdateQueryRun(ctx context.Context, run *models.QueryRun) error
}

// WorkflowDeps are the stages an AnalystWorkflow is assembled from.
// Structurer and Discovery are only used in advanced mode.
type WorkflowDeps struct {
	Classifier IntentClassifier
	News       *NewsSentimentCollector
	Summary    *StockSummaryCollector
	Targets    *PriceTargetEstimator
	Narrative  *NarrativeGenerator
	Structurer *OutputStructurer
	Discovery  *TrendingDiscovery
	Quotes     *TrendingQuotes
	Repo       WorkflowRepository
}

// Request is one query against the workflow
type Request struct {
	Ticker string
	Query  string
	UserID *uuid.UUID
}

// AnalystWorkflow routes a query to the analysis or trending branch and runs its stages in order:
//
//	START -> route -> news -> summary -> targets -> narrative [-> structuring] -> END
//	               \-> trending -> END
type AnalystWorkflow struct {
	deps     WorkflowDeps
	mode     string
	timeout  time.Duration
	runnable compose.Runnable[*WorkflowState, *WorkflowState]
}

// NewAnalystWorkflow compiles the graph for the configured pipeline mode
func NewAnalystWorkflow(ctx context.Context, cfg config.WorkflowConfig, deps WorkflowDeps) (*AnalystWorkflow, error) {
	if deps.Classifier == nil {
		deps.Classifier = NewKeywordClassifier()
	}
	if deps.News == nil || deps.Summary == nil || deps.Targets == nil || deps.Narrative == nil || deps.Quotes == nil {
		return nil, fmt.Errorf("workflow requires news, summary, targets, narrative and quote stages")
	}
	advanced := cfg.Mode == config.ModeAdvanced
	if advanced && deps.Structurer == nil {
		return nil, fmt.Errorf("advanced workflow requires an output structurer")
	}

	w := &AnalystWorkflow{
		deps:    deps,
		mode:    cfg.Mode,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	g := compose.NewGraph[*WorkflowState, *WorkflowState]()
	nodes := []graphNode{
		{StageRoute, w.route},
		{StageNews, w.collectNews},
		{StageSummary, w.collectSummary},
		{StageTargets, w.estimateTargets},
		{StageNarrative, w.writeNarrative},
		{StageTrending, w.recommendTrending},
	}
	if advanced {
		nodes = append(nodes, graphNode{StageStructuring, w.structure})
	}
	for _, n := range nodes {
		if err := g.AddLambdaNode(n.name, compose.InvokableLambda(stageNode(n.name, n.fn)), compose.WithNodeName(n.name)); err != nil {
			return nil, fmt.Errorf("failed to add node %s: %w", n.name, err)
		}
	}

	edges := [][2]string{
		{compose.START, StageRoute},
		{StageNews, StageSummary},
		{StageSummary, StageTargets},
		{StageTargets, StageNarrative},
		{StageTrending, compose.END},
	}
	if advanced {
		edges = append(edges, [2]string{StageNarrative, StageStructuring}, [2]string{StageStructuring, compose.END})
	} else {
		edges = append(edges, [2]string{StageNarrative, compose.END})
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("failed to add edge %s -> %s: %w", e[0], e[1], err)
		}
	}

	branch := compose.NewGraphBranch(func(_ context.Context, s *WorkflowState) (string, error) {
		if s.Intent == IntentTrending {
			return StageTrending, nil
		}
		return StageNews, nil
	}, map[string]bool{StageNews: true, StageTrending: true})
	if err := g.AddBranch(StageRoute, branch); err != nil {
		return nil, fmt.Errorf("failed to add route branch: %w", err)
	}

	runnable, err := g.Compile(ctx,
		compose.WithGraphName("stock-analyst-"+cfg.Mode),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow: %w", err)
	}
	w.runnable = runnable
	return w, nil
}

type stageFunc func(context.Context, *WorkflowState) error

type graphNode struct {
	name string
	fn   stageFunc
}

// stageNode wraps a stage with logging, timing and failure capture.
// The failure is kept on the state so callers can match it with errors.Is.
func stageNode(stage string, fn stageFunc) func(context.Context, *WorkflowState) (*WorkflowState, error) {
	return func(ctx context.Context, s *WorkflowState) (*WorkflowState, error) {
		metrics := observability.GetMetrics()
		timer := metrics.NewTimer()
		ctx = observability.ContextWithStage(ctx, stage)
		logger := observability.WithContext(ctx)
		logger.Debug("stage started")

		err := fn(ctx, s)
		timer.ObserveStage(stage)
		if err != nil {
			metrics.RecordStageError(stage, categorizeError(err))
			logger.Warn("stage failed", "error", err)
			s.fail(stage, err)
			return s, err
		}
		logger.Debug("stage finished", "duration_ms", timer.Duration().Milliseconds())
		return s, nil
	}
}

// Mode returns the pipeline mode the graph was compiled for
func (w *AnalystWorkflow) Mode() string {
	return w.mode
}

// Run executes one query. On failure the partially written state is returned with the error
// of the stage that failed; there is no partial answer.
func (w *AnalystWorkflow) Run(ctx context.Context, req Request) (*WorkflowState, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	state := NewWorkflowState(strings.ToUpper(strings.TrimSpace(req.Ticker)), req.Query)
	run := models.NewQueryRun(state.Ticker, req.Query, w.mode)
	run.UserID = req.UserID
	ctx = observability.ContextWithSymbol(observability.ContextWithRunID(ctx, run.ID.String()), state.Ticker)

	metrics := observability.GetMetrics()
	metrics.RecordQueryRequest(w.mode)
	timer := metrics.NewTimer()
	w.createRun(ctx, run)

	_, err := w.runnable.Invoke(ctx, state)
	if state.failure != nil {
		err = fmt.Errorf("%s stage failed: %w", state.failedStage, state.failure)
	} else if err != nil {
		err = fmt.Errorf("workflow failed: %w", err)
	}

	intent := string(state.Intent)
	if err != nil {
		timer.ObserveQuery(intent, "error")
		metrics.RecordQueryError(intent, categorizeError(err))
		run.Fail(intent, state.Writes, err)
		w.updateRun(ctx, run)
		return state, err
	}

	timer.ObserveQuery(intent, "success")
	run.Complete(intent, state.Writes)
	w.updateRun(ctx, run)
	observability.WithContext(ctx).Info("query completed",
		"intent", intent,
		"writes", state.Writes,
		"duration_ms", run.DurationMs)
	return state, nil
}

func (w *AnalystWorkflow) createRun(ctx context.Context, run *models.QueryRun) {
	if w.deps.Repo == nil {
		return
	}
	if err := w.deps.Repo.CreateQueryRun(ctx, run); err != nil {
		observability.Warn("failed to record query run", "run_id", run.ID, "error", err)
	}
}

func (w *AnalystWorkflow) updateRun(ctx context.Context, run *models.QueryRun) {
	if w.deps.Repo == nil {
		return
	}
	// The run context may already be past its deadline.
	ctx = context.WithoutCancel(ctx)
	if err := w.deps.Repo.UpdateQueryRun(ctx, run); err != nil {
		observability.Warn("failed to update query run", "run_id", run.ID, "error", err)
	}
}

// Health reports whether the data sources behind the analysis stages answer
func (w *AnalystWorkflow) Health(ctx context.Context) map[string]bool {
	return map[string]bool{
		StageNews:    w.deps.News.IsAvailable(ctx),
		StageSummary: w.deps.Summary.IsAvailable(ctx),
	}
}

func (w *AnalystWorkflow) route(ctx context.Context, s *WorkflowState) error {
	intent, err := w.deps.Classifier.Classify(ctx, s.LastTurn())
	if err != nil {
		return fmt.Errorf("failed to classify query: %w", err)
	}
	s.Intent = intent
	observability.GetMetrics().RecordIntent(string(intent))
	return nil
}

func (w *AnalystWorkflow) collectNews(ctx context.Context, s *WorkflowState) error {
	record, err := w.deps.News.Collect(ctx, s.Ticker)
	if err != nil {
		return err
	}
	return s.SetSentiment(record)
}

func (w *AnalystWorkflow) collectSummary(ctx context.Context, s *WorkflowState) error {
	snap, err := w.deps.Summary.Collect(ctx, s.Ticker)
	if err != nil {
		return err
	}
	return s.SetSnapshot(snap)
}

func (w *AnalystWorkflow) estimateTargets(ctx context.Context, s *WorkflowState) error {
	return s.SetPriceTargets(w.deps.Targets.Estimate(ctx, s.Ticker, s.SentimentScore()))
}

func (w *AnalystWorkflow) writeNarrative(ctx context.Context, s *WorkflowState) error {
	in := NarrativeInputFrom(s)

	if w.mode != config.ModeAdvanced {
		record, err := w.deps.Narrative.Generate(ctx, in)
		if err != nil {
			return err
		}
		text := record.Text()
		if err := s.SetNarrative(text, record); err != nil {
			return err
		}
		s.Answer(text)
		return nil
	}

	text, err := w.deps.Narrative.GenerateWithTools(ctx, in)
	if err != nil {
		return err
	}
	if err := s.SetNarrative(text, nil); err != nil {
		return err
	}
	s.Answer(text)
	return nil
}

func (w *AnalystWorkflow) structure(ctx context.Context, s *WorkflowState) error {
	structured, err := w.deps.Structurer.Structure(ctx, s.NarrativeText)
	if err != nil {
		return err
	}
	if err := s.SetStructured(structured); err != nil {
		return err
	}
	s.Answer(structured.Text())
	return nil
}

func (w *AnalystWorkflow) recommendTrending(ctx context.Context, s *WorkflowState) error {
	candidates := SampleTrendingTickers
	if w.mode == config.ModeAdvanced && w.deps.Discovery != nil {
		candidates = w.deps.Discovery.Discover(ctx)
	}

	moves := w.deps.Quotes.Moves(ctx, candidates)
	if err := s.SetTrending(moves); err != nil {
		return err
	}
	msg, err := TrendingMessage(moves)
	if err != nil {
		return err
	}
	s.Answer(msg)
	return nil
}
