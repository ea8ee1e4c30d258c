package agents

import (
	"fmt"

	"stock-analyst/models"
	"stock-analyst/services"
)

// State field names as recorded in WorkflowState.Writes
const (
	FieldSentiment    = "sentiment"
	FieldSnapshot     = "stock_snapshot"
	FieldPriceTargets = "price_targets"
	FieldNarrative    = "narrative"
	FieldStructured   = "structured_narrative"
	FieldTrending     = "trending_list"
)

// WorkflowState is threaded through the analyst graph. Every stage owns one field
// and writes it through a Set method, which refuses a second write.
// Conversation is append-only; its last turn is the answer once the run is done.
type WorkflowState struct {
	Ticker       string                 `json:"ticker"`
	Conversation []services.ChatMessage `json:"conversation"`
	Intent       Intent                 `json:"intent,omitempty"`

	Sentiment     *models.SentimentRecord         `json:"sentiment,omitempty"`
	Snapshot      *models.StockSnapshot           `json:"stock_snapshot,omitempty"`
	StopLoss      string                          `json:"stop_loss,omitempty"`
	TargetPrice   string                          `json:"target_price,omitempty"`
	Narrative     *models.NarrativeRecord         `json:"narrative,omitempty"`
	NarrativeText string                          `json:"narrative_text,omitempty"`
	Structured    *models.StructuredNarrative     `json:"structured_narrative,omitempty"`
	Trending      map[string]models.TrendingEntry `json:"trending_stocks,omitempty"`

	// Writes lists written fields in the order stages wrote them
	Writes []string `json:"writes"`

	failedStage string
	failure     error
}

// NewWorkflowState starts a run for ticker with the user's query as the first turn
func NewWorkflowState(ticker, query string) *WorkflowState {
	return &WorkflowState{
		Ticker:       ticker,
		Conversation: []services.ChatMessage{{Role: services.RoleUser, Content: query}},
	}
}

// LastTurn returns the content of the most recent conversation turn
func (s *WorkflowState) LastTurn() string {
	if len(s.Conversation) == 0 {
		return ""
	}
	return s.Conversation[len(s.Conversation)-1].Content
}

// Answer appends an assistant turn
func (s *WorkflowState) Answer(content string) {
	s.Conversation = append(s.Conversation, services.ChatMessage{Role: services.RoleAssistant, Content: content})
}

// Written reports whether field has been set
func (s *WorkflowState) Written(field string) bool {
	for _, w := range s.Writes {
		if w == field {
			return true
		}
	}
	return false
}

func (s *WorkflowState) claim(field string) error {
	if s.Written(field) {
		return fmt.Errorf("%w: %s", ErrFieldAlreadyWritten, field)
	}
	s.Writes = append(s.Writes, field)
	return nil
}

func (s *WorkflowState) SetSentiment(r *models.SentimentRecord) error {
	if err := s.claim(FieldSentiment); err != nil {
		return err
	}
	s.Sentiment = r
	return nil
}

func (s *WorkflowState) SetSnapshot(snap *models.StockSnapshot) error {
	if err := s.claim(FieldSnapshot); err != nil {
		return err
	}
	s.Snapshot = snap
	return nil
}

// SetPriceTargets writes stop-loss and target together; they come from one stage
func (s *WorkflowState) SetPriceTargets(t PriceTargets) error {
	if err := s.claim(FieldPriceTargets); err != nil {
		return err
	}
	s.StopLoss = t.StopLoss
	s.TargetPrice = t.TargetPrice
	return nil
}

// SetNarrative writes the narrative text and, when the model produced one, its record form
func (s *WorkflowState) SetNarrative(text string, record *models.NarrativeRecord) error {
	if err := s.claim(FieldNarrative); err != nil {
		return err
	}
	s.NarrativeText = text
	s.Narrative = record
	return nil
}

func (s *WorkflowState) SetStructured(n *models.StructuredNarrative) error {
	if err := s.claim(FieldStructured); err != nil {
		return err
	}
	s.Structured = n
	return nil
}

func (s *WorkflowState) SetTrending(entries map[string]models.TrendingEntry) error {
	if err := s.claim(FieldTrending); err != nil {
		return err
	}
	s.Trending = entries
	return nil
}

// fail records the first stage failure of the run
func (s *WorkflowState) fail(stage string, err error) {
	if s.failure == nil {
		s.failedStage = stage
		s.failure = err
	}
}

// SentimentScore returns the aggregate news score, or zero before sentiment is written
func (s *WorkflowState) SentimentScore() int {
	if s.Sentiment == nil {
		return 0
	}
	return s.Sentiment.SentimentScore
}
