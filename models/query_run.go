package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryRun is the audit record of one workflow execution
type QueryRun struct {
	ID           uuid.UUID      `json:"id"`
	UserID       *uuid.UUID     `json:"user_id,omitempty"`
	Ticker       string         `json:"ticker"`
	Query        string         `json:"query"`
	Mode         string         `json:"mode"`
	Intent       string         `json:"intent,omitempty"`
	Status       QueryRunStatus `json:"status"`
	Stages       []string       `json:"stages,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	DurationMs   int            `json:"duration_ms"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

type QueryRunStatus string

const (
	QueryRunStatusRunning   QueryRunStatus = "running"
	QueryRunStatusCompleted QueryRunStatus = "completed"
	QueryRunStatusFailed    QueryRunStatus = "failed"
)

func NewQueryRun(ticker, query, mode string) *QueryRun {
	return &QueryRun{
		ID:        uuid.New(),
		Ticker:    ticker,
		Query:     query,
		Mode:      mode,
		Status:    QueryRunStatusRunning,
		StartedAt: time.Now(),
	}
}

// Complete marks the run finished with the route taken and the stages that wrote state
func (r *QueryRun) Complete(intent string, stages []string) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = QueryRunStatusCompleted
	r.Intent = intent
	r.Stages = stages
	r.DurationMs = int(now.Sub(r.StartedAt).Milliseconds())
}

func (r *QueryRun) Fail(intent string, stages []string, err error) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = QueryRunStatusFailed
	r.Intent = intent
	r.Stages = stages
	r.ErrorMessage = err.Error()
	r.DurationMs = int(now.Sub(r.StartedAt).Milliseconds())
}
