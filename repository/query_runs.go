package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stock-analyst/models"
)

const runsTable = "query_runs"

const queryRunColumns = `id, user_id, ticker, query, mode, intent, status, stages, error_message, duration_ms, started_at, completed_at`

// CreateQueryRun records the start of a workflow run
func (r *Repository) CreateQueryRun(ctx context.Context, run *models.QueryRun) (err error) {
	done := observe("insert", runsTable)
	defer func() { done(err) }()

	_, err = r.pool.Exec(ctx, `
		INSERT INTO query_runs (id, user_id, ticker, query, mode, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.UserID, run.Ticker, run.Query, run.Mode, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create query run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateQueryRun stores the outcome of a finished run
func (r *Repository) UpdateQueryRun(ctx context.Context, run *models.QueryRun) (err error) {
	stages, err := json.Marshal(run.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	done := observe("update", runsTable)
	defer func() { done(err) }()

	tag, err := r.pool.Exec(ctx, `
		UPDATE query_runs
		SET intent = $2, status = $3, stages = $4, error_message = $5, duration_ms = $6, completed_at = $7
		WHERE id = $1
	`, run.ID, run.Intent, run.Status, stages, run.ErrorMessage, run.DurationMs, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update query run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("query run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// GetQueryRun returns a single run by ID, or ErrNotFound
func (r *Repository) GetQueryRun(ctx context.Context, id uuid.UUID) (*models.QueryRun, error) {
	run, err := scanQueryRun(r.pool.QueryRow(ctx, `SELECT `+queryRunColumns+` FROM query_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query query run: %w", err)
	}
	return run, nil
}

// ListQueryRunsByUser returns a user's most recent runs, newest first
func (r *Repository) ListQueryRunsByUser(ctx context.Context, userID uuid.UUID, limit int) (_ []models.QueryRun, err error) {
	if limit <= 0 {
		limit = 50
	}

	done := observe("select", runsTable)
	defer func() { done(err) }()

	rows, err := r.pool.Query(ctx, `
		SELECT `+queryRunColumns+`
		FROM query_runs
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.QueryRun, error) {
		run, err := scanQueryRun(row)
		if err != nil {
			return models.QueryRun{}, err
		}
		return *run, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan query runs: %w", err)
	}
	if runs == nil {
		runs = []models.QueryRun{}
	}
	return runs, nil
}

func scanQueryRun(row pgx.Row) (*models.QueryRun, error) {
	var run models.QueryRun
	var intent, errorMessage *string
	var durationMs *int
	var stages []byte

	err := row.Scan(&run.ID, &run.UserID, &run.Ticker, &run.Query, &run.Mode, &intent, &run.Status,
		&stages, &errorMessage, &durationMs, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}

	if intent != nil {
		run.Intent = *intent
	}
	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	if durationMs != nil {
		run.DurationMs = *durationMs
	}
	if stages != nil {
		if err := json.Unmarshal(stages, &run.Stages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stages: %w", err)
		}
	}
	return &run, nil
}
