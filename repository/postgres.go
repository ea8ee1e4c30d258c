package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stock-analyst/observability"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// Repository persists accounts, query runs and the chart cache in PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// Option tunes the connection pool
type Option func(*pgxpool.Config)

// WithMaxConns caps the pool size. Values below 1 keep the pgx default.
func WithMaxConns(n int) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = int32(n)
		}
	}
}

// NewRepository opens a pool and pings it once
func NewRepository(ctx context.Context, connString string, opts ...Option) (*Repository, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	for _, opt := range opts {
		opt(poolCfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Migrate creates any missing tables. Every statement is idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Pool returns the underlying connection pool. End-to-end tests use it for cleanup.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *Repository) Health(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// observe times one statement. The returned func records the duration and, when
// err is set, a database error for the same operation and table.
func observe(operation, table string) func(err error) {
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	return func(err error) {
		timer.ObserveDB(operation, table)
		if err != nil {
			metrics.RecordDBError(operation, table)
		}
	}
}

// isUniqueViolation reports a unique constraint failure (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
