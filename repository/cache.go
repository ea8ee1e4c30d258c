package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stock-analyst/observability"
)

const cacheTable = "market_data_cache"

// GetCached decodes the unexpired entry for (symbol, dataType) into dest.
// It reports false on a miss.
func (r *Repository) GetCached(ctx context.Context, symbol, dataType string, dest any) (found bool, err error) {
	done := observe("select", cacheTable)
	defer func() { done(err) }()

	var data []byte
	// expiry is compared in the database so client clock skew cannot serve stale charts
	err = r.pool.QueryRow(ctx, `
		SELECT data FROM market_data_cache
		WHERE symbol = $1 AND data_type = $2 AND expires_at > NOW()
	`, symbol, dataType).Scan(&data)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to read %s cache for %s: %w", dataType, symbol, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("corrupt %s cache entry for %s: %w", dataType, symbol, err)
	}
	return true, nil
}

// SetCached stores value as JSON for ttl, replacing any previous entry
func (r *Repository) SetCached(ctx context.Context, symbol, dataType string, value any, ttl time.Duration) (err error) {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s cache entry: %w", dataType, err)
	}

	done := observe("upsert", cacheTable)
	defer func() { done(err) }()

	_, err = r.pool.Exec(ctx, `
		INSERT INTO market_data_cache (symbol, data_type, data, expires_at)
		VALUES ($1, $2, $3, NOW() + make_interval(secs => $4))
		ON CONFLICT (symbol, data_type)
		DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, created_at = NOW()
	`, symbol, dataType, data, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("failed to write %s cache for %s: %w", dataType, symbol, err)
	}
	return nil
}

// CleanExpiredCache deletes expired entries and returns how many were removed
func (r *Repository) CleanExpiredCache(ctx context.Context) (n int64, err error) {
	done := observe("delete", cacheTable)
	defer func() { done(err) }()

	tag, err := r.pool.Exec(ctx, `DELETE FROM market_data_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SweepCache runs CleanExpiredCache every interval until ctx is done
func (r *Repository) SweepCache(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.CleanExpiredCache(ctx)
			switch {
			case err != nil && ctx.Err() == nil:
				observability.Warn("cache sweep failed", "error", err)
			case n > 0:
				observability.Debug("expired cache entries removed", "count", n)
			}
		}
	}
}
