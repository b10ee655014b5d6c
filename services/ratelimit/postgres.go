package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PostgresStore keeps attempts in the rate_limit_events table. Hits on the
// same key are serialized with a transaction-scoped advisory lock.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// Hit implements AttemptStore
func (s *PostgresStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Decision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to begin rate limit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return Decision{}, fmt.Errorf("failed to lock rate limit key: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM rate_limit_events WHERE scope_key = $1 AND occurred_at <= $2`,
		key, now.Add(-window)); err != nil {
		return Decision{}, fmt.Errorf("failed to prune rate limit events: %w", err)
	}

	var count int
	var oldest sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(occurred_at) FROM rate_limit_events WHERE scope_key = $1`,
		key).Scan(&count, &oldest)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to query rate limit: %w", err)
	}

	decision := Decision{Allowed: count < limit, Count: count}
	if decision.Allowed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rate_limit_events (scope_key, occurred_at) VALUES ($1, $2)`,
			key, now); err != nil {
			return Decision{}, fmt.Errorf("failed to insert rate limit event: %w", err)
		}
		decision.Count++
	} else if oldest.Valid {
		decision.RetryAfter = retryAfter(oldest.Time, now, window)
	}

	if err := tx.Commit(); err != nil {
		return Decision{}, fmt.Errorf("failed to commit rate limit transaction: %w", err)
	}
	return decision, nil
}

// PruneBefore removes events older than cutoff to keep the table small
func (s *PostgresStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old rate limit events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Debug("cleaned up old rate limit events",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("cutoff_time", cutoff))

	return rowsAffected, nil
}
