package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"

	defaultTxAttempts = 3
)

type txKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// conn returns the transaction carried by ctx, or the pool
func conn(ctx context.Context, db *DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.DB
}

// TxOption configures a TxManager
type TxOption func(*TxManager)

// WithIsolation sets the isolation level of new transactions
func WithIsolation(level sql.IsolationLevel) TxOption {
	return func(m *TxManager) {
		m.opts = &sql.TxOptions{Isolation: level}
	}
}

// WithMaxAttempts bounds how often a transaction aborted by a serialization
// failure or deadlock is run again
func WithMaxAttempts(n int) TxOption {
	return func(m *TxManager) {
		if n > 0 {
			m.attempts = n
		}
	}
}

// TxManager runs account writes in a single transaction. Repositories pick the
// transaction up from the context, so a nested InTransaction joins the outer
// one instead of opening a second.
type TxManager struct {
	db       *DB
	opts     *sql.TxOptions
	attempts int
	logger   *zap.Logger
}

// NewTxManager creates a transaction manager over the pool
func NewTxManager(db *DB, logger *zap.Logger, opts ...TxOption) *TxManager {
	m := &TxManager{db: db, attempts: defaultTxAttempts, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InTransaction commits when fn returns nil and rolls back otherwise. A
// panic in fn rolls back before propagating.
func (m *TxManager) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		err = m.run(ctx, fn)
		if err == nil || !isTransient(err) || ctx.Err() != nil {
			return err
		}
		m.logger.Warn("transaction aborted by concurrent write, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return err
}

func (m *TxManager) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := m.db.BeginTx(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			m.rollback(tx, nil)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		m.rollback(tx, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (m *TxManager) rollback(tx *sql.Tx, cause error) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		m.logger.Error("failed to rollback transaction",
			zap.Error(err),
			zap.NamedError("original_error", cause))
	}
}

// isTransient reports whether postgres aborted the transaction in a way a
// rerun can succeed
func isTransient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == serializationFailure || pqErr.Code == deadlockDetected
}
