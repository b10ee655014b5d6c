package services

import (
	"context"

	"github.com/RyanVerWey/Tech-Talk/repositories"
)

// WithTransaction runs fn inside a transaction. Repositories called with the
// ctx handed to fn join the transaction. A nil manager runs fn directly.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) error) error {
	if txMgr == nil {
		return fn(ctx)
	}
	return txMgr.InTransaction(ctx, fn)
}

// WithTransactionResult is WithTransaction for functions returning a value.
// The zero value is returned when the transaction rolls back.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := WithTransaction(ctx, txMgr, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
