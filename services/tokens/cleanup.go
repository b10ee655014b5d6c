package tokens

import (
	"context"
	"time"

	"github.com/RyanVerWey/Tech-Talk/internal/observability"
	"go.uber.org/zap"
)

// AttemptPruner drops rate limit attempts recorded before a cutoff
type AttemptPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper deletes dead sessions. *Service satisfies it.
type Sweeper interface {
	Cleanup(ctx context.Context) (int64, error)
}

// CleanupWorker periodically deletes expired and inactive refresh tokens
type CleanupWorker struct {
	sweeper  Sweeper
	pruner   AttemptPruner
	window   time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewCleanupWorker creates a worker ticking every interval. pruner may be nil.
func NewCleanupWorker(sweeper Sweeper, pruner AttemptPruner, window, interval time.Duration, logger *zap.Logger) *CleanupWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupWorker{
		sweeper:  sweeper,
		pruner:   pruner,
		window:   window,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval
func (w *CleanupWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("started session cleanup worker", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			w.logger.Info("stopping session cleanup worker")
			return
		}
	}
}

// RunOnce performs a single sweep. Failures are logged and swallowed so the
// next tick retries. It returns the number of sessions deleted.
func (w *CleanupWorker) RunOnce(ctx context.Context) int64 {
	deleted, err := w.sweeper.Cleanup(ctx)
	if err != nil {
		w.logger.Error("session cleanup failed", zap.Error(err))
	} else {
		observability.RecordSessionsCleaned(deleted)
		if deleted > 0 {
			w.logger.Info("cleaned up expired refresh tokens", zap.Int64("rows_deleted", deleted))
		}
	}

	if w.pruner != nil && w.window > 0 {
		cutoff := w.now().Add(-w.window)
		pruned, err := w.pruner.PruneBefore(ctx, cutoff)
		if err != nil {
			w.logger.Error("rate limit prune failed", zap.Error(err))
		} else if pruned > 0 {
			w.logger.Debug("pruned rate limit attempts",
				zap.Int64("rows_deleted", pruned),
				zap.Time("cutoff_time", cutoff))
		}
	}

	return deleted
}
