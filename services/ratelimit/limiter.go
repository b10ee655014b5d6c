package ratelimit

import (
	"context"
	"time"

	"github.com/RyanVerWey/Tech-Talk/internal/observability"
	"go.uber.org/zap"
)

const (
	DefaultLimit  = 5
	DefaultWindow = 15 * time.Minute
)

// Limiter applies a fixed limit and window over an AttemptStore
type Limiter struct {
	store  AttemptStore
	limit  int
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewLimiter creates a limiter. Non-positive limit or window fall back to
// five attempts per fifteen minutes.
func NewLimiter(store AttemptStore, limit int, window time.Duration, logger *zap.Logger) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the limiter's clock
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Limit returns the attempts allowed per window
func (l *Limiter) Limit() int { return l.limit }

// Window returns the sliding window length
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records an attempt for key. A store failure lets the attempt
// through and is logged.
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	decision, err := l.store.Hit(ctx, key, l.now(), l.window, l.limit)
	if err != nil {
		l.logger.Error("rate limit store failed, allowing request",
			zap.String("key", key),
			zap.Error(err))
		return Decision{Allowed: true}
	}

	if !decision.Allowed {
		observability.RecordRateLimited()
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int("count", decision.Count),
			zap.Duration("retry_after", decision.RetryAfter))
	}
	return decision
}
