package middleware

import (
	"context"
	"net/http"

	"github.com/RyanVerWey/Tech-Talk/services"
	"github.com/RyanVerWey/Tech-Talk/services/ratelimit"
	"github.com/RyanVerWey/Tech-Talk/utils"
	"go.uber.org/zap"
)

// AttemptLimiter decides whether an attempt for key may proceed.
// *ratelimit.Limiter satisfies it.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) ratelimit.Decision
}

// RateLimiter throttles authentication attempts per client address
type RateLimiter struct {
	limiter AttemptLimiter
	scope   string
	logger  *zap.Logger
}

// NewRateLimiter creates a limiter middleware. scope namespaces the keys so
// several limited route groups do not share counters.
func NewRateLimiter(limiter AttemptLimiter, scope string, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		scope:   scope,
		logger:  logger,
	}
}

// Limit rejects requests over the limit with 429 and a Retry-After header
func (m *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		decision := m.limiter.Allow(r.Context(), m.scope+":"+ip)
		if !decision.Allowed {
			m.logger.Warn("too many authentication attempts",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("client_ip", ip),
				zap.String("path", r.URL.Path))
			_ = utils.WriteTooManyRequests(w, services.CodeRateLimited, services.ErrRateLimitExceeded.Message, decision.RetryAfterSeconds())
			return
		}

		next.ServeHTTP(w, r)
	})
}
