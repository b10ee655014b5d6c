package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	authLoginsTotal      *prometheus.CounterVec
	authRefreshTotal     *prometheus.CounterVec
	authRateLimitedTotal prometheus.Counter
	sessionsCleanedTotal prometheus.Counter
	auditEventsDropped   prometheus.Counter
)

// Register creates the collectors and registers them on reg, or on the
// default registerer when reg is nil. It returns the /metrics handler.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed",
		}, []string{"method", "route", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		authLoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "OAuth login attempts by result",
		}, []string{"result"})

		authRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Access token refreshes by result",
		}, []string{"result"})

		authRateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_rate_limited_total",
			Help: "Authentication requests rejected by the rate limiter",
		})

		sessionsCleanedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_cleaned_total",
			Help: "Expired or inactive refresh tokens deleted by cleanup",
		})

		auditEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_audit_events_dropped_total",
			Help: "Auth events dropped because the audit buffer was full",
		})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, authLoginsTotal,
			authRefreshTotal, authRateLimitedTotal, sessionsCleanedTotal, auditEventsDropped,
		} {
			if err := registerCollector(reg, c); err != nil {
				metricsErr = err
				return
			}
		}
	})
	if metricsErr != nil {
		return nil, metricsErr
	}

	if g, ok := reg.(prometheus.Gatherer); ok && reg != prometheus.DefaultRegisterer {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

// HTTPMetrics instruments requests with the chi route pattern as the label
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpRequestsTotal == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

// RecordLogin counts an OAuth login outcome
func RecordLogin(result string) {
	if authLoginsTotal != nil {
		authLoginsTotal.WithLabelValues(result).Inc()
	}
}

// RecordRefresh counts a refresh outcome
func RecordRefresh(result string) {
	if authRefreshTotal != nil {
		authRefreshTotal.WithLabelValues(result).Inc()
	}
}

// RecordRateLimited counts a request rejected with 429
func RecordRateLimited() {
	if authRateLimitedTotal != nil {
		authRateLimitedTotal.Inc()
	}
}

// RecordSessionsCleaned adds n deleted sessions
func RecordSessionsCleaned(n int64) {
	if sessionsCleanedTotal != nil && n > 0 {
		sessionsCleanedTotal.Add(float64(n))
	}
}

// RecordAuditDropped counts an auth event lost to a full buffer
func RecordAuditDropped() {
	if auditEventsDropped != nil {
		auditEventsDropped.Inc()
	}
}

func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
