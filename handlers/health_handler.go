package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/RyanVerWey/Tech-Talk/config"
	"github.com/RyanVerWey/Tech-Talk/utils"
	"go.uber.org/zap"
)

// HealthResponse is the liveness body. It sits beside the envelope fields
// rather than under data.
type HealthResponse struct {
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
	Timestamp   string  `json:"timestamp"`
	Environment string  `json:"environment"`
	Uptime      float64 `json:"uptime"`
	Version     string  `json:"version"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusResponse reports which auth features are configured. It never
// carries secrets.
type StatusResponse struct {
	OAuth struct {
		Google struct {
			Configured bool `json:"configured"`
		} `json:"google"`
	} `json:"oauth"`
	JWT struct {
		Configured      bool   `json:"configured"`
		AccessTokenTTL  string `json:"accessTokenTTL"`
		RefreshTokenTTL string `json:"refreshTokenTTL"`
	} `json:"jwt"`
	RateLimit struct {
		Store       string `json:"store"`
		MaxAttempts int    `json:"maxAttempts"`
		Window      string `json:"window"`
	} `json:"rateLimit"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db      *sql.DB
	cfg     *config.Config
	started time.Time
	logger  *zap.Logger
	now     func() time.Time
}

// NewHealthHandler creates a new HealthHandler. db may be nil.
func NewHealthHandler(db *sql.DB, cfg *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		cfg:     cfg,
		started: time.Now(),
		logger:  logger,
		now:     time.Now,
	}
}

// HandleHealth handles GET /api/health
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	response := HealthResponse{
		Success:     true,
		Message:     "API is healthy",
		Timestamp:   now.UTC().Format(time.RFC3339),
		Environment: h.cfg.Environment,
		Uptime:      now.Sub(h.started).Seconds(),
		Version:     h.cfg.Version,
	}

	if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write health response", zap.Error(err))
	}
}

// HandleReadiness handles GET /api/health/ready
// Readiness check - validates that all dependencies are available
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.Response{Success: allHealthy, Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/auth/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var status StatusResponse
	status.OAuth.Google.Configured = h.cfg.GoogleConfigured()
	status.JWT.Configured = h.cfg.JWTConfigured()
	status.JWT.AccessTokenTTL = h.cfg.JWT.AccessTokenTTL.String()
	status.JWT.RefreshTokenTTL = h.cfg.JWT.RefreshTokenTTL.String()
	status.RateLimit.Store = h.cfg.RateLimit.Store
	status.RateLimit.MaxAttempts = h.cfg.RateLimit.MaxAttempts
	status.RateLimit.Window = h.cfg.RateLimit.Window.String()

	if err := utils.WriteOK(w, status, "Authentication status"); err != nil {
		h.logger.Error("failed to write status response", zap.Error(err))
	}
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil // No database configured
	}

	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return err
	}

	return nil
}
