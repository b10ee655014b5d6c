// Package audit records authentication events asynchronously. Recording is
// best-effort: a full buffer drops the event rather than slow a login.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RyanVerWey/Tech-Talk/internal/observability"
	"github.com/RyanVerWey/Tech-Talk/models"
	"github.com/RyanVerWey/Tech-Talk/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotRunning is returned when recording before Start or after Stop
	ErrNotRunning = errors.New("audit service not running")

	// ErrBufferFull is returned when the event was dropped
	ErrBufferFull = errors.New("audit event buffer full")
)

// insertTimeout bounds a single event write
const insertTimeout = 5 * time.Second

// Config holds configuration for the Service
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// RequestMeta identifies the request an event came from
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

// Service handles asynchronous auth event logging. A nil *Service accepts
// and discards events, which is how auditing is disabled.
type Service struct {
	repo        repositories.AuthEventRepository
	logger      *zap.Logger
	events      chan *models.AuthEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	mu          sync.Mutex
	started     bool
	stopped     bool
}

// NewService creates a new Service instance
func NewService(repo repositories.AuthEventRepository, logger *zap.Logger, config Config) *Service {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	return &Service{
		repo:        repo,
		logger:      logger,
		events:      make(chan *models.AuthEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for queued ones to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.stopped = true
	close(s.events)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.events)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues an event without blocking
func (s *Service) Record(event *models.AuthEvent) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		observability.RecordAuditDropped()
		return ErrNotRunning
	}

	select {
	case s.events <- event:
		return nil
	default:
		observability.RecordAuditDropped()
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("event_type", string(event.Type)))
		return ErrBufferFull
	}
}

// RecentForUser returns a user's latest events, newest first
func (s *Service) RecentForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuthEvent, error) {
	if s == nil {
		return []*models.AuthEvent{}, nil
	}
	events, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth events: %w", err)
	}
	return events, nil
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.events {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("event_type", string(event.Type)))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *Service) processEvent(event *models.AuthEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := s.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}
	return nil
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.events),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// Convenience methods for the auth flow. Errors are logged by Record and
// deliberately not returned.

func (s *Service) record(eventType models.AuthEventType, userID *uuid.UUID, meta RequestMeta, details map[string]interface{}) {
	if s == nil {
		return
	}
	event := models.NewAuthEvent(eventType).WithRequest(meta.RequestID, meta.IP, meta.UserAgent)
	if userID != nil {
		event.WithUser(*userID)
	}
	if len(details) > 0 {
		event.WithDetails(details)
	}
	_ = s.Record(event)
}

// LoginSucceeded records a completed OAuth login
func (s *Service) LoginSucceeded(userID uuid.UUID, meta RequestMeta, created bool) {
	s.record(models.AuthEventLoginSucceeded, &userID, meta, map[string]interface{}{
		"provider":   "google",
		"newAccount": created,
	})
}

// LoginFailed records a failed OAuth callback with its redirect code
func (s *Service) LoginFailed(meta RequestMeta, reason string) {
	s.record(models.AuthEventLoginFailed, nil, meta, map[string]interface{}{
		"provider": "google",
		"reason":   reason,
	})
}

// TokenRefreshed records a successful access token refresh
func (s *Service) TokenRefreshed(userID uuid.UUID, meta RequestMeta) {
	s.record(models.AuthEventTokenRefreshed, &userID, meta, nil)
}

// RefreshFailed records a rejected refresh token
func (s *Service) RefreshFailed(meta RequestMeta, reason string) {
	s.record(models.AuthEventRefreshFailed, nil, meta, map[string]interface{}{
		"reason": reason,
	})
}

// Logout records a single-session logout
func (s *Service) Logout(userID uuid.UUID, meta RequestMeta) {
	s.record(models.AuthEventLogout, &userID, meta, nil)
}

// LogoutAll records a logout from every session
func (s *Service) LogoutAll(userID uuid.UUID, meta RequestMeta, revoked int64) {
	s.record(models.AuthEventLogoutAll, &userID, meta, map[string]interface{}{
		"revoked": revoked,
	})
}
