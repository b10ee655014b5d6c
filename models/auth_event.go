package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuthEventType is the kind of authentication event recorded
type AuthEventType string

const (
	AuthEventLoginSucceeded AuthEventType = "login_succeeded"
	AuthEventLoginFailed    AuthEventType = "login_failed"
	AuthEventTokenRefreshed AuthEventType = "token_refreshed"
	AuthEventRefreshFailed  AuthEventType = "refresh_failed"
	AuthEventLogout         AuthEventType = "logout"
	AuthEventLogoutAll      AuthEventType = "logout_all"
)

// AuthEvent is an entry in the authentication audit trail
type AuthEvent struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    *uuid.UUID      `json:"userId,omitempty" db:"user_id"`
	Type      AuthEventType   `json:"type" db:"type"`
	IPAddress string          `json:"ipAddress" db:"ip_address"`
	UserAgent string          `json:"userAgent" db:"user_agent"`
	RequestID string          `json:"requestId" db:"request_id"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"` // JSONB
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// TableName returns the table name for the AuthEvent model
func (AuthEvent) TableName() string {
	return "auth_events"
}

// NewAuthEvent creates a new AuthEvent instance
func NewAuthEvent(eventType AuthEventType) *AuthEvent {
	return &AuthEvent{
		ID:        uuid.New(),
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
	}
}

// WithUser sets the user ID
func (e *AuthEvent) WithUser(userID uuid.UUID) *AuthEvent {
	e.UserID = &userID
	return e
}

// WithDetails sets the details
func (e *AuthEvent) WithDetails(details interface{}) *AuthEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

// WithRequest sets request metadata
func (e *AuthEvent) WithRequest(requestID, ipAddress, userAgent string) *AuthEvent {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}
