package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeviceInfo describes the client a session was opened from
type DeviceInfo struct {
	UserAgent  string `json:"userAgent,omitempty"`
	IP         string `json:"ip,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
}

// RefreshToken is one long-lived session grant. Only the SHA-256 of the
// signed token string is stored; lookups hash the presented string.
type RefreshToken struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	TokenHash  string     `json:"-" db:"token_hash"`
	UserID     uuid.UUID  `json:"userId" db:"user_id"`
	ExpiresAt  time.Time  `json:"expiresAt" db:"expires_at"`
	IsActive   bool       `json:"isActive" db:"is_active"`
	DeviceInfo DeviceInfo `json:"deviceInfo" db:"device_info"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the RefreshToken model
func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// NewRefreshToken creates an active record for token expiring at expiresAt
func NewRefreshToken(userID uuid.UUID, token string, expiresAt time.Time, device DeviceInfo) *RefreshToken {
	now := time.Now().UTC()
	return &RefreshToken{
		ID:         uuid.New(),
		TokenHash:  HashToken(token),
		UserID:     userID,
		ExpiresAt:  expiresAt.UTC(),
		IsActive:   true,
		DeviceInfo: device,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HashToken returns the hex SHA-256 of a token string
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// UsableAt reports whether the record may still authorize a refresh at now.
// Expiry is inclusive: a record is dead from the instant it expires.
func (t *RefreshToken) UsableAt(now time.Time) bool {
	return t.IsActive && now.Before(t.ExpiresAt)
}

// ExpiredAt reports whether the record is past its expiry instant
func (t *RefreshToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// DeviceTypeFromUserAgent makes a coarse guess at the client form factor
func DeviceTypeFromUserAgent(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}
