package repositories

import (
	"context"
	"time"

	"github.com/RyanVerWey/Tech-Talk/models"
	"github.com/google/uuid"
)

// TransactionManager runs a unit of work atomically. Repositories called with
// the ctx passed to fn join the transaction; nested calls join the outer one.
type TransactionManager interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository handles principal data operations.
// Lookups return (nil, nil) when no row matches.
type UserRepository interface {
	// Create inserts a new user. Duplicate email or google id yields a conflict error.
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByGoogleID retrieves a user by Google subject
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)

	// GetByEmail retrieves a user by (normalized) email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// LinkGoogleID attaches a Google subject to an existing user, setting the
	// avatar only when the user has none
	LinkGoogleID(ctx context.Context, id uuid.UUID, googleID string, avatar *string) error

	// UpdateLastLogin stamps the user's last login
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// UpdateProfile persists the editable profile fields
	UpdateProfile(ctx context.Context, user *models.User) error
}

// RefreshTokenRepository persists refresh token records keyed by token hash
type RefreshTokenRepository interface {
	// Create inserts a new active record
	Create(ctx context.Context, token *models.RefreshToken) error

	// GetByHash returns the record for a token hash, or (nil, nil)
	GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Deactivate marks the record inactive. It reports whether a row was
	// changed; unknown or already inactive hashes are not an error.
	Deactivate(ctx context.Context, tokenHash string) (bool, error)

	// DeactivateAllForUser marks every active record of a user inactive
	DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// ListActiveByUser returns the user's active, unexpired sessions newest first
	ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.RefreshToken, error)

	// DeleteExpiredOrInactive removes records expired before now or inactive
	DeleteExpiredOrInactive(ctx context.Context, now time.Time) (int64, error)
}

// AuthEventRepository handles the authentication audit trail
type AuthEventRepository interface {
	// Insert inserts a new event
	Insert(ctx context.Context, event *models.AuthEvent) error

	// ListByUser retrieves a user's events newest first with pagination
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuthEvent, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users         UserRepository
	RefreshTokens RefreshTokenRepository
	AuthEvents    AuthEventRepository
}
