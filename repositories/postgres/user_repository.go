package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RyanVerWey/Tech-Talk/models"
	"github.com/RyanVerWey/Tech-Talk/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const userColumns = `
	id, google_id, email, first_name, last_name, display_name, avatar, bio,
	graduation_year, degree, major, current_position, company,
	location_city, location_state, location_country,
	social_linkedin, social_github, social_twitter, social_portfolio,
	has_joined_network, network_joined_at, is_active, is_verified, role,
	last_login, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	`

	executor := conn(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.GoogleID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.DisplayName,
		user.Avatar,
		user.Bio,
		user.GraduationYear,
		user.Degree,
		user.Major,
		user.CurrentPosition,
		user.Company,
		user.Location.City,
		user.Location.State,
		user.Location.Country,
		user.SocialLinks.LinkedIn,
		user.SocialLinks.GitHub,
		user.SocialLinks.Twitter,
		user.SocialLinks.Portfolio,
		user.HasJoinedNetwork,
		user.NetworkJoinedAt,
		user.IsActive,
		user.IsVerified,
		user.Role,
		user.LastLogin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("create user", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("email", user.Email))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByGoogleID retrieves a user by Google subject
func (r *UserRepository) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return r.getOne(ctx, "google_id = $1", googleID)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "email = $1", models.NormalizeEmail(email))
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	executor := conn(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// LinkGoogleID attaches a Google subject to an existing account
func (r *UserRepository) LinkGoogleID(ctx context.Context, id uuid.UUID, googleID string, avatar *string) error {
	query := `
		UPDATE users
		SET google_id = $2, avatar = COALESCE(NULLIF(avatar, ''), $3), updated_at = $4
		WHERE id = $1
	`

	executor := conn(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, googleID, avatar, time.Now().UTC())
	if err != nil {
		return mapWriteError("link google id", err)
	}
	if err := expectOneRow(result, "user", id); err != nil {
		return err
	}

	r.logger.Debug("google account linked", zap.String("id", id.String()))
	return nil
}

// UpdateLastLogin stamps the user's last login
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_login = $2 WHERE id = $1`

	executor := conn(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return expectOneRow(result, "user", id)
}

// UpdateProfile persists the editable profile fields
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, display_name = $4, bio = $5,
		    graduation_year = $6, degree = $7, major = $8, current_position = $9,
		    company = $10, location_city = $11, location_state = $12, location_country = $13,
		    social_linkedin = $14, social_github = $15, social_twitter = $16,
		    social_portfolio = $17, updated_at = $18
		WHERE id = $1
	`

	user.UpdatedAt = time.Now().UTC()

	executor := conn(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.DisplayName,
		user.Bio,
		user.GraduationYear,
		user.Degree,
		user.Major,
		user.CurrentPosition,
		user.Company,
		user.Location.City,
		user.Location.State,
		user.Location.Country,
		user.SocialLinks.LinkedIn,
		user.SocialLinks.GitHub,
		user.SocialLinks.Twitter,
		user.SocialLinks.Portfolio,
		user.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("update user profile", err)
	}
	if err := expectOneRow(result, "user", user.ID); err != nil {
		return err
	}

	r.logger.Debug("user profile updated", zap.String("id", user.ID.String()))
	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.GoogleID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.DisplayName,
		&user.Avatar,
		&user.Bio,
		&user.GraduationYear,
		&user.Degree,
		&user.Major,
		&user.CurrentPosition,
		&user.Company,
		&user.Location.City,
		&user.Location.State,
		&user.Location.Country,
		&user.SocialLinks.LinkedIn,
		&user.SocialLinks.GitHub,
		&user.SocialLinks.Twitter,
		&user.SocialLinks.Portfolio,
		&user.HasJoinedNetwork,
		&user.NetworkJoinedAt,
		&user.IsActive,
		&user.IsVerified,
		&user.Role,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func expectOneRow(result sql.Result, entity string, id uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
