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

const refreshTokenColumns = `
	id, token_hash, user_id, expires_at, is_active,
	device_user_agent, device_ip, device_type, created_at, updated_at`

// RefreshTokenRepository implements the repositories.RefreshTokenRepository interface
type RefreshTokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *DB, logger *zap.Logger) repositories.RefreshTokenRepository {
	return &RefreshTokenRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new refresh token record
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (` + refreshTokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	executor := conn(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		token.ID,
		token.TokenHash,
		token.UserID,
		token.ExpiresAt,
		token.IsActive,
		token.DeviceInfo.UserAgent,
		token.DeviceInfo.IP,
		token.DeviceInfo.DeviceType,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("create refresh token", err)
	}

	r.logger.Debug("refresh token stored",
		zap.String("id", token.ID.String()),
		zap.String("user_id", token.UserID.String()),
		zap.Time("expires_at", token.ExpiresAt))
	return nil
}

// GetByHash retrieves a record by token hash
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	executor := conn(ctx, r.db)
	token, err := scanRefreshToken(executor.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return token, nil
}

// Deactivate marks a record inactive
func (r *RefreshTokenRepository) Deactivate(ctx context.Context, tokenHash string) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET is_active = false, updated_at = $2
		WHERE token_hash = $1 AND is_active = true
	`

	executor := conn(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, tokenHash, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to deactivate refresh token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// DeactivateAllForUser marks every active session of a user inactive
func (r *RefreshTokenRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET is_active = false, updated_at = $2
		WHERE user_id = $1 AND is_active = true
	`

	executor := conn(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate user sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Debug("user sessions deactivated",
		zap.String("user_id", userID.String()),
		zap.Int64("count", rows))
	return rows, nil
}

// ListActiveByUser returns the user's live sessions newest first
func (r *RefreshTokenRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.RefreshToken, error) {
	query := `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND is_active = true AND expires_at > $2
		ORDER BY created_at DESC
	`

	executor := conn(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	tokens := make([]*models.RefreshToken, 0)
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return tokens, nil
}

// DeleteExpiredOrInactive removes dead records
func (r *RefreshTokenRepository) DeleteExpiredOrInactive(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR is_active = false
	`

	executor := conn(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

func scanRefreshToken(row rowScanner) (*models.RefreshToken, error) {
	token := &models.RefreshToken{}
	err := row.Scan(
		&token.ID,
		&token.TokenHash,
		&token.UserID,
		&token.ExpiresAt,
		&token.IsActive,
		&token.DeviceInfo.UserAgent,
		&token.DeviceInfo.IP,
		&token.DeviceInfo.DeviceType,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return token, nil
}
