package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RyanVerWey/Tech-Talk/models"
	"github.com/RyanVerWey/Tech-Talk/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const authEventColumns = `
	id, user_id, type, ip_address, user_agent, request_id, details, created_at`

// AuthEventRepository implements the repositories.AuthEventRepository interface
type AuthEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuthEventRepository creates a new auth event repository
func NewAuthEventRepository(db *DB, logger *zap.Logger) repositories.AuthEventRepository {
	return &AuthEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new auth event
func (r *AuthEventRepository) Insert(ctx context.Context, event *models.AuthEvent) error {
	query := `
		INSERT INTO auth_events (` + authEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := conn(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.Type,
		event.IPAddress,
		event.UserAgent,
		event.RequestID,
		nullableJSON(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}

	r.logger.Debug("auth event inserted", zap.String("id", event.ID.String()), zap.String("type", string(event.Type)))
	return nil
}

// ListByUser retrieves a user's events with pagination
func (r *AuthEventRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuthEvent, error) {
	query := `
		SELECT ` + authEventColumns + `
		FROM auth_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	executor := conn(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query auth events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.AuthEvent, 0)
	for rows.Next() {
		event := &models.AuthEvent{}
		var details []byte
		err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.Type,
			&event.IPAddress,
			&event.UserAgent,
			&event.RequestID,
			&details,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		if len(details) > 0 {
			event.Details = json.RawMessage(details)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auth event rows: %w", err)
	}

	return events, nil
}

// nullableJSON maps an empty document to SQL NULL
func nullableJSON(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
