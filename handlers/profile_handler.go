package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/RyanVerWey/Tech-Talk/middleware"
	"github.com/RyanVerWey/Tech-Talk/models"
	"github.com/RyanVerWey/Tech-Talk/services"
	"github.com/RyanVerWey/Tech-Talk/services/accounts"
	"github.com/RyanVerWey/Tech-Talk/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 20
	maxEventLimit     = 100
)

// ProfileService reads and edits member profiles. *accounts.Service satisfies it.
type ProfileService interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetPublicProfile(ctx context.Context, id uuid.UUID) (*models.PublicProfile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd accounts.ProfileUpdate) (*models.User, error)
}

// SessionLister lists live sessions. *tokens.Service satisfies it.
type SessionLister interface {
	Sessions(ctx context.Context, principalID uuid.UUID) ([]*models.RefreshToken, error)
}

// EventLister pages through a member's auth events. *audit.Service satisfies it.
type EventLister interface {
	RecentForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuthEvent, error)
}

// ProfileHandler serves the member-facing account endpoints
type ProfileHandler struct {
	profiles ProfileService
	sessions SessionLister
	events   EventLister
	errors   *ErrorWriter
	logger   *zap.Logger
}

// NewProfileHandler creates a new ProfileHandler
func NewProfileHandler(profiles ProfileService, sessions SessionLister, events EventLister, errs *ErrorWriter, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		sessions: sessions,
		events:   events,
		errors:   errs,
		logger:   logger,
	}
}

// HandleMe handles GET /api/auth/me
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetPrincipalFromContext(r.Context())
	if user == nil {
		h.errors.HandleServiceError(w, services.ErrUnauthenticated)
		return
	}
	_ = utils.WriteOK(w, user, "User profile retrieved successfully")
}

// HandleGetProfile handles GET /api/profile
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetPrincipalFromContext(r.Context())
	if user == nil {
		h.errors.HandleServiceError(w, services.ErrUnauthenticated)
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), user.ID)
	if err != nil {
		h.errors.HandleServiceError(w, err)
		return
	}
	_ = utils.WriteOK(w, profile, "Profile retrieved successfully")
}

// HandleUpdateProfile handles PUT /api/profile
func (h *ProfileHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetPrincipalFromContext(r.Context())
	if user == nil {
		h.errors.HandleServiceError(w, services.ErrUnauthenticated)
		return
	}

	var upd accounts.ProfileUpdate
	if err := utils.DecodeJSON(r, &upd); err != nil {
		h.errors.HandleBadRequest(w, "Invalid request body")
		return
	}

	profile, err := h.profiles.UpdateProfile(r.Context(), user.ID, upd)
	if err != nil {
		h.errors.HandleServiceError(w, err)
		return
	}
	_ = utils.WriteOK(w, profile, "Profile updated successfully")
}

// HandleGetPublicProfile handles GET /api/users/{id}
func (h *ProfileHandler) HandleGetPublicProfile(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleServiceError(w, services.ErrInvalidID)
		return
	}

	profile, err := h.profiles.GetPublicProfile(r.Context(), id)
	if err != nil {
		h.errors.HandleServiceError(w, err)
		return
	}
	_ = utils.WriteOK(w, profile, "User profile retrieved successfully")
}

// HandleListSessions handles GET /api/users/{id}/sessions. Ownership is
// enforced by middleware.
func (h *ProfileHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleServiceError(w, services.ErrInvalidID)
		return
	}

	sessions, err := h.sessions.Sessions(r.Context(), id)
	if err != nil {
		h.errors.HandleServiceError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*models.RefreshToken{}
	}
	_ = utils.WriteOK(w, sessions, "Sessions retrieved successfully")
}

// HandleListEvents handles GET /api/auth/events?limit=&offset=
func (h *ProfileHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetPrincipalFromContext(r.Context())
	if user == nil {
		h.errors.HandleServiceError(w, services.ErrUnauthenticated)
		return
	}

	limit := queryInt(r, "limit", defaultEventLimit)
	if limit <= 0 || limit > maxEventLimit {
		limit = defaultEventLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	events, err := h.events.RecentForUser(r.Context(), user.ID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list auth events",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		h.errors.HandleServiceError(w, services.WrapInternal("failed to list auth events", err))
		return
	}
	if events == nil {
		events = []*models.AuthEvent{}
	}
	_ = utils.WriteOK(w, events, "Auth events retrieved successfully")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
