package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/RyanVerWey/Tech-Talk/models"
	"github.com/RyanVerWey/Tech-Talk/services"
	"github.com/RyanVerWey/Tech-Talk/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TokenValidator validates access tokens and loads their principal.
// *tokens.Service satisfies it.
type TokenValidator interface {
	ValidateAccess(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// RequireAuth is a middleware that requires a valid bearer access token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractBearerToken(r)
		if token == "" {
			m.logger.Debug("missing token", zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, services.CodeUnauthenticated, services.ErrUnauthenticated.Message)
			return
		}

		user, err := m.validator.ValidateAccess(ctx, token)
		if err != nil {
			m.writeAuthError(w, requestID, err)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", user.ID.String()))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, user)))
	})
}

// OptionalAuth attaches the principal when a valid token is present and
// proceeds anonymously otherwise
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.validator.ValidateAccess(r.Context(), token)
		if err != nil {
			m.logger.Debug("optional auth ignored invalid token",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), user)))
	})
}

// RequireRole is a middleware that requires one of roles. It must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			user := GetPrincipalFromContext(ctx)
			if user == nil {
				m.logger.Error("principal not found in context", zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, services.CodeUnauthenticated, "Authentication required")
				return
			}

			if !user.HasRole(roles...) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("user_id", user.ID.String()),
					zap.String("role", string(user.Role)))
				_ = utils.WriteForbidden(w, services.CodeForbidden, services.ErrForbidden.Message, map[string]interface{}{
					"required": roles,
					"current":  user.Role,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireCompleteProfile rejects principals whose profile completeness is
// below minPercent
func (m *AuthMiddleware) RequireCompleteProfile(minPercent int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetPrincipalFromContext(r.Context())
			if user == nil {
				_ = utils.WriteUnauthorized(w, services.CodeUnauthenticated, "Authentication required")
				return
			}

			if current := user.ProfileCompleteness(); current < minPercent {
				_ = utils.WriteForbidden(w, services.CodeIncompleteProfile, services.ErrIncompleteProfile.Message, map[string]interface{}{
					"required": minPercent,
					"current":  current,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnershipOrAdmin lets through admins and the principal whose id is
// the URL parameter param
func (m *AuthMiddleware) RequireOwnershipOrAdmin(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetPrincipalFromContext(r.Context())
			if user == nil {
				_ = utils.WriteUnauthorized(w, services.CodeUnauthenticated, "Authentication required")
				return
			}

			if user.IsAdmin() || chi.URLParam(r, param) == user.ID.String() {
				next.ServeHTTP(w, r)
				return
			}

			m.logger.Warn("ownership check failed",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("user_id", user.ID.String()),
				zap.String("resource_id", chi.URLParam(r, param)))
			_ = utils.WriteForbidden(w, services.CodeForbidden, services.ErrAccessDenied.Message, nil)
		})
	}
}

// writeAuthError translates a token validation failure. Missing and
// inactive principals share one response so callers cannot enumerate accounts.
func (m *AuthMiddleware) writeAuthError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, services.ErrTokenExpired):
		_ = utils.WriteUnauthorized(w, services.CodeTokenExpired, services.ErrTokenExpired.Message)
	case errors.Is(err, services.ErrMalformedToken):
		m.logger.Debug("invalid token", zap.String("request_id", requestID), zap.Error(err))
		_ = utils.WriteUnauthorized(w, services.CodeInvalidToken, services.ErrMalformedToken.Message)
	case errors.Is(err, services.ErrPrincipalNotFound), errors.Is(err, services.ErrPrincipalInactive):
		m.logger.Warn("token for missing or inactive user", zap.String("request_id", requestID), zap.Error(err))
		_ = utils.WriteUnauthorized(w, services.CodeUnauthenticated, services.ErrPrincipalNotFound.Message)
	case services.IsTokenServiceError(err):
		m.logger.Error("token validation unavailable", zap.String("request_id", requestID), zap.Error(err))
		_ = utils.WriteInternalServerError(w, services.CodeTokenServiceFailure, "Authentication service unavailable", "")
	default:
		m.logger.Error("token validation failed", zap.String("request_id", requestID), zap.Error(err))
		_ = utils.WriteInternalServerError(w, services.CodeInternal, "", "")
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header.
// The scheme is case-insensitive.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
