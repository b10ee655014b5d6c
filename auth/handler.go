// Package auth implements the Google OAuth handshake and the session
// endpoints built on it: refresh, logout and logout from every device.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/RyanVerWey/Tech-Talk/config"
	"github.com/RyanVerWey/Tech-Talk/identity"
	"github.com/RyanVerWey/Tech-Talk/internal/observability"
	"github.com/RyanVerWey/Tech-Talk/middleware"
	"github.com/RyanVerWey/Tech-Talk/models"
	"github.com/RyanVerWey/Tech-Talk/services"
	"github.com/RyanVerWey/Tech-Talk/services/audit"
	"github.com/RyanVerWey/Tech-Talk/services/tokens"
	"github.com/RyanVerWey/Tech-Talk/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// StateCookieName is the cookie name for OAuth state (CSRF)
	StateCookieName = "oauth_state"
	// RefreshCookieName carries the refresh token; it is never put in a URL
	RefreshCookieName = "refreshToken"
	// RefreshCookiePath scopes the refresh cookie to the auth endpoints
	RefreshCookiePath = "/api/auth"

	stateCookieMaxAge = 600
)

// Failure codes placed in the client error redirect
const (
	FailureAccessDenied    = "access_denied"
	FailureInvalidState    = "invalid_state"
	FailureAuthentication  = "authentication_failed"
	FailureAccountDisabled = "account_disabled"
	FailureSession         = "session_error"
)

var marshalSummary = json.Marshal

// IdentityProvider runs the OAuth code flow. *identity.Provider satisfies it.
type IdentityProvider interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*identity.Identity, error)
}

// AccountResolver maps a provider identity to a member. *accounts.Service satisfies it.
type AccountResolver interface {
	ResolveGoogleIdentity(ctx context.Context, ident *identity.Identity) (*models.User, bool, error)
}

// SessionManager issues and revokes sessions. *tokens.Service satisfies it.
type SessionManager interface {
	Issue(ctx context.Context, principalID uuid.UUID, device models.DeviceInfo) (*tokens.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*tokens.AccessGrant, error)
	Revoke(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, principalID uuid.UUID) (int64, error)
	RefreshTTL() time.Duration
}

// Handler handles the OAuth flow and the session endpoints
type Handler struct {
	clientURL string
	secure    bool
	provider  IdentityProvider
	accounts  AccountResolver
	sessions  SessionManager
	audit     *audit.Service
	logger    *zap.Logger
}

// NewHandler creates a new auth handler. auditSvc may be nil.
func NewHandler(cfg *config.Config, provider IdentityProvider, accounts AccountResolver, sessions SessionManager, auditSvc *audit.Service, logger *zap.Logger) *Handler {
	return &Handler{
		clientURL: cfg.Client.URL,
		secure:    cfg.IsProduction(),
		provider:  provider,
		accounts:  accounts,
		sessions:  sessions,
		audit:     auditSvc,
		logger:    logger,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleLogin redirects to the Google consent page
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.provider.Configured() {
		h.logger.Error("google oauth not configured")
		_ = utils.WriteInternalServerError(w, services.CodeInternal, "Authentication not configured", "")
		return
	}

	state, err := generateSecureState()
	if err != nil {
		h.logger.Error("failed to generate state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, services.CodeInternal, "Failed to initiate login", "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback completes the OAuth flow: it exchanges the code, resolves
// the member, opens a session and hands the access token to the client.
// Every failure ends in a redirect to the client error page.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meta := requestMeta(r)
	q := r.URL.Query()

	stateCookie, cookieErr := r.Cookie(StateCookieName)
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.Info("google consent not granted",
			zap.String("request_id", meta.RequestID),
			zap.String("provider_error", providerErr))
		code := FailureAuthentication
		if providerErr == FailureAccessDenied {
			code = FailureAccessDenied
		}
		h.fail(w, r, meta, code)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.fail(w, r, meta, FailureAuthentication)
		return
	}

	state := q.Get("state")
	if cookieErr != nil || state == "" || stateCookie.Value != state {
		h.logger.Warn("oauth state mismatch", zap.String("request_id", meta.RequestID))
		h.fail(w, r, meta, FailureInvalidState)
		return
	}

	ident, err := h.provider.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("google code exchange failed",
			zap.String("request_id", meta.RequestID),
			zap.Error(err))
		h.fail(w, r, meta, FailureAuthentication)
		return
	}

	user, created, err := h.accounts.ResolveGoogleIdentity(ctx, ident)
	if err != nil {
		failure := FailureAuthentication
		if errors.Is(err, services.ErrAccountDisabled) {
			failure = FailureAccountDisabled
		}
		h.logger.Warn("could not resolve google identity",
			zap.String("request_id", meta.RequestID),
			zap.Error(err))
		h.fail(w, r, meta, failure)
		return
	}

	summary, err := marshalSummary(user.Summary())
	if err != nil {
		h.logger.Error("failed to encode user summary",
			zap.String("request_id", meta.RequestID),
			zap.Error(err))
		h.fail(w, r, meta, FailureSession)
		return
	}

	device := models.DeviceInfo{
		UserAgent:  r.UserAgent(),
		IP:         meta.IP,
		DeviceType: models.DeviceTypeFromUserAgent(r.UserAgent()),
	}
	pair, err := h.sessions.Issue(ctx, user.ID, device)
	if err != nil {
		h.logger.Error("failed to issue session",
			zap.String("request_id", meta.RequestID),
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		h.fail(w, r, meta, FailureSession)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)

	observability.RecordLogin("success")
	h.audit.LoginSucceeded(user.ID, meta, created)
	h.logger.Info("google login completed",
		zap.String("request_id", meta.RequestID),
		zap.String("user_id", user.ID.String()),
		zap.Bool("new_account", created))

	params := url.Values{
		"token": {pair.AccessToken},
		"user":  {string(summary)},
	}
	http.Redirect(w, r, h.clientURL+"/auth/callback?"+params.Encode(), http.StatusFound)
}

// HandleRefresh mints a new access token from the body or cookie refresh token
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	meta := requestMeta(r)

	token := h.refreshTokenFrom(r)
	if token == "" {
		_ = utils.WriteUnauthorized(w, services.CodeInvalidRefreshToken, "Refresh token required")
		return
	}

	grant, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		if services.IsUnauthorizedError(err) {
			observability.RecordRefresh("invalid")
			h.audit.RefreshFailed(meta, services.GetErrorCode(err))
			h.logger.Info("refresh rejected",
				zap.String("request_id", meta.RequestID),
				zap.Error(err))
			h.clearRefreshCookie(w)
			_ = utils.WriteUnauthorized(w, services.CodeInvalidRefreshToken, services.ErrRefreshTokenInvalid.Message)
			return
		}
		observability.RecordRefresh("error")
		h.logger.Error("refresh failed",
			zap.String("request_id", meta.RequestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, services.CodeTokenServiceFailure, "Token refresh failed", "")
		return
	}

	observability.RecordRefresh("success")
	h.audit.TokenRefreshed(grant.UserID, meta)
	_ = utils.WriteOK(w, grant, "Token refreshed successfully")
}

// HandleLogout revokes the presented refresh token. It always succeeds;
// revoke failures are only logged.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	meta := requestMeta(r)

	if token := h.refreshTokenFrom(r); token != "" {
		if err := h.sessions.Revoke(r.Context(), token); err != nil {
			h.logger.Error("failed to revoke refresh token on logout",
				zap.String("request_id", meta.RequestID),
				zap.Error(err))
		}
	}

	h.clearRefreshCookie(w)
	if user := middleware.GetPrincipalFromContext(r.Context()); user != nil {
		h.audit.Logout(user.ID, meta)
	}
	_ = utils.WriteOK(w, nil, "Logged out successfully")
}

// HandleLogoutAll revokes every session of the principal
func (h *Handler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	meta := requestMeta(r)
	user := middleware.GetPrincipalFromContext(r.Context())
	if user == nil {
		_ = utils.WriteUnauthorized(w, services.CodeUnauthenticated, "Authentication required")
		return
	}

	revoked, err := h.sessions.RevokeAll(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to revoke all sessions",
			zap.String("request_id", meta.RequestID),
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, services.CodeTokenServiceFailure, "Failed to log out of all sessions", "")
		return
	}

	h.clearRefreshCookie(w)
	h.audit.LogoutAll(user.ID, meta, revoked)
	_ = utils.WriteOK(w, map[string]int64{"revoked": revoked}, "Logged out of all sessions")
}

// fail redirects to the client error page with a failure code
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, meta audit.RequestMeta, code string) {
	observability.RecordLogin("failure")
	h.audit.LoginFailed(meta, code)
	http.Redirect(w, r, h.clientURL+"/auth/error?message="+url.QueryEscape(code), http.StatusFound)
}

// refreshTokenFrom reads the JSON body first, then the cookie
func (h *Handler) refreshTokenFrom(r *http.Request) string {
	var body refreshRequest
	if err := utils.DecodeJSON(r, &body); err == nil && body.RefreshToken != "" {
		return body.RefreshToken
	}
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     RefreshCookiePath,
		MaxAge:   int(h.sessions.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func requestMeta(r *http.Request) audit.RequestMeta {
	return audit.RequestMeta{
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func generateSecureState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
