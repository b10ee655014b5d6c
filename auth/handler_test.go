package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RyanVerWey/Tech-Talk/config"
	"github.com/RyanVerWey/Tech-Talk/identity"
	"github.com/RyanVerWey/Tech-Talk/middleware"
	"github.com/RyanVerWey/Tech-Talk/models"
	"github.com/RyanVerWey/Tech-Talk/services"
	"github.com/RyanVerWey/Tech-Talk/services/accounts"
	"github.com/RyanVerWey/Tech-Talk/services/tokens"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const clientURL = "http://client.test"

// memUsers is an in-memory repositories.UserRepository
type memUsers struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*models.User
	creates int
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[uuid.UUID]*models.User)}
}

func (m *memUsers) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return services.ErrDuplicateEmail
		}
	}
	cp := *user
	m.byID[user.ID] = &cp
	m.creates++
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memUsers) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.GoogleID != nil && *u.GoogleID == googleID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = models.NormalizeEmail(email)
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) LinkGoogleID(ctx context.Context, id uuid.UUID, googleID string, avatar *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.GoogleID = &googleID
	if u.Avatar == nil {
		u.Avatar = avatar
	}
	return nil
}

func (m *memUsers) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].LastLogin = at
	return nil
}

func (m *memUsers) UpdateProfile(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.byID[user.ID] = &cp
	return nil
}

// memSessions is an in-memory repositories.RefreshTokenRepository
type memSessions struct {
	mu     sync.Mutex
	byHash map[string]*models.RefreshToken
}

func newMemSessions() *memSessions {
	return &memSessions{byHash: make(map[string]*models.RefreshToken)}
}

func (m *memSessions) Create(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.byHash[token.TokenHash] = &cp
	return nil
}

func (m *memSessions) GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byHash[tokenHash]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *memSessions) Deactivate(ctx context.Context, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[tokenHash]
	if !ok || !t.IsActive {
		return false, nil
	}
	t.IsActive = false
	return true, nil
}

func (m *memSessions) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.byHash {
		if t.UserID == userID && t.IsActive {
			t.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memSessions) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RefreshToken
	for _, t := range m.byHash {
		if t.UserID == userID && t.UsableAt(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSessions) DeleteExpiredOrInactive(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, t := range m.byHash {
		if !t.UsableAt(now) {
			delete(m.byHash, h)
			n++
		}
	}
	return n, nil
}

type stubProvider struct {
	configured bool
	ident      *identity.Identity
	err        error
	codes      []string
}

func (p *stubProvider) Configured() bool { return p.configured }

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(ctx context.Context, code string) (*identity.Identity, error) {
	p.codes = append(p.codes, code)
	if p.err != nil {
		return nil, p.err
	}
	return p.ident, nil
}

type fixture struct {
	handler  *Handler
	provider *stubProvider
	users    *memUsers
	sessions *memSessions
	tokens   *tokens.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{Environment: "development", Client: config.ClientConfig{URL: clientURL}}

	users := newMemUsers()
	sessions := newMemSessions()
	tokenSvc := tokens.NewService(tokens.Config{Secret: "test-secret-test-secret-test-secret", Issuer: "test"},
		sessions, users, zap.NewNop())
	provider := &stubProvider{
		configured: true,
		ident: &identity.Identity{
			Subject:       "google-ada",
			Email:         "Ada@Example.com",
			EmailVerified: true,
			FirstName:     "Ada",
			LastName:      "Lovelace",
			Picture:       "https://lh3.example.com/ada.png",
		},
	}
	accountSvc := accounts.NewService(users, nil, zap.NewNop())

	return &fixture{
		handler:  NewHandler(cfg, provider, accountSvc, tokenSvc, nil, zap.NewNop()),
		provider: provider,
		users:    users,
		sessions: sessions,
		tokens:   tokenSvc,
	}
}

func callbackRequest(query string, stateCookie string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?"+query, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile")
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: StateCookieName, Value: stateCookie})
	}
	return req
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHandleLogin(t *testing.T) {
	t.Run("sets state cookie and redirects", func(t *testing.T) {
		f := newFixture(t)
		rr := httptest.NewRecorder()
		f.handler.HandleLogin(rr, httptest.NewRequest(http.MethodGet, "/api/auth/google", nil))

		assert.Equal(t, http.StatusFound, rr.Code)
		state := findCookie(rr, StateCookieName)
		require.NotNil(t, state)
		assert.True(t, state.HttpOnly)
		assert.Equal(t, stateCookieMaxAge, state.MaxAge)
		assert.NotEmpty(t, state.Value)

		loc, err := url.Parse(rr.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, state.Value, loc.Query().Get("state"))
	})

	t.Run("unconfigured provider", func(t *testing.T) {
		f := newFixture(t)
		f.provider.configured = false
		rr := httptest.NewRecorder()
		f.handler.HandleLogin(rr, httptest.NewRequest(http.MethodGet, "/api/auth/google", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Nil(t, findCookie(rr, StateCookieName))
	})
}

func TestHandleCallback_NewUser(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	f.handler.HandleCallback(rr, callbackRequest("code=abc&state=s1", "s1"))

	require.Equal(t, http.StatusFound, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/callback", loc.Path)
	assert.Equal(t, []string{"abc"}, f.provider.codes)
	assert.Equal(t, 1, f.users.creates)

	user, err := f.users.GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, user.IsVerified)
	assert.Equal(t, "google-ada", *user.GoogleID)

	// the access token in the redirect authenticates as the new member
	principal, err := f.tokens.ValidateAccess(context.Background(), loc.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.ID)

	var summary models.PublicUserSummary
	require.NoError(t, json.Unmarshal([]byte(loc.Query().Get("user")), &summary))
	assert.Equal(t, user.ID, summary.ID)
	assert.Equal(t, "ada@example.com", summary.Email)

	// the refresh token only travels in the cookie
	refresh := findCookie(rr, RefreshCookieName)
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, RefreshCookiePath, refresh.Path)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), refresh.MaxAge)
	assert.NotContains(t, rr.Header().Get("Location"), refresh.Value)

	stored, err := f.sessions.GetByHash(context.Background(), models.HashToken(refresh.Value))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "mobile", stored.DeviceInfo.DeviceType)

	state := findCookie(rr, StateCookieName)
	require.NotNil(t, state)
	assert.Less(t, state.MaxAge, 0)
}

func TestHandleCallback_LinksExistingEmail(t *testing.T) {
	f := newFixture(t)
	existing := models.NewUser("ada@example.com", "Ada", "Byron")
	require.NoError(t, f.users.Create(context.Background(), existing))
	f.users.creates = 0

	rr := httptest.NewRecorder()
	f.handler.HandleCallback(rr, callbackRequest("code=abc&state=s1", "s1"))

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), clientURL+"/auth/callback?")
	assert.Equal(t, 0, f.users.creates)

	linked, err := f.users.GetByID(context.Background(), existing.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.GoogleID)
	assert.Equal(t, "google-ada", *linked.GoogleID)
}

func TestHandleCallback_Failures(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		cookie  string
		setup   func(f *fixture)
		message string
	}{
		{name: "consent denied", query: "error=access_denied&state=s1", cookie: "s1", message: FailureAccessDenied},
		{name: "provider error", query: "error=server_error", cookie: "s1", message: FailureAuthentication},
		{name: "missing code", query: "state=s1", cookie: "s1", message: FailureAuthentication},
		{name: "missing state cookie", query: "code=abc&state=s1", message: FailureInvalidState},
		{name: "state mismatch", query: "code=abc&state=s2", cookie: "s1", message: FailureInvalidState},
		{
			name: "exchange failure", query: "code=abc&state=s1", cookie: "s1",
			setup:   func(f *fixture) { f.provider.err = errors.New("invalid_grant") },
			message: FailureAuthentication,
		},
		{
			name: "disabled account", query: "code=abc&state=s1", cookie: "s1",
			setup: func(f *fixture) {
				u := models.NewUser("ada@example.com", "Ada", "Lovelace")
				sub := "google-ada"
				u.GoogleID = &sub
				u.IsActive = false
				require.NoError(t, f.users.Create(context.Background(), u))
			},
			message: FailureAccountDisabled,
		},
		{
			name: "unverified email cannot link", query: "code=abc&state=s1", cookie: "s1",
			setup: func(f *fixture) {
				require.NoError(t, f.users.Create(context.Background(), models.NewUser("ada@example.com", "Ada", "Lovelace")))
				f.provider.ident.EmailVerified = false
			},
			message: FailureAuthentication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			rr := httptest.NewRecorder()
			f.handler.HandleCallback(rr, callbackRequest(tt.query, tt.cookie))

			assert.Equal(t, http.StatusFound, rr.Code)
			assert.Equal(t, clientURL+"/auth/error?message="+tt.message, rr.Header().Get("Location"))
			assert.Nil(t, findCookie(rr, RefreshCookieName))
		})
	}
}

func TestHandleCallback_SummaryEncodingFailureIssuesNoSession(t *testing.T) {
	orig := marshalSummary
	marshalSummary = func(v interface{}) ([]byte, error) {
		return nil, errors.New("unsupported value")
	}
	t.Cleanup(func() { marshalSummary = orig })

	f := newFixture(t)
	rr := httptest.NewRecorder()
	f.handler.HandleCallback(rr, callbackRequest("code=abc&state=s1", "s1"))

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, clientURL+"/auth/error?message="+FailureSession, rr.Header().Get("Location"))
	assert.Nil(t, findCookie(rr, RefreshCookieName))
	assert.Empty(t, f.sessions.byHash)
}

func loginCookie(t *testing.T, f *fixture) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	f.handler.HandleCallback(rr, callbackRequest("code=abc&state=s1", "s1"))
	c := findCookie(rr, RefreshCookieName)
	require.NotNil(t, c)
	return c
}

func TestHandleRefresh(t *testing.T) {
	t.Run("cookie token", func(t *testing.T) {
		f := newFixture(t)
		cookie := loginCookie(t, f)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: cookie.Value})
		rr := httptest.NewRecorder()
		f.handler.HandleRefresh(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Token refreshed successfully", body["message"])
		data := body["data"].(map[string]interface{})
		assert.NotEmpty(t, data["accessToken"])
		assert.Equal(t, float64(900), data["expiresIn"])
		assert.NotContains(t, data, "UserID")
	})

	t.Run("body token", func(t *testing.T) {
		f := newFixture(t)
		cookie := loginCookie(t, f)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh",
			strings.NewReader(`{"refreshToken":"`+cookie.Value+`"}`))
		rr := httptest.NewRecorder()
		f.handler.HandleRefresh(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		f := newFixture(t)
		rr := httptest.NewRecorder()
		f.handler.HandleRefresh(rr, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Refresh token required", decodeBody(t, rr)["message"])
	})

	t.Run("revoked token", func(t *testing.T) {
		f := newFixture(t)
		cookie := loginCookie(t, f)
		require.NoError(t, f.tokens.Revoke(context.Background(), cookie.Value))

		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: cookie.Value})
		rr := httptest.NewRecorder()
		f.handler.HandleRefresh(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, services.CodeInvalidRefreshToken, decodeBody(t, rr)["code"])
		cleared := findCookie(rr, RefreshCookieName)
		require.NotNil(t, cleared)
		assert.Less(t, cleared.MaxAge, 0)
	})

	t.Run("garbage token", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "not-a-jwt"})
		rr := httptest.NewRecorder()
		f.handler.HandleRefresh(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func authedRequest(t *testing.T, f *fixture, method, target string) *http.Request {
	t.Helper()
	user, err := f.users.GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.WithPrincipal(req.Context(), user))
}

func TestHandleLogout(t *testing.T) {
	t.Run("revokes the cookie session", func(t *testing.T) {
		f := newFixture(t)
		cookie := loginCookie(t, f)

		req := authedRequest(t, f, http.MethodPost, "/api/auth/logout")
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: cookie.Value})
		rr := httptest.NewRecorder()
		f.handler.HandleLogout(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Logged out successfully", body["message"])

		stored, err := f.sessions.GetByHash(context.Background(), models.HashToken(cookie.Value))
		require.NoError(t, err)
		assert.False(t, stored.IsActive)

		cleared := findCookie(rr, RefreshCookieName)
		require.NotNil(t, cleared)
		assert.Less(t, cleared.MaxAge, 0)
	})

	t.Run("already revoked token still succeeds", func(t *testing.T) {
		f := newFixture(t)
		cookie := loginCookie(t, f)
		require.NoError(t, f.tokens.Revoke(context.Background(), cookie.Value))

		req := authedRequest(t, f, http.MethodPost, "/api/auth/logout")
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: cookie.Value})
		rr := httptest.NewRecorder()
		f.handler.HandleLogout(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("no token still succeeds", func(t *testing.T) {
		f := newFixture(t)
		loginCookie(t, f)

		rr := httptest.NewRecorder()
		f.handler.HandleLogout(rr, authedRequest(t, f, http.MethodPost, "/api/auth/logout"))

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestHandleLogoutAll(t *testing.T) {
	f := newFixture(t)
	first := loginCookie(t, f)
	second := loginCookie(t, f)

	rr := httptest.NewRecorder()
	f.handler.HandleLogoutAll(rr, authedRequest(t, f, http.MethodPost, "/api/auth/logout-all"))

	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeBody(t, rr)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["revoked"])

	for _, c := range []*http.Cookie{first, second} {
		stored, err := f.sessions.GetByHash(context.Background(), models.HashToken(c.Value))
		require.NoError(t, err)
		assert.False(t, stored.IsActive)
	}

	t.Run("requires a principal", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.handler.HandleLogoutAll(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout-all", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
