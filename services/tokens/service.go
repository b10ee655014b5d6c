// Package tokens issues, validates, refreshes and revokes session tokens.
//
// Access tokens are short-lived HS256 JWTs that are never stored. Refresh
// tokens are JWTs of the same shape whose SHA-256 is persisted, so a refresh
// is honoured only while the stored record is active and unexpired.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RyanVerWey/Tech-Talk/models"
	"github.com/RyanVerWey/Tech-Talk/repositories"
	"github.com/RyanVerWey/Tech-Talk/services"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims are the JWT claims carried by both token kinds
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// TokenPair is the result of a successful login
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"-"`
	ExpiresIn    int    `json:"expiresIn"`
}

// AccessGrant is the result of a successful refresh
type AccessGrant struct {
	AccessToken string    `json:"accessToken"`
	ExpiresIn   int       `json:"expiresIn"`
	UserID      uuid.UUID `json:"-"`
}

// PrincipalStore loads users by id. repositories.UserRepository satisfies it.
type PrincipalStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Config holds the signing parameters
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now, used to drive expiry in tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service is the token service
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	tokens     repositories.RefreshTokenRepository
	principals PrincipalStore
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new token service
func NewService(cfg Config, tokens repositories.RefreshTokenRepository, principals PrincipalStore, logger *zap.Logger, opts ...Option) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	s := &Service{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		tokens:     tokens,
		principals: principals,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessTTL returns the access token lifetime
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL returns the refresh token lifetime
func (s *Service) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Issue signs a new access/refresh pair for principalID and persists the
// refresh record
func (s *Service) Issue(ctx context.Context, principalID uuid.UUID, device models.DeviceInfo) (*TokenPair, error) {
	now := s.now()

	access, err := s.sign(principalID, typeAccess, now, s.accessTTL)
	if err != nil {
		return nil, services.ErrTokenIssuance.Wrap(err)
	}

	refresh, err := s.sign(principalID, typeRefresh, now, s.refreshTTL)
	if err != nil {
		return nil, services.ErrTokenIssuance.Wrap(err)
	}

	record := models.NewRefreshToken(principalID, refresh, now.Add(s.refreshTTL), device)
	if err := s.tokens.Create(ctx, record); err != nil {
		s.logger.Error("failed to persist refresh token",
			zap.String("user_id", principalID.String()),
			zap.Error(err))
		return nil, services.ErrTokenIssuance.Wrap(err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

// ValidateAccess verifies an access token and loads its principal
func (s *Service) ValidateAccess(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.parse(token, typeAccess)
	if err != nil {
		return nil, err
	}

	principalID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, services.ErrMalformedToken.Wrap(err)
	}

	return s.loadPrincipal(ctx, principalID)
}

// Refresh mints a new access token from a live refresh token. The refresh
// token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AccessGrant, error) {
	claims, err := s.parse(refreshToken, typeRefresh)
	if err != nil {
		return nil, services.ErrRefreshTokenInvalid.Wrap(err)
	}

	principalID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, services.ErrRefreshTokenInvalid.Wrap(err)
	}

	record, err := s.tokens.GetByHash(ctx, models.HashToken(refreshToken))
	if err != nil {
		return nil, services.ErrTokenStore.Wrap(err)
	}

	now := s.now()
	switch {
	case record == nil:
		return nil, services.ErrRefreshTokenInvalid.Wrap(errors.New("no session for token"))
	case record.UserID != principalID:
		return nil, services.ErrRefreshTokenInvalid.Wrap(errors.New("subject mismatch"))
	case !record.UsableAt(now):
		return nil, services.ErrRefreshTokenInvalid.Wrap(fmt.Errorf("session inactive or expired at %s", record.ExpiresAt.Format(time.RFC3339)))
	}

	if _, err := s.loadPrincipal(ctx, principalID); err != nil {
		return nil, err
	}

	access, err := s.sign(principalID, typeAccess, now, s.accessTTL)
	if err != nil {
		return nil, services.ErrTokenIssuance.Wrap(err)
	}

	return &AccessGrant{
		AccessToken: access,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		UserID:      principalID,
	}, nil
}

// Revoke deactivates the session of a refresh token. Unknown and already
// revoked tokens succeed.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	changed, err := s.tokens.Deactivate(ctx, models.HashToken(refreshToken))
	if err != nil {
		return services.ErrTokenStore.Wrap(err)
	}
	if !changed {
		s.logger.Debug("revoke matched no active session")
	}
	return nil
}

// RevokeAll deactivates every session of a principal
func (s *Service) RevokeAll(ctx context.Context, principalID uuid.UUID) (int64, error) {
	n, err := s.tokens.DeactivateAllForUser(ctx, principalID)
	if err != nil {
		return 0, services.ErrTokenStore.Wrap(err)
	}
	return n, nil
}

// Sessions lists a principal's live sessions
func (s *Service) Sessions(ctx context.Context, principalID uuid.UUID) ([]*models.RefreshToken, error) {
	sessions, err := s.tokens.ListActiveByUser(ctx, principalID, s.now())
	if err != nil {
		return nil, services.ErrTokenStore.Wrap(err)
	}
	return sessions, nil
}

// Cleanup deletes expired and inactive sessions
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpiredOrInactive(ctx, s.now())
	if err != nil {
		return 0, services.ErrTokenStore.Wrap(err)
	}
	return n, nil
}

func (s *Service) sign(principalID uuid.UUID, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   principalID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: tokenType,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (s *Service) parse(tokenString, tokenType string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, services.ErrTokenExpired.Wrap(err)
		}
		return nil, services.ErrMalformedToken.Wrap(err)
	}
	if claims.TokenType != tokenType {
		return nil, services.ErrMalformedToken.Wrap(fmt.Errorf("token type mismatch: %s", claims.TokenType))
	}
	return claims, nil
}

func (s *Service) loadPrincipal(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return nil, services.ErrTokenStore.Wrap(err)
	}
	if user == nil {
		return nil, services.ErrPrincipalNotFound
	}
	if !user.IsActive {
		return nil, services.ErrPrincipalInactive
	}
	return user, nil
}
