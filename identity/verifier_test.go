package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "client-123.apps.googleusercontent.com"

type signingKey struct {
	kid  string
	priv *rsa.PrivateKey
}

func newSigningKey(t *testing.T, kid string) signingKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return signingKey{kid: kid, priv: priv}
}

func (k signingKey) jwk() JWK {
	return JWK{
		Kid: k.kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(k.priv.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.priv.PublicKey.E)).Bytes()),
	}
}

// jwksServer serves a mutable key set and counts fetches
type jwksServer struct {
	*httptest.Server
	mu      sync.Mutex
	keys    []JWK
	fetches atomic.Int32
}

func newJWKSServer(t *testing.T, keys ...signingKey) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	s.setKeys(keys...)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(JWKS{Keys: s.keys})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...signingKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = s.keys[:0]
	for _, k := range keys {
		s.keys = append(s.keys, k.jwk())
	}
}

func googleClaims(now time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "108234567890",
			Audience:  jwt.ClaimStrings{testClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email:         "ada@example.com",
		EmailVerified: true,
		Name:          "Ada Lovelace",
		GivenName:     "Ada",
		FamilyName:    "Lovelace",
		Picture:       "https://lh3.googleusercontent.com/a/ada",
	}
}

func signIDToken(t *testing.T, key signingKey, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.kid
	signed, err := token.SignedString(key.priv)
	require.NoError(t, err)
	return signed
}

func newTestVerifier(url string) *Verifier {
	return NewVerifier(VerifierConfig{
		ClientID: testClientID,
		JWKSURL:  url,
	})
}

func TestNewVerifier_Defaults(t *testing.T) {
	v := NewVerifier(VerifierConfig{ClientID: testClientID})

	assert.Equal(t, defaultJWKSURL, v.jwksURL)
	assert.Equal(t, time.Hour, v.jwksCacheTTL)
	assert.Equal(t, 10*time.Second, v.httpClient.Timeout)
	assert.NotNil(t, v.keyCache)
}

func TestVerifier_Verify(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	server := newJWKSServer(t, key)
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		v := newTestVerifier(server.URL)
		ident, err := v.Verify(ctx, signIDToken(t, key, googleClaims(time.Now())))
		require.NoError(t, err)

		assert.Equal(t, "108234567890", ident.Subject)
		assert.Equal(t, "ada@example.com", ident.Email)
		assert.True(t, ident.EmailVerified)
		assert.Equal(t, "Ada", ident.FirstName)
		assert.Equal(t, "Lovelace", ident.LastName)
		require.NotNil(t, ident.AvatarURL())
		assert.Equal(t, "https://lh3.googleusercontent.com/a/ada", *ident.AvatarURL())
	})

	t.Run("issuer without scheme", func(t *testing.T) {
		claims := googleClaims(time.Now())
		claims.Issuer = "accounts.google.com"

		_, err := newTestVerifier(server.URL).Verify(ctx, signIDToken(t, key, claims))
		assert.NoError(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		claims := googleClaims(time.Now().Add(-2 * time.Hour))

		_, err := newTestVerifier(server.URL).Verify(ctx, signIDToken(t, key, claims))
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := googleClaims(time.Now())
		claims.Issuer = "https://evil.example.com"

		_, err := newTestVerifier(server.URL).Verify(ctx, signIDToken(t, key, claims))
		assert.ErrorIs(t, err, ErrInvalidIssuer)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := googleClaims(time.Now())
		claims.Audience = jwt.ClaimStrings{"someone-else"}

		_, err := newTestVerifier(server.URL).Verify(ctx, signIDToken(t, key, claims))
		assert.ErrorIs(t, err, ErrInvalidAudience)
	})

	t.Run("signed by unknown key", func(t *testing.T) {
		rogue := newSigningKey(t, "kid-1")

		_, err := newTestVerifier(server.URL).Verify(ctx, signIDToken(t, rogue, googleClaims(time.Now())))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("HS256 rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, googleClaims(time.Now()))
		token.Header["kid"] = "kid-1"
		signed, err := token.SignedString([]byte("shared-secret"))
		require.NoError(t, err)

		_, err = newTestVerifier(server.URL).Verify(ctx, signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing email", func(t *testing.T) {
		claims := googleClaims(time.Now())
		claims.Email = ""

		_, err := newTestVerifier(server.URL).Verify(ctx, signIDToken(t, key, claims))
		assert.ErrorIs(t, err, ErrMissingClaim)
	})
}

func TestVerifier_KeyCaching(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	server := newJWKSServer(t, key)
	v := newTestVerifier(server.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := v.Verify(ctx, signIDToken(t, key, googleClaims(time.Now())))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), server.fetches.Load())

	v.InvalidateCache()
	_, err := v.Verify(ctx, signIDToken(t, key, googleClaims(time.Now())))
	require.NoError(t, err)
	assert.Equal(t, int32(2), server.fetches.Load())
}

func TestVerifier_KeyRotation(t *testing.T) {
	oldKey := newSigningKey(t, "kid-old")
	newKey := newSigningKey(t, "kid-new")
	server := newJWKSServer(t, oldKey)
	v := newTestVerifier(server.URL)
	ctx := context.Background()

	_, err := v.Verify(ctx, signIDToken(t, oldKey, googleClaims(time.Now())))
	require.NoError(t, err)

	server.setKeys(oldKey, newKey)

	_, err = v.Verify(ctx, signIDToken(t, newKey, googleClaims(time.Now())))
	require.NoError(t, err)
	assert.Equal(t, int32(2), server.fetches.Load())
}

func TestVerifier_JWKSUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	key := newSigningKey(t, "kid-1")
	_, err := newTestVerifier(server.URL).Verify(context.Background(), signIDToken(t, key, googleClaims(time.Now())))
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Contains(t, err.Error(), ErrJWKSFetchFailed.Error())
}

func TestIdentityFromClaims_NameFallbacks(t *testing.T) {
	claims := googleClaims(time.Now())
	claims.GivenName, claims.FamilyName = "", ""
	claims.Name = "Grace Brewster Hopper"

	ident, err := identityFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, "Grace", ident.FirstName)
	assert.Equal(t, "Brewster Hopper", ident.LastName)

	claims.Name = ""
	claims.Picture = ""
	ident, err = identityFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, "ada", ident.FirstName)
	assert.Empty(t, ident.LastName)
	assert.Nil(t, ident.AvatarURL())

	claims.Name = " \t "
	ident, err = identityFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, "ada", ident.FirstName)
	assert.Empty(t, ident.LastName)
}
