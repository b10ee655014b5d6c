package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RyanVerWey/Tech-Talk/services"
	"golang.org/x/oauth2"
)

// Google's OAuth 2.0 endpoints
const (
	GoogleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL = "https://oauth2.googleapis.com/token"
)

// Scopes requested at consent
var Scopes = []string{"openid", "profile", "email"}

// ErrNoIDToken is returned when the token endpoint omits the id_token
var ErrNoIDToken = errors.New("token response has no id_token")

// ProviderConfig holds the OAuth client registration
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	HTTPTimeout  time.Duration
}

// TokenVerifier verifies an ID token. *Verifier satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// Provider runs the Google authorization code flow
type Provider struct {
	oauth      *oauth2.Config
	verifier   TokenVerifier
	httpClient *http.Client
}

// NewProvider creates a Google provider. Empty endpoint URLs use Google's.
func NewProvider(cfg ProviderConfig, verifier TokenVerifier) *Provider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = GoogleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = GoogleTokenURL
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		verifier:   verifier,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Configured reports whether client credentials were supplied
func (p *Provider) Configured() bool {
	return p.oauth.ClientID != "" && p.oauth.ClientSecret != ""
}

// AuthCodeURL returns the consent page URL carrying state
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for tokens and verifies the ID token.
// Every failure is a services.ErrProviderExchange carrying the cause.
func (p *Provider) Exchange(ctx context.Context, code string) (*Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, services.ErrProviderExchange.Wrap(fmt.Errorf("code exchange failed: %w", err))
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, services.ErrProviderExchange.Wrap(ErrNoIDToken)
	}

	ident, err := p.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, services.ErrProviderExchange.Wrap(fmt.Errorf("id token verification failed: %w", err))
	}
	return ident, nil
}
