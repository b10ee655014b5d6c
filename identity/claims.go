package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims are the Google ID token claims the service reads
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// Identity is a verified Google account
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	Picture       string
}

// AvatarURL returns the picture as an optional avatar
func (i *Identity) AvatarURL() *string {
	if i.Picture == "" {
		return nil
	}
	p := i.Picture
	return &p
}

// identityFromClaims converts verified claims to an Identity. The first and
// last name fall back to splitting the display name, then to the email's
// local part.
func identityFromClaims(claims *Claims) (*Identity, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: email", ErrMissingClaim)
	}

	first, last := claims.GivenName, claims.FamilyName
	if first == "" && last == "" {
		if parts := strings.Fields(claims.Name); len(parts) > 0 {
			first = parts[0]
			last = strings.Join(parts[1:], " ")
		}
	}
	if first == "" {
		first = strings.SplitN(claims.Email, "@", 2)[0]
	}

	return &Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		FirstName:     first,
		LastName:      last,
		Picture:       claims.Picture,
	}, nil
}
