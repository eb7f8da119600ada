package auth

import (
	"errors"
	"strings"
)

var (
	ErrNotConfigured = errors.New("authentication not configured")
	ErrMissingToken  = errors.New("missing bearer token")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticator tries the identity provider first and falls back to
// HMAC-signed tokens when a secret is configured.
type Authenticator struct {
	verifier TokenVerifier
	secret   string
}

func NewAuthenticator(verifier TokenVerifier, secret string) *Authenticator {
	return &Authenticator{verifier: verifier, secret: secret}
}

func (a *Authenticator) Configured() bool {
	return a.verifier != nil || a.secret != ""
}

func (a *Authenticator) Authenticate(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	if a.verifier != nil {
		id, err := a.verifier.Verify(tokenString)
		if err == nil {
			return id, nil
		}
		if a.secret == "" {
			return nil, err
		}
	}

	if a.secret != "" {
		claims, err := ValidateLegacyToken(tokenString, a.secret)
		if err != nil {
			return nil, err
		}
		return &Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
	}

	return nil, ErrNotConfigured
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
