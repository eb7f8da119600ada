package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/config"
)

const discoveryTimeout = 10 * time.Second

var errNoSubject = errors.New("token has no subject")

// TokenVerifier turns an identity-provider token into the caller.
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// oidcClaims holds only what an Identity needs.
type oidcClaims struct {
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	jwt.RegisteredClaims
}

// OIDCVerifier checks asymmetric tokens against the issuer's published keys.
type OIDCVerifier struct {
	keys   keyfunc.Keyfunc
	parser *jwt.Parser
}

// NewOIDCVerifier discovers the issuer's key set and keeps it refreshed
// until ctx ends, so ctx should live as long as the server.
func NewOIDCVerifier(ctx context.Context, cfg config.OIDCConfig, log zerolog.Logger) (*OIDCVerifier, error) {
	issuer := strings.TrimRight(cfg.Issuer, "/")
	if issuer == "" {
		return nil, errors.New("oidc issuer is required")
	}

	client := &http.Client{Timeout: discoveryTimeout}
	jwksURL, err := discoverJWKSURL(ctx, client, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover key set: %w", err)
	}

	keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load key set: %w", err)
	}

	log.Info().Str("issuer", issuer).Str("jwks_url", jwksURL).Msg("oidc verifier ready")
	return newOIDCVerifier(keys, issuer, cfg.ClientID), nil
}

func newOIDCVerifier(keys keyfunc.Keyfunc, issuer, audience string) *OIDCVerifier {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "PS256"}),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &OIDCVerifier{keys: keys, parser: jwt.NewParser(opts...)}
}

func discoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery returned status %d", resp.StatusCode)
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("discovery document has no jwks_uri")
	}
	return doc.JWKSURI, nil
}

// Verify returns the caller named by the token's subject.
func (v *OIDCVerifier) Verify(tokenString string) (*Identity, error) {
	var claims oidcClaims
	if _, err := v.parser.ParseWithClaims(tokenString, &claims, v.keys.Keyfunc); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errNoSubject
	}

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email, Name: name}, nil
}
