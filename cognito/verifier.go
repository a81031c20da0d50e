package cognito

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized is returned for any token verification failure
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrUnauthorized)

	// ErrInvalidIssuer is returned when the token issuer does not match the user pool
	ErrInvalidIssuer = fmt.Errorf("%w: invalid issuer", ErrUnauthorized)

	// ErrInvalidAudience is returned when the token audience does not contain the client ID
	ErrInvalidAudience = fmt.Errorf("%w: invalid audience", ErrUnauthorized)

	// ErrWrongTokenUse is returned when the token is not an ID token
	ErrWrongTokenUse = fmt.Errorf("%w: wrong token type", ErrUnauthorized)
)

// KeyResolver resolves a key ID to an RSA public key. Implemented by
// *KeySet; tests inject fixed key sets without network access.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// Verifier validates Cognito ID tokens against the user pool's signing keys
type Verifier struct {
	keys     KeyResolver
	issuer   string
	clientID string
}

// Config holds configuration for the Verifier and its KeySet
type Config struct {
	Region      string
	UserPoolID  string
	ClientID    string
	Issuer      string // derived from Region/UserPoolID when empty
	JWKSURL     string // derived from Region/UserPoolID when empty
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
}

// IssuerURL returns the configured issuer, deriving the Cognito issuer URL
// from the region and user pool ID when unset.
func (c Config) IssuerURL() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// JWKSEndpoint returns the configured JWKS URL, deriving the well-known
// Cognito endpoint when unset.
func (c Config) JWKSEndpoint() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return c.IssuerURL() + "/.well-known/jwks.json"
}

// NewVerifier creates a verifier with its own TTL-cached key set
func NewVerifier(cfg Config) *Verifier {
	return NewVerifierWithKeys(cfg, NewKeySet(cfg.JWKSEndpoint(), cfg.CacheTTL, cfg.HTTPTimeout))
}

// NewVerifierWithKeys creates a verifier using the given key resolver
func NewVerifierWithKeys(cfg Config, keys KeyResolver) *Verifier {
	return &Verifier{
		keys:     keys,
		issuer:   cfg.IssuerURL(),
		clientID: cfg.ClientID,
	}
}

// Issuer returns the issuer tokens are validated against
func (v *Verifier) Issuer() string {
	return v.issuer
}

// Verify validates the token's signature, issuer, audience, expiry and
// token-use claim and returns the full claim set on success. Verification
// failures wrap ErrUnauthorized; a JWKS fetch failure surfaces as
// ErrJWKSUnavailable so callers can distinguish an upstream outage from a
// credentials problem.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*IDTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IDTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("kid header not found")
		}

		key, err := v.keys.Resolve(ctx, kid)
		if err != nil {
			return nil, err
		}
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	if err != nil {
		// An upstream JWKS outage is not the caller's fault; keep it
		// distinguishable from a bad token.
		if errors.Is(err, ErrJWKSUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrJWKSUnavailable, err)
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*IDTokenClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}

	if claims.Issuer != v.issuer {
		return nil, ErrInvalidIssuer
	}

	if !containsAudience(claims.Audience, v.clientID) {
		return nil, ErrInvalidAudience
	}

	if claims.TokenUse != "id" {
		return nil, ErrWrongTokenUse
	}

	return claims, nil
}

// containsAudience checks if the audience list contains the expected client ID
func containsAudience(audiences jwt.ClaimStrings, clientID string) bool {
	for _, aud := range audiences {
		if aud == clientID {
			return true
		}
	}
	return false
}
