package middleware

import (
	"context"

	"github.com/sqltown/sqltown-server/cognito"
	"github.com/sqltown/sqltown-server/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for verified ID token claims
	ClaimsKey contextKey = "claims"

	// UserKey is the context key for the synced user record
	UserKey contextKey = "user"
)

// WithClaims adds verified token claims to the context
func WithClaims(ctx context.Context, claims *cognito.IDTokenClaims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetClaims retrieves verified token claims from context. The second
// return is false when the request was not authenticated.
func GetClaims(ctx context.Context) (*cognito.IDTokenClaims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*cognito.IDTokenClaims)
	return claims, ok
}

// WithUser adds the synced user record to the context
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// GetUser retrieves the synced user record from context. The second
// return is false when no sync has run for this request.
func GetUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserKey).(*models.User)
	return user, ok
}
