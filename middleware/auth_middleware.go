package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sqltown/sqltown-server/cognito"
	"github.com/sqltown/sqltown-server/models"
	"github.com/sqltown/sqltown-server/utils"
	"go.uber.org/zap"
)

// TokenVerifier validates an ID token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*cognito.IDTokenClaims, error)
}

// UserSyncer upserts a user record from verified claims
type UserSyncer interface {
	Sync(ctx context.Context, claims *cognito.IDTokenClaims) (*models.User, error)
}

// AuthMiddleware binds verified claims (and optionally the synced user
// record) into the request context
type AuthMiddleware struct {
	verifier TokenVerifier
	syncer   UserSyncer
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, syncer UserSyncer, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		syncer:   syncer,
		logger:   logger,
	}
}

// RequireAuth requires a valid bearer token and puts the verified claims
// into the request context. No database interaction.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireUser requires a valid bearer token and additionally syncs the
// user record, so every authenticated request refreshes the stored user.
// A sync failure is a server error, distinct from a verification failure.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.authenticate(w, r)
		if !ok {
			return
		}

		ctx := WithClaims(r.Context(), claims)

		user, err := m.syncer.Sync(ctx, claims)
		if err != nil {
			m.logger.Error("user sync failed",
				zap.String("request_id", chimiddleware.GetReqID(ctx)),
				zap.String("sub", claims.Sub()),
				zap.Error(err))
			_ = utils.WriteError(w, http.StatusInternalServerError, "sync_failed", "Failed to sync user", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
	})
}

// OptionalAuth puts verified claims into the context when a valid bearer
// token is present, and passes the request through anonymously otherwise.
// Invalid tokens are treated as absent rather than rejected.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			m.logger.Debug("optional auth: ignoring invalid token",
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// authenticate extracts and verifies the bearer token, writing the error
// response itself when verification fails
func (m *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request) (*cognito.IDTokenClaims, bool) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	token := extractBearerToken(r)
	if token == "" {
		m.logger.Warn("missing bearer token", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
		return nil, false
	}

	claims, err := m.verifier.Verify(ctx, token)
	if err != nil {
		// A JWKS outage is our problem, not the caller's
		if errors.Is(err, cognito.ErrJWKSUnavailable) {
			m.logger.Error("signing keys unavailable",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "Authentication temporarily unavailable", nil)
			return nil, false
		}

		m.logger.Warn("token verification failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Invalid or expired token")
		return nil, false
	}

	return claims, true
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
