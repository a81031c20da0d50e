package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sqltown/sqltown-server/middleware"
	"github.com/sqltown/sqltown-server/models"
	"github.com/sqltown/sqltown-server/services/usersync"
	"github.com/sqltown/sqltown-server/utils"
	"go.uber.org/zap"
)

// UpdateProfileRequest represents a request to update the caller's profile.
// Absent fields are left unchanged.
type UpdateProfileRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Bio         *string `json:"bio,omitempty" validate:"omitempty,max=2000"`
	PhoneNumber *string `json:"phone_number,omitempty" validate:"omitempty,e164"`
	PictureURL  *string `json:"picture_url,omitempty" validate:"omitempty,url,max=2048"`
}

// UserService defines the user operations the auth handlers need
type UserService interface {
	// Get returns the persisted record for a subject
	Get(ctx context.Context, sub string) (*models.User, error)

	// UpdateProfile applies user-editable profile changes
	UpdateProfile(ctx context.Context, sub string, update usersync.ProfileUpdate) (*models.User, error)

	// SoftDelete deactivates a user without removing the row
	SoftDelete(ctx context.Context, sub string) error
}

// AuthHandler handles authenticated profile and session HTTP requests
type AuthHandler struct {
	users  UserService
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(users UserService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		logger: logger,
	}
}

// HandleGetProfile handles GET /api/auth/me
// The user record in context was synced by the middleware on this request.
func (h *AuthHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		h.logger.Error("missing user in context",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())))
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	_ = utils.WriteOK(w, user.Profile())
}

// HandleUpdateProfile handles PUT /api/auth/me
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	user, ok := middleware.GetUser(ctx)
	if !ok {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		_ = utils.WriteBadRequest(w, "Validation failed", utils.GetValidationFields(err))
		return
	}

	updated, err := h.users.UpdateProfile(ctx, user.ID, usersync.ProfileUpdate{
		Name:        req.Name,
		Bio:         req.Bio,
		PhoneNumber: req.PhoneNumber,
		PictureURL:  req.PictureURL,
	})
	if err != nil {
		if errors.Is(err, usersync.ErrUserNotFound) {
			_ = utils.WriteNotFound(w, "User not found")
			return
		}
		h.logger.Error("failed to update profile",
			zap.String("request_id", requestID),
			zap.String("sub", user.ID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to update profile")
		return
	}

	h.logger.Info("profile updated",
		zap.String("request_id", requestID),
		zap.String("sub", user.ID))

	_ = utils.WriteOK(w, updated.Profile())
}

// HandleDeleteAccount handles DELETE /api/auth/me
// Soft delete: the row is retained but hidden from subsequent reads.
func (h *AuthHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	user, ok := middleware.GetUser(ctx)
	if !ok {
		h.logger.Error("missing user in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	if err := h.users.SoftDelete(ctx, user.ID); err != nil {
		if errors.Is(err, usersync.ErrUserNotFound) {
			_ = utils.WriteNotFound(w, "User not found")
			return
		}
		h.logger.Error("failed to delete account",
			zap.String("request_id", requestID),
			zap.String("sub", user.ID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to delete account")
		return
	}

	h.logger.Info("account deleted",
		zap.String("request_id", requestID),
		zap.String("sub", user.ID))

	utils.WriteNoContent(w)
}

// HandleLogout handles POST /api/auth/logout
// Tokens are stateless so there is nothing to revoke server-side; the
// endpoint exists so clients have a single place to end a session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	h.logger.Info("user logged out",
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		zap.String("sub", claims.Sub()))

	_ = utils.WriteOK(w, map[string]string{"message": "Logged out"})
}

// HandlePublic handles GET /api/auth/public
// Works with or without a token; greets the caller by claims when present.
func (h *AuthHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"message":       "This endpoint is public",
		"authenticated": false,
	}

	if claims, ok := middleware.GetClaims(r.Context()); ok {
		response["authenticated"] = true
		response["sub"] = claims.Sub()
		if claims.Email != "" {
			response["email"] = claims.Email
		}
	}

	_ = utils.WriteOK(w, response)
}
