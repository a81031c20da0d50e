package usersync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sqltown/sqltown-server/cognito"
	"github.com/sqltown/sqltown-server/models"
	"github.com/sqltown/sqltown-server/repositories"
	"go.uber.org/zap"
)

var (
	// ErrInvalidClaims is returned when the token claims are missing
	// required fields (sub or email). This indicates the identity
	// provider violated the expected contract, not a caller error.
	ErrInvalidClaims = errors.New("claims missing required fields")

	// ErrSyncFailed is returned when persisting the user record fails.
	// Kept distinct from verification errors so callers can tell "your
	// credentials are fine but our system failed" from "unauthorized".
	ErrSyncFailed = errors.New("failed to sync user")

	// ErrUserNotFound is returned when a profile operation targets a
	// user that does not exist or has been soft-deleted
	ErrUserNotFound = errors.New("user not found")
)

// ProfileUpdate holds the user-editable profile fields. Nil means
// "leave unchanged".
type ProfileUpdate struct {
	Name        *string
	Bio         *string
	PhoneNumber *string
	PictureURL  *string
}

// Service maps verified ID token claims to persisted user records
type Service struct {
	users  repositories.UserRepository
	tx     repositories.TransactionManager
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new user sync service
func NewService(users repositories.UserRepository, tx repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		users:  users,
		tx:     tx,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Sync creates or updates the user record for the given verified claims.
// Idempotent: safe to invoke on every authenticated request. Exactly one
// insert-or-update is issued per call, except when two concurrent first
// requests for the same subject race: the losing insert hits the primary
// key constraint and is retried exactly once as an update.
func (s *Service) Sync(ctx context.Context, claims *cognito.IDTokenClaims) (*models.User, error) {
	if claims.Sub() == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: sub or email", ErrInvalidClaims)
	}

	user, err := s.syncOnce(ctx, claims)
	if errors.Is(err, repositories.ErrDuplicate) {
		// Lost the insert race; the row exists now, take the update path.
		// The retry runs in a fresh transaction because the losing insert
		// aborted the first one.
		user, err = s.syncOnce(ctx, claims)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidClaims) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	return user, nil
}

// syncOnce performs one read-modify-write within a single transaction
func (s *Service) syncOnce(ctx context.Context, claims *cognito.IDTokenClaims) (*models.User, error) {
	var user *models.User

	err := s.tx.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		// Lookup includes soft-deleted rows: a returning soft-deleted
		// user must take the update path rather than collide with the
		// primary key. Soft-deleted users are not reactivated here.
		existing, err := s.users.GetBySubAnyState(ctx, claims.Sub())
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		if existing != nil {
			user = s.applyLogin(existing, claims)
			return s.users.Update(ctx, user)
		}

		user = s.newFromClaims(claims)
		return s.users.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// applyLogin refreshes the fields carried by the ID token on an existing record
func (s *Service) applyLogin(user *models.User, claims *cognito.IDTokenClaims) *models.User {
	now := s.now()
	user.LastLogin = now
	user.UpdatedAt = now

	if user.Email != claims.Email {
		user.Email = claims.Email
	}
	user.EmailVerified = claims.EmailVerified

	if claims.Name != "" && user.Name != claims.Name {
		user.Name = claims.Name
	}
	if claims.Picture != "" && user.PictureURL != claims.Picture {
		user.PictureURL = claims.Picture
	}

	return user
}

// newFromClaims builds a fresh record from first-login claims
func (s *Service) newFromClaims(claims *cognito.IDTokenClaims) *models.User {
	user := models.NewUser(claims.Sub(), claims.Email)
	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.LastLogin = now
	user.EmailVerified = claims.EmailVerified
	user.CognitoUsername = claims.CognitoUsername
	user.Name = claims.Name
	user.PictureURL = claims.Picture
	user.AuthProvider = claims.Provider()

	s.logger.Info("creating user",
		zap.String("sub", user.ID),
		zap.String("provider", user.AuthProvider))

	return user
}

// Get returns the persisted record for a subject, excluding soft-deleted users
func (s *Service) Get(ctx context.Context, sub string) (*models.User, error) {
	user, err := s.users.GetBySub(ctx, sub)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile applies user-editable profile changes and returns the
// updated record
func (s *Service) UpdateProfile(ctx context.Context, sub string, update ProfileUpdate) (*models.User, error) {
	var user *models.User

	err := s.tx.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		existing, err := s.users.GetBySub(ctx, sub)
		if err != nil {
			return err
		}

		if update.Name != nil {
			existing.Name = *update.Name
		}
		if update.Bio != nil {
			existing.Bio = *update.Bio
		}
		if update.PhoneNumber != nil {
			existing.PhoneNumber = *update.PhoneNumber
		}
		if update.PictureURL != nil {
			existing.PictureURL = *update.PictureURL
		}
		existing.UpdatedAt = s.now()

		user = existing
		return s.users.UpdateProfile(ctx, existing)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

// SoftDelete deactivates a user without removing the row
func (s *Service) SoftDelete(ctx context.Context, sub string) error {
	if err := s.users.SoftDelete(ctx, sub); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.logger.Info("user soft deleted", zap.String("sub", sub))
	return nil
}
