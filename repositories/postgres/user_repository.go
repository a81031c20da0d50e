package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sqltown/sqltown-server/models"
	"github.com/sqltown/sqltown-server/repositories"
	"go.uber.org/zap"
)

const userColumns = `id, email, email_verified, cognito_username, name, picture_url,
		auth_provider, phone_number, bio, preferences, created_at, updated_at,
		last_login, is_active, deleted_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new user. A unique violation (primary key on the
// Cognito sub or the email uniqueness constraint) is mapped to
// repositories.ErrDuplicate so the synchronizer can retry as an update.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, email_verified, cognito_username, name, picture_url,
			auth_provider, phone_number, bio, preferences, created_at, updated_at, last_login, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.EmailVerified,
		user.CognitoUsername,
		user.Name,
		user.PictureURL,
		user.AuthProvider,
		user.PhoneNumber,
		user.Bio,
		prefs,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastLogin,
		user.IsActive,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("%w: %v", repositories.ErrDuplicate, err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID), zap.String("email", user.Email))
	return nil
}

// GetBySub retrieves a non-deleted user by Cognito subject identifier
func (r *UserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 AND deleted_at IS NULL`, userColumns)
	return r.getOne(ctx, query, sub)
}

// GetBySubAnyState retrieves a user by Cognito subject identifier,
// including soft-deleted records
func (r *UserRepository) GetBySubAnyState(ctx context.Context, sub string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return r.getOne(ctx, query, sub)
}

// GetByEmail retrieves a non-deleted user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1 AND deleted_at IS NULL`, userColumns)
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	executor := GetExecutor(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Update persists changes to the fields refreshed on every login
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $2,
		    email_verified = $3,
		    name = $4,
		    picture_url = $5,
		    last_login = $6,
		    updated_at = $7
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.EmailVerified,
		user.Name,
		user.PictureURL,
		user.LastLogin,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return r.requireRow(result, user.ID)
}

// UpdateProfile persists changes to user-editable profile fields
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET name = $2,
		    bio = $3,
		    phone_number = $4,
		    picture_url = $5,
		    updated_at = $6
		WHERE id = $1 AND deleted_at IS NULL
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Bio,
		user.PhoneNumber,
		user.PictureURL,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}

	return r.requireRow(result, user.ID)
}

// SoftDelete marks a user inactive and records the deletion time.
// The row is retained; there is no hard delete in this flow.
func (r *UserRepository) SoftDelete(ctx context.Context, sub string) error {
	query := `
		UPDATE users
		SET is_active = false,
		    deleted_at = $2,
		    updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, sub, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to soft delete user: %w", err)
	}

	if err := r.requireRow(result, sub); err != nil {
		return err
	}

	r.logger.Debug("user soft deleted", zap.String("id", sub))
	return nil
}

func (r *UserRepository) requireRow(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: user %s", repositories.ErrNotFound, id)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var prefs []byte

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.EmailVerified,
		&user.CognitoUsername,
		&user.Name,
		&user.PictureURL,
		&user.AuthProvider,
		&user.PhoneNumber,
		&user.Bio,
		&prefs,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLogin,
		&user.IsActive,
		&user.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &user.Preferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
		}
	}
	if user.Preferences == nil {
		user.Preferences = map[string]interface{}{}
	}

	return user, nil
}
