package repositories

import (
	"context"
	"errors"

	"github.com/sqltown/sqltown-server/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint
// (concurrent first logins for the same subject race to insert; the loser
// sees this error and retries as an update)
var ErrDuplicate = errors.New("record already exists")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create inserts a new user; returns ErrDuplicate on a uniqueness violation
	Create(ctx context.Context, user *models.User) error

	// GetBySub retrieves a non-deleted user by Cognito subject identifier
	GetBySub(ctx context.Context, sub string) (*models.User, error)

	// GetBySubAnyState retrieves a user by Cognito subject identifier,
	// including soft-deleted records. Used by the synchronizer so a
	// returning soft-deleted user takes the update path instead of
	// colliding with the primary key.
	GetBySubAnyState(ctx context.Context, sub string) (*models.User, error)

	// GetByEmail retrieves a non-deleted user by email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// Update persists changes to login/identity fields
	// (email, email_verified, name, picture_url, last_login)
	Update(ctx context.Context, user *models.User) error

	// UpdateProfile persists changes to profile fields (name, bio, phone_number, picture_url)
	UpdateProfile(ctx context.Context, user *models.User) error

	// SoftDelete marks a user inactive and sets deleted_at; never hard-deletes
	SoftDelete(ctx context.Context, sub string) error
}
