package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sqltown/sqltown-server/models"
	"github.com/sqltown/sqltown-server/repositories"
)

func newMockRepo(t *testing.T) (repositories.UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := &DB{DB: mockDB, logger: zap.NewNop()}
	return NewUserRepository(db, zap.NewNop()), mock
}

func sampleUser() *models.User {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.User{
		ID:            "abc123",
		Email:         "a@x.com",
		EmailVerified: true,
		Name:          "Ann",
		AuthProvider:  "Cognito",
		Preferences:   map[string]interface{}{},
		CreatedAt:     now,
		UpdatedAt:     now,
		LastLogin:     now,
		IsActive:      true,
	}
}

func userRows(user *models.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "email_verified", "cognito_username", "name", "picture_url",
		"auth_provider", "phone_number", "bio", "preferences", "created_at", "updated_at",
		"last_login", "is_active", "deleted_at",
	}).AddRow(
		user.ID, user.Email, user.EmailVerified, user.CognitoUsername, user.Name, user.PictureURL,
		user.AuthProvider, user.PhoneNumber, user.Bio, []byte(`{}`), user.CreatedAt, user.UpdatedAt,
		user.LastLogin, user.IsActive, user.DeletedAt,
	)
}

func TestUserRepositoryCreate(t *testing.T) {
	t.Run("inserts a new user", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user := sampleUser()

		mock.ExpectExec("INSERT INTO users").
			WithArgs(
				user.ID, user.Email, user.EmailVerified, user.CognitoUsername,
				user.Name, user.PictureURL, user.AuthProvider, user.PhoneNumber,
				user.Bio, []byte(`{}`), user.CreatedAt, user.UpdatedAt,
				user.LastLogin, user.IsActive,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), user))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violation to ErrDuplicate", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user := sampleUser()

		mock.ExpectExec("INSERT INTO users").
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(context.Background(), user)
		assert.ErrorIs(t, err, repositories.ErrDuplicate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("passes through other database errors", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectExec("INSERT INTO users").
			WillReturnError(&pq.Error{Code: "53300"})

		err := repo.Create(context.Background(), sampleUser())
		require.Error(t, err)
		assert.NotErrorIs(t, err, repositories.ErrDuplicate)
	})
}

func TestUserRepositoryGetBySub(t *testing.T) {
	t.Run("returns the user", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user := sampleUser()

		mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1 AND deleted_at IS NULL").
			WithArgs("abc123").
			WillReturnRows(userRows(user))

		got, err := repo.GetBySub(context.Background(), "abc123")
		require.NoError(t, err)
		assert.Equal(t, "abc123", got.ID)
		assert.Equal(t, "a@x.com", got.Email)
		assert.NotNil(t, got.Preferences)
	})

	t.Run("returns ErrNotFound for missing user", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1 AND deleted_at IS NULL").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetBySub(context.Background(), "ghost")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestUserRepositoryGetBySubAnyState(t *testing.T) {
	repo, mock := newMockRepo(t)
	user := sampleUser()
	deleted := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	user.DeletedAt = &deleted
	user.IsActive = false

	// No deleted_at filter: soft-deleted rows are visible to this lookup
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1$").
		WithArgs("abc123").
		WillReturnRows(userRows(user))

	got, err := repo.GetBySubAnyState(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())
	assert.False(t, got.IsActive)
}

func TestUserRepositoryUpdate(t *testing.T) {
	t.Run("updates login-refreshed fields", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user := sampleUser()

		mock.ExpectExec("UPDATE users").
			WithArgs(
				user.ID, user.Email, user.EmailVerified, user.Name,
				user.PictureURL, user.LastLogin, user.UpdatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(context.Background(), user))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound when no row matches", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectExec("UPDATE users").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(context.Background(), sampleUser())
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestUserRepositorySoftDelete(t *testing.T) {
	t.Run("marks the row deleted", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectExec("UPDATE users").
			WithArgs("abc123", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SoftDelete(context.Background(), "abc123"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second delete finds no row", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectExec("UPDATE users").
			WithArgs("abc123", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SoftDelete(context.Background(), "abc123")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestUserRepositoryUpdateProfile(t *testing.T) {
	repo, mock := newMockRepo(t)
	user := sampleUser()
	user.Bio = "builder"
	user.PhoneNumber = "+61400000000"

	mock.ExpectExec("UPDATE users").
		WithArgs(user.ID, user.Name, user.Bio, user.PhoneNumber, user.PictureURL, user.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateProfile(context.Background(), user))
	assert.NoError(t, mock.ExpectationsWereMet())
}
