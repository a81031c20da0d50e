package usersync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sqltown/sqltown-server/cognito"
	"github.com/sqltown/sqltown-server/models"
	"github.com/sqltown/sqltown-server/repositories"
)

// fakeUserRepo is an in-memory UserRepository with the same uniqueness
// behavior as the postgres implementation
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User

	createCalls int
	updateCalls int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if _, exists := f.users[user.ID]; exists {
		return repositories.ErrDuplicate
	}
	for _, u := range f.users {
		if u.Email == user.Email {
			return repositories.ErrDuplicate
		}
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[sub]
	if !ok || u.DeletedAt != nil {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetBySubAnyState(ctx context.Context, sub string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[sub]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email && u.DeletedAt == nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if _, ok := f.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.users[user.ID]
	if !ok || existing.DeletedAt != nil {
		return repositories.ErrNotFound
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) SoftDelete(ctx context.Context, sub string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[sub]
	if !ok || u.DeletedAt != nil {
		return repositories.ErrNotFound
	}
	now := time.Now().UTC()
	u.IsActive = false
	u.DeletedAt = &now
	return nil
}

// fakeTxManager runs the function without a real transaction
type fakeTxManager struct{}

func (fakeTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return fakeTx{ctx: ctx}, nil
}

func (fakeTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	return fn(ctx, fakeTx{ctx: ctx})
}

type fakeTx struct{ ctx context.Context }

func (fakeTx) Commit() error            { return nil }
func (fakeTx) Rollback() error          { return nil }
func (t fakeTx) Context() context.Context { return t.ctx }

func testClaims() *cognito.IDTokenClaims {
	return &cognito.IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "abc123"},
		Email:            "a@x.com",
		EmailVerified:    true,
		Name:             "Ann",
		CognitoUsername:  "ann",
		TokenUse:         "id",
	}
}

func newTestService(repo repositories.UserRepository) *Service {
	return NewService(repo, fakeTxManager{}, zap.NewNop())
}

func TestSyncCreatesUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	user, err := svc.Sync(context.Background(), testClaims())
	require.NoError(t, err)

	assert.Equal(t, "abc123", user.ID)
	assert.Equal(t, "a@x.com", user.Email)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, "Ann", user.Name)
	assert.Equal(t, "ann", user.CognitoUsername)
	assert.Equal(t, "Cognito", user.AuthProvider)
	assert.True(t, user.IsActive)
	assert.False(t, user.LastLogin.IsZero())
}

func TestSyncFederatedProvider(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	claims := testClaims()
	claims.Identities = []cognito.Identity{{ProviderName: "Google"}}

	user, err := svc.Sync(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, "Google", user.AuthProvider)
}

func TestSyncInvalidClaims(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	t.Run("missing sub", func(t *testing.T) {
		claims := testClaims()
		claims.Subject = ""
		_, err := svc.Sync(context.Background(), claims)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("missing email", func(t *testing.T) {
		claims := testClaims()
		claims.Email = ""
		_, err := svc.Sync(context.Background(), claims)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})
}

func TestSyncIsIdempotent(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	first, err := svc.Sync(context.Background(), testClaims())
	require.NoError(t, err)

	clock = clock.Add(5 * time.Minute)

	second, err := svc.Sync(context.Background(), testClaims())
	require.NoError(t, err)

	assert.Len(t, repo.users, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Email, second.Email)
	assert.True(t, second.LastLogin.After(first.LastLogin), "last_login must advance monotonically")
	assert.Equal(t, 1, repo.createCalls)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestSyncUpdatesChangedFields(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	_, err := svc.Sync(context.Background(), testClaims())
	require.NoError(t, err)

	claims := testClaims()
	claims.Email = "new@x.com"
	claims.EmailVerified = false
	claims.Name = "Ann Lee"

	user, err := svc.Sync(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", user.Email)
	assert.False(t, user.EmailVerified)
	assert.Equal(t, "Ann Lee", user.Name)
}

func TestSyncKeepsNameWhenClaimEmpty(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	_, err := svc.Sync(context.Background(), testClaims())
	require.NoError(t, err)

	claims := testClaims()
	claims.Name = ""

	user, err := svc.Sync(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.Name)
}

func TestSyncConcurrentFirstLogin(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Sync(context.Background(), testClaims())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, repo.users, 1, "exactly one record must be persisted")
}

func TestSyncDuplicateRetriesAsUpdate(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	// Simulate losing the insert race: the row appears between the
	// not-found lookup and the insert
	raceRepo := &insertRacingRepo{fakeUserRepo: repo}
	svc.users = raceRepo

	user, err := svc.Sync(context.Background(), testClaims())
	require.NoError(t, err)
	assert.Equal(t, "abc123", user.ID)
	assert.Len(t, repo.users, 1)
	assert.Equal(t, 1, repo.updateCalls)
}

// insertRacingRepo makes the first Create lose a simulated race
type insertRacingRepo struct {
	*fakeUserRepo
	raced bool
}

func (r *insertRacingRepo) Create(ctx context.Context, user *models.User) error {
	if !r.raced {
		r.raced = true
		// Another request inserted the row first
		winner := *user
		r.fakeUserRepo.mu.Lock()
		r.fakeUserRepo.users[user.ID] = &winner
		r.fakeUserRepo.mu.Unlock()
		return repositories.ErrDuplicate
	}
	return r.fakeUserRepo.Create(ctx, user)
}

func TestSyncSoftDeletedUserNotReactivated(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	_, err := svc.Sync(context.Background(), testClaims())
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(context.Background(), "abc123"))

	// Returning soft-deleted user takes the update path, no constraint
	// violation, and stays deactivated
	user, err := svc.Sync(context.Background(), testClaims())
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.NotNil(t, user.DeletedAt)
	assert.Len(t, repo.users, 1)

	// And is invisible to profile reads
	_, err = svc.Get(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	_, err := svc.Sync(context.Background(), testClaims())
	require.NoError(t, err)

	name := "Ann Lee"
	bio := "SQL enthusiast"
	user, err := svc.UpdateProfile(context.Background(), "abc123", ProfileUpdate{
		Name: &name,
		Bio:  &bio,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", user.Name)
	assert.Equal(t, "SQL enthusiast", user.Bio)
	assert.Equal(t, "a@x.com", user.Email, "email is not user-editable")

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.UpdateProfile(context.Background(), "missing", ProfileUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestSoftDelete(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	_, err := svc.Sync(context.Background(), testClaims())
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(context.Background(), "abc123"))

	// Row is retained, not removed
	assert.Len(t, repo.users, 1)

	t.Run("already deleted", func(t *testing.T) {
		err := svc.SoftDelete(context.Background(), "abc123")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}
