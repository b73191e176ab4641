package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teammeng/foscion/internal/app"
	"github.com/teammeng/foscion/internal/apperr"
	"github.com/teammeng/foscion/internal/config"
	"github.com/teammeng/foscion/internal/domain/user"
	"github.com/teammeng/foscion/internal/repo/memory"
	"github.com/teammeng/foscion/internal/security"
)

var testParams = security.Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newState(t *testing.T, repo app.UserRepository, opts ...app.Option) *app.State {
	t.Helper()
	return app.New(config.Config{Env: "test"}, repo, security.NewHasher(testParams, 2), opts...)
}

// fakeUsersRepo lets a test replace one repository call.
type fakeUsersRepo struct {
	findFn   func(ctx context.Context, email string) (user.User, bool, error)
	createFn func(ctx context.Context, username, email, passwordHash string) (user.User, error)
}

func (f *fakeUsersRepo) FindByEmail(ctx context.Context, email string) (user.User, bool, error) {
	if f.findFn != nil {
		return f.findFn(ctx, email)
	}
	return user.User{}, false, nil
}

func (f *fakeUsersRepo) Create(ctx context.Context, username, email, passwordHash string) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, username, email, passwordHash)
	}
	return user.User{ID: 1, Username: username, Email: email, PasswordHash: passwordHash}, nil
}

type fakeHasher struct {
	hashErr   error
	verifyErr error
}

func (f fakeHasher) Hash(ctx context.Context, plain string) (string, error) {
	return "", f.hashErr
}

func (f fakeHasher) Verify(ctx context.Context, plain, encoded string) (bool, error) {
	return false, f.verifyErr
}

type recordingMetrics struct {
	mu      sync.Mutex
	results []string
}

func (m *recordingMetrics) ObserveAuth(op, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, op+":"+result)
}

func TestCreateUser(t *testing.T) {
	repo := memory.NewUsersRepo()
	state := newState(t, repo)
	ctx := context.Background()

	input := user.CreateUser{Username: "TeamMeng", Email: "Meng@123.com", Password: "hunter21"}

	u, err := state.CreateUser(ctx, input)
	require.NoError(t, err)
	require.Equal(t, "TeamMeng", u.Username)
	require.Equal(t, "Meng@123.com", u.Email)
	require.NotEqual(t, "hunter21", u.PasswordHash)
	require.True(t, security.VerifyPassword("hunter21", u.PasswordHash))

	found, ok, err := repo.FindByEmail(ctx, "Meng@123.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, u, found)

	_, err = state.CreateUser(ctx, input)
	require.ErrorIs(t, err, user.ErrUserExists)
	require.Equal(t, apperr.KindBusiness, apperr.KindOf(err))
	require.Equal(t, 1, repo.Len())
}

func TestCreateUser_DuplicateLeavesRowUnchanged(t *testing.T) {
	repo := memory.NewUsersRepo()
	state := newState(t, repo)
	ctx := context.Background()

	original, err := state.CreateUser(ctx, user.CreateUser{Username: "TeamMeng", Email: "meng@example.com", Password: "hunter21"})
	require.NoError(t, err)

	_, err = state.CreateUser(ctx, user.CreateUser{Username: "Imposter", Email: "meng@example.com", Password: "other-password"})
	require.ErrorIs(t, err, user.ErrUserExists)

	found, _, err := repo.FindByEmail(ctx, "meng@example.com")
	require.NoError(t, err)
	require.Equal(t, original, found)
	require.True(t, security.VerifyPassword("hunter21", found.PasswordHash))
}

func TestCreateUser_RaceLoserGetsBusinessError(t *testing.T) {
	// the lookup misses, but the insert hits the unique constraint.
	repo := &fakeUsersRepo{
		createFn: func(ctx context.Context, username, email, passwordHash string) (user.User, error) {
			return user.User{}, apperr.Business(user.ErrUserExists)
		},
	}
	state := newState(t, repo)

	_, err := state.CreateUser(context.Background(), user.CreateUser{Username: "TeamMeng", Email: "meng@example.com", Password: "hunter21"})
	require.ErrorIs(t, err, user.ErrUserExists)
	require.Equal(t, apperr.KindBusiness, apperr.KindOf(err))
}

func TestCreateUser_ConcurrentSameEmail(t *testing.T) {
	repo := memory.NewUsersRepo()
	state := newState(t, repo)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = state.CreateUser(context.Background(), user.CreateUser{Username: "TeamMeng", Email: "meng@example.com", Password: "hunter21"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, user.ErrUserExists)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, repo.Len())
}

func TestCreateUser_Errors(t *testing.T) {
	storageErr := apperr.Storage(errors.New("connection refused"))

	tests := []struct {
		name     string
		repo     *fakeUsersRepo
		hasher   app.PasswordHasher
		wantKind apperr.Kind
	}{
		{
			name: "lookup fails",
			repo: &fakeUsersRepo{findFn: func(ctx context.Context, email string) (user.User, bool, error) {
				return user.User{}, false, storageErr
			}},
			hasher:   security.NewHasher(testParams, 1),
			wantKind: apperr.KindStorage,
		},
		{
			name: "insert fails",
			repo: &fakeUsersRepo{createFn: func(ctx context.Context, username, email, passwordHash string) (user.User, error) {
				return user.User{}, storageErr
			}},
			hasher:   security.NewHasher(testParams, 1),
			wantKind: apperr.KindStorage,
		},
		{
			name:     "hash fails",
			repo:     &fakeUsersRepo{},
			hasher:   fakeHasher{hashErr: errors.New("entropy source unavailable")},
			wantKind: apperr.KindCrypto,
		},
		{
			name:     "hash slot wait times out",
			repo:     &fakeUsersRepo{},
			hasher:   fakeHasher{hashErr: context.DeadlineExceeded},
			wantKind: apperr.KindIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := app.New(config.Config{}, tt.repo, tt.hasher)

			_, err := state.CreateUser(context.Background(), user.CreateUser{Username: "TeamMeng", Email: "meng@example.com", Password: "hunter21"})
			require.Error(t, err)
			require.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestCreateUser_HashNotCalledForExistingEmail(t *testing.T) {
	repo := &fakeUsersRepo{findFn: func(ctx context.Context, email string) (user.User, bool, error) {
		return user.User{ID: 1, Email: email}, true, nil
	}}
	// a hasher that would fail proves the duplicate is rejected first.
	state := app.New(config.Config{}, repo, fakeHasher{hashErr: errors.New("must not hash")})

	_, err := state.CreateUser(context.Background(), user.CreateUser{Username: "TeamMeng", Email: "meng@example.com", Password: "hunter21"})
	require.ErrorIs(t, err, user.ErrUserExists)
}

func TestSignin(t *testing.T) {
	repo := memory.NewUsersRepo()
	state := newState(t, repo)
	ctx := context.Background()

	created, err := state.CreateUser(ctx, user.CreateUser{Username: "TeamMeng", Email: "Meng@123.com", Password: "hunter21"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   user.SigninUser
		wantErr error
	}{
		{"correct credentials", user.SigninUser{Email: "Meng@123.com", Password: "hunter21"}, nil},
		{"wrong password", user.SigninUser{Email: "Meng@123.com", Password: "wrong"}, user.ErrIncorrectPassword},
		{"empty password", user.SigninUser{Email: "Meng@123.com", Password: ""}, user.ErrIncorrectPassword},
		{"unknown email", user.SigninUser{Email: "nobody@example.com", Password: "hunter21"}, user.ErrUserNotFound},
		{"email case differs", user.SigninUser{Email: "meng@123.com", Password: "hunter21"}, user.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := state.Signin(ctx, tt.input)
			if tt.wantErr == nil {
				require.NoError(t, err)
				require.Equal(t, created, u)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			require.Equal(t, apperr.KindBusiness, apperr.KindOf(err))
			require.Equal(t, user.User{}, u)
		})
	}
}

func TestSignin_CorruptStoredHash(t *testing.T) {
	repo := &fakeUsersRepo{findFn: func(ctx context.Context, email string) (user.User, bool, error) {
		return user.User{ID: 1, Email: email, PasswordHash: "not-a-phc-string"}, true, nil
	}}
	state := newState(t, repo)

	_, err := state.Signin(context.Background(), user.SigninUser{Email: "meng@example.com", Password: "hunter21"})
	require.ErrorIs(t, err, user.ErrIncorrectPassword)
}

func TestSignin_Errors(t *testing.T) {
	stored := func(ctx context.Context, email string) (user.User, bool, error) {
		return user.User{ID: 1, Email: email, PasswordHash: "$argon2id$..."}, true, nil
	}

	tests := []struct {
		name     string
		repo     *fakeUsersRepo
		hasher   app.PasswordHasher
		wantKind apperr.Kind
	}{
		{
			name: "lookup fails",
			repo: &fakeUsersRepo{findFn: func(ctx context.Context, email string) (user.User, bool, error) {
				return user.User{}, false, apperr.Storage(errors.New("connection refused"))
			}},
			hasher:   security.NewHasher(testParams, 1),
			wantKind: apperr.KindStorage,
		},
		{
			name:     "verify canceled",
			repo:     &fakeUsersRepo{findFn: stored},
			hasher:   fakeHasher{verifyErr: context.Canceled},
			wantKind: apperr.KindIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := app.New(config.Config{}, tt.repo, tt.hasher)

			_, err := state.Signin(context.Background(), user.SigninUser{Email: "meng@example.com", Password: "hunter21"})
			require.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	state := newState(t, memory.NewUsersRepo(), app.WithMetrics(metrics))
	ctx := context.Background()

	_, _ = state.CreateUser(ctx, user.CreateUser{Username: "TeamMeng", Email: "meng@example.com", Password: "hunter21"})
	_, _ = state.CreateUser(ctx, user.CreateUser{Username: "TeamMeng", Email: "meng@example.com", Password: "hunter21"})
	_, _ = state.Signin(ctx, user.SigninUser{Email: "meng@example.com", Password: "hunter21"})
	_, _ = state.Signin(ctx, user.SigninUser{Email: "meng@example.com", Password: "wrong"})

	require.Equal(t, []string{
		"signup:ok",
		"signup:business_error",
		"signin:ok",
		"signin:business_error",
	}, metrics.results)
}

func TestConfig(t *testing.T) {
	cfg := config.Config{Env: "test", Server: config.ServerConfig{Port: 3000}}
	state := app.New(cfg, memory.NewUsersRepo(), security.NewHasher(testParams, 1))
	require.Equal(t, cfg.Server.Port, state.Config().Server.Port)
}
