package memory

import (
	"context"
	"sync"
	"time"

	"github.com/teammeng/foscion/internal/apperr"
	"github.com/teammeng/foscion/internal/domain/user"
)

// UsersRepo keeps users in a map keyed by email. It enforces the same email
// uniqueness as the SQL schemas.
type UsersRepo struct {
	mu     sync.RWMutex
	nextID int64
	items  map[string]user.User
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
	}
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, false, apperr.Storage(err)
	}

	r.mu.RLock()
	u, ok := r.items[email]
	r.mu.RUnlock()

	return u, ok, nil
}

func (r *UsersRepo) Create(ctx context.Context, username, email, passwordHash string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, apperr.Storage(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[email]; exists {
		return user.User{}, apperr.Business(user.ErrUserExists)
	}

	r.nextID++
	u := user.User{
		ID:           r.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	r.items[email] = u

	return u, nil
}

func (r *UsersRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
