// Package sqlite stores users in a SQLite database through modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/teammeng/foscion/internal/apperr"
	"github.com/teammeng/foscion/internal/domain/user"
	"github.com/teammeng/foscion/internal/observability"
)

type UsersRepo struct {
	db   *sql.DB
	prom *observability.Prom
}

func NewUsersRepo(db *sql.DB, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: db, prom: prom}
}

func (r *UsersRepo) observe(ctx context.Context, op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(ctx, op, fn)
	}
	return fn()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, bool, error) {
	var (
		u         user.User
		createdAt int64
	)

	err := r.observe(ctx, "users.find_by_email", func() error {
		return r.db.QueryRowContext(
			ctx,
			`SELECT id, username, email, password_hash, created_at
			 FROM users
			 WHERE email = ?`,
			email,
		).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, false, nil
		}
		return user.User{}, false, apperr.Storage(fmt.Errorf("find user by email: %w", err))
	}

	u.CreatedAt = fromMillis(createdAt)
	return u, true, nil
}

func (r *UsersRepo) Create(ctx context.Context, username, email, passwordHash string) (user.User, error) {
	var (
		u         user.User
		createdAt int64
	)

	err := r.observe(ctx, "users.insert", func() error {
		return r.db.QueryRowContext(
			ctx,
			`INSERT INTO users (username, email, password_hash)
			 VALUES (?, ?, ?)
			 RETURNING id, username, email, password_hash, created_at`,
			username, email, passwordHash,
		).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt)
	})

	if err != nil {
		if isEmailUniqueViolation(err) {
			return user.User{}, apperr.Business(user.ErrUserExists)
		}
		return user.User{}, apperr.Storage(fmt.Errorf("insert user: %w", err))
	}

	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func isEmailUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT:
			return strings.Contains(strings.ToLower(err.Error()), "users.email")
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "users.email")
}
