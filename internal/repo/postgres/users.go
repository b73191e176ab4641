package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/teammeng/foscion/internal/apperr"
	"github.com/teammeng/foscion/internal/domain/user"
	"github.com/teammeng/foscion/internal/observability"
)

const (
	uniqueViolation     = "23505"
	usersEmailUniqueKey = "users_email_key"
)

// querier is the part of *pgxpool.Pool the repo needs.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UsersRepo struct {
	pool querier
	prom *observability.Prom
}

func NewUsersRepo(pool querier, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(ctx context.Context, op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(ctx, op, fn)
	}
	return fn()
}

// FindByEmail reports ok=false when no row has this email.
func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (u user.User, ok bool, err error) {
	err = r.observe(ctx, "users.find_by_email", func() error {
		return r.pool.QueryRow(
			ctx,
			`SELECT id, username, email, password_hash, created_at
			 FROM users
			 WHERE email = $1`,
			email,
		).Scan(
			&u.ID,
			&u.Username,
			&u.Email,
			&u.PasswordHash,
			&u.CreatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, false, nil
		}

		return user.User{}, false, apperr.Storage(fmt.Errorf("find user by email: %w", err))
	}

	return u, true, nil
}

// Create inserts a row and returns it with the generated id and created_at.
// A duplicate email fails with user.ErrUserExists.
func (r *UsersRepo) Create(ctx context.Context, username, email, passwordHash string) (u user.User, err error) {
	err = r.observe(ctx, "users.insert", func() error {
		return r.pool.QueryRow(
			ctx,
			`INSERT INTO users (username, email, password_hash)
			 VALUES ($1, $2, $3)
			 RETURNING id, username, email, password_hash, created_at`,
			username, email, passwordHash,
		).Scan(
			&u.ID,
			&u.Username,
			&u.Email,
			&u.PasswordHash,
			&u.CreatedAt,
		)
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == usersEmailUniqueKey {
			return user.User{}, apperr.Business(user.ErrUserExists)
		}

		return user.User{}, apperr.Storage(fmt.Errorf("insert user: %w", err))
	}

	return u, nil
}
