// Package store opens the user storage named by server.db_url and applies
// its schema.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teammeng/foscion/internal/app"
	"github.com/teammeng/foscion/internal/apperr"
	"github.com/teammeng/foscion/internal/config"
	"github.com/teammeng/foscion/internal/db"
	"github.com/teammeng/foscion/internal/observability"
	"github.com/teammeng/foscion/internal/repo/postgres"
	"github.com/teammeng/foscion/internal/repo/sqlite"
)

const sqliteScheme = "sqlite://"

type Store struct {
	Driver string
	Users  app.UserRepository
	ping   func(context.Context) error
	close  func()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *Store) Close() {
	s.close()
}

// Open connects to postgres:// and postgresql:// URLs through a pgx pool and
// to sqlite://<path> URLs (sqlite://:memory: included) through
// modernc.org/sqlite, then runs the embedded migrations, logging to log.
func Open(ctx context.Context, cfg config.ServerConfig, prom *observability.Prom, log *slog.Logger) (*Store, error) {
	switch {
	case strings.HasPrefix(cfg.DBURL, sqliteScheme):
		return openSQLite(ctx, strings.TrimPrefix(cfg.DBURL, sqliteScheme), prom, log)
	case strings.HasPrefix(cfg.DBURL, "postgres://"), strings.HasPrefix(cfg.DBURL, "postgresql://"):
		return openPostgres(ctx, cfg, prom, log)
	default:
		return nil, apperr.ConfigParse(fmt.Errorf("server.db_url: unsupported scheme in %q", redact(cfg.DBURL)))
	}
}

func openPostgres(ctx context.Context, cfg config.ServerConfig, prom *observability.Prom, log *slog.Logger) (*Store, error) {
	pool, err := db.NewPool(ctx, cfg.DBURL, cfg.MaxConns)
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("connect postgres: %w", err))
	}

	if err := db.MigratePostgres(ctx, pool, log); err != nil {
		pool.Close()
		return nil, apperr.Storage(err)
	}

	return &Store{
		Driver: "postgres",
		Users:  postgres.NewUsersRepo(pool, prom),
		ping:   pool.Ping,
		close:  pool.Close,
	}, nil
}

func openSQLite(ctx context.Context, path string, prom *observability.Prom, log *slog.Logger) (*Store, error) {
	sqlDB, err := db.OpenSQLite(ctx, path)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	if err := db.MigrateSQLite(ctx, sqlDB, log); err != nil {
		_ = sqlDB.Close()
		return nil, apperr.Storage(err)
	}

	return &Store{
		Driver: "sqlite",
		Users:  sqlite.NewUsersRepo(sqlDB, prom),
		ping:   sqlDB.PingContext,
		close:  func() { _ = sqlDB.Close() },
	}, nil
}

// redact drops everything before the host so credentials never reach logs.
func redact(dbURL string) string {
	if i := strings.LastIndex(dbURL, "@"); i >= 0 {
		scheme := ""
		if j := strings.Index(dbURL, "://"); j >= 0 && j < i {
			scheme = dbURL[:j+3]
		}
		return scheme + "***" + dbURL[i:]
	}
	return dbURL
}
