package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

func runMigrations(ctx context.Context, sqlDB *sql.DB, dialect, dir string, log *slog.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(newGooseLogger(log))

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// MigratePostgres applies the embedded Postgres schema through a
// database/sql view of the pool.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	return runMigrations(ctx, sqlDB, "postgres", "migrations/postgres", log)
}

// MigrateSQLite applies the embedded SQLite schema. A nil log uses
// slog.Default.
func MigrateSQLite(ctx context.Context, sqlDB *sql.DB, log *slog.Logger) error {
	return runMigrations(ctx, sqlDB, "sqlite3", "migrations/sqlite", log)
}
