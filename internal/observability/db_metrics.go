package observability

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const dbTracerName = "github.com/teammeng/foscion/internal/observability"

// ObserveDB runs fn in a span named after the logical operation op, times it
// and counts failures by class. A missing row is a result, not a failure.
func (p *Prom) ObserveDB(ctx context.Context, op string, fn func() error) error {
	_, span := otel.Tracer(dbTracerName).Start(ctx, "db."+op)
	defer span.End()
	span.SetAttributes(attribute.String("db.operation", op))

	start := time.Now()
	err := fn()

	status := "ok"

	switch {
	case err == nil:
	case isNoRows(err):
		status = "no_rows"
	default:
		status = "error"
		class := ClassifyDBErr(err)
		p.DbErrorsTotal.WithLabelValues(op, class).Inc()
		span.SetStatus(codes.Error, class)
	}
	p.DbQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// ClassifyDBErr buckets a driver error into a low-cardinality label.
func ClassifyDBErr(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return "unique_violation"
		case "40001":
			return "serialization_failure"
		case "40P01":
			return "deadlock"
		case "57014":
			return "query_canceled"
		default:
			return "pg_" + pgErr.Code
		}
	}

	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return "unique_violation"
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return "busy"
		default:
			return "sqlite"
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, sql.ErrConnDone), pgconn.SafeToRetry(err):
		return "connection"
	default:
		return "unknown"
	}
}
