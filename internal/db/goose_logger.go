package db

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// gooseLogger routes goose output into the service's structured log.
type gooseLogger struct {
	log *slog.Logger
}

func newGooseLogger(log *slog.Logger) gooseLogger {
	if log == nil {
		log = slog.Default()
	}
	return gooseLogger{log: log.With("component", "migrate")}
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
	os.Exit(1)
}
