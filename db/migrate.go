package db

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"startup-positioning-map/db/migrations"
)

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

// Migrate runs a goose command ("up", "down", "status", ...) against h.
func Migrate(ctx context.Context, h *HistoryDB, cmd string, logger *zap.SugaredLogger) error {
	if h == nil {
		return ErrHistoryDisabled
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{logger})
	if err := goose.SetDialect(h.Backend.Dialect()); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	logger.Infow("goose_run_start", "cmd", cmd, "backend", h.Backend)
	if err := goose.RunContext(ctx, cmd, h.DB.DB, "."); err != nil {
		return fmt.Errorf("goose run %q: %w", cmd, err)
	}
	logger.Infow("goose_run_done", "cmd", cmd, "backend", h.Backend)
	return nil
}

type gooseLogger struct {
	l *zap.SugaredLogger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.l.Debugf(strings.TrimSpace(format), v...)
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.l.Fatalf(strings.TrimSpace(format), v...)
}
