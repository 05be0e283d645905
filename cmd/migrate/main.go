package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"startup-positioning-map/config"
	"startup-positioning-map/db"
	appfx "startup-positioning-map/internal/app/fx"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type MigrateCmd string

func main() {
	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	app := fx.New(
		appfx.CoreAppOptions,
		fx.Supply(MigrateCmd(cmd)),
		fx.Invoke(registerMigrateHook),
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer startCancel()
	if err := app.Start(startCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type migrateHookParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    *config.Config
	Logger *zap.SugaredLogger

	Cmd MigrateCmd
}

// registerMigrateHook runs goose against whichever history backend the
// environment selects (postgres, turso or the local sqlite file).
func registerMigrateHook(p migrateHookParams) {
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !p.Cfg.History.Enabled {
				return db.ErrHistoryDisabled
			}

			h, err := db.Open(p.Cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = h.Close()
			}()

			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			defer pingCancel()
			if err := h.PingContext(pingCtx); err != nil {
				return fmt.Errorf("ping %s: %w", h.Backend, err)
			}
			p.Logger.Infow("✅ history db connection ok", "backend", h.Backend)

			return db.Migrate(ctx, h, string(p.Cmd), p.Logger)
		},
	})
}
