package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"startup-positioning-map/config"
	appfx "startup-positioning-map/internal/app/fx"
	"startup-positioning-map/internal/console"
	"startup-positioning-map/internal/pipeline"
	pipelinefx "startup-positioning-map/internal/pipeline/fx"
)

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 10 * time.Second
)

// withApp starts an fx app built from opts, runs fn and stops the app.
func withApp(ctx context.Context, cfg *config.Config, streams console.Streams, fn func(context.Context) error, opts ...fx.Option) error {
	base := []fx.Option{
		fx.Supply(cfg, streams),
		appfx.LoggingOptions,
	}
	app := fx.New(append(base, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx)
}

func runPipeline(ctx context.Context, cfg *config.Config, plan pipeline.Plan, streams console.Streams) error {
	var runner *pipeline.Runner
	return withApp(ctx, cfg, streams,
		func(ctx context.Context) error {
			_, err := runner.Run(ctx, plan)
			return err
		},
		appfx.InfraOptions,
		pipelinefx.Module,
		fx.Populate(&runner),
	)
}
