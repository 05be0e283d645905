package fx

import (
	"context"
	"errors"

	"startup-positioning-map/internal/app/amqp/runrecorder"
	"startup-positioning-map/internal/history"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module needs *history.Store and an optional *amqp.Channel.
var Module = fx.Module(
	"amqp-runrecorder",
	fx.Provide(
		fx.Annotate(
			runrecorder.NewRecorder,
			fx.As(new(runrecorder.Handler)),
		),
		runrecorder.NewConsumer,
	),
	fx.Invoke(registerLifecycleHooks),
)

type hooksParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Consumer  *runrecorder.Consumer
	Store     *history.Store
	Logger    *zap.SugaredLogger
}

func registerLifecycleHooks(p hooksParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !p.Store.Enabled() {
				return errors.New("runrecorder needs run history: set HISTORY_ENABLED=true")
			}
			p.Logger.Infow("runrecorder_starting")
			return p.Consumer.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Infow("runrecorder_stopping")
			return p.Consumer.Stop(ctx)
		},
	})
}
