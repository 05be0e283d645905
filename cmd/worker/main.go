package main

import (
	"go.uber.org/fx"

	dbfx "startup-positioning-map/db/fx"
	runrecorderfx "startup-positioning-map/internal/app/amqp/runrecorder/fx"
	appfx "startup-positioning-map/internal/app/fx"
	"startup-positioning-map/internal/history"
	"startup-positioning-map/internal/pkg/amqpclient"
)

// The worker records lifecycle events published by remote runners into the
// shared run history.
func main() {
	app := fx.New(
		appfx.CoreAppOptions,
		dbfx.Module,
		fx.Provide(
			amqpclient.NewAMQP,
			history.NewStore,
		),
		runrecorderfx.Module,
	)

	app.Run()
}
