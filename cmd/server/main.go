package main

import (
	"go.uber.org/fx"

	appfx "startup-positioning-map/internal/app/fx"
	healthfx "startup-positioning-map/internal/app/health/fx"
	inngestfx "startup-positioning-map/internal/app/inngest/fx"
	runsfx "startup-positioning-map/internal/app/runs/fx"
	pipelinefx "startup-positioning-map/internal/pipeline/fx"
	routerfx "startup-positioning-map/internal/router/fx"
	serverfx "startup-positioning-map/internal/server/fx"
)

func main() {
	app := fx.New(
		appfx.CoreAppOptions,
		appfx.InfraOptions,
		pipelinefx.Unattended,
		pipelinefx.Module,
		routerfx.CoreRouterOptions,
		serverfx.ServerOptions,
		healthfx.Module,
		runsfx.Module,
		inngestfx.Module,
	)

	app.Run()
}
