package fx

import (
	"startup-positioning-map/internal/app/runs"
	"startup-positioning-map/internal/router"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"runs",
	router.AsRoute(runs.NewListHandler),
	router.AsRoute(runs.NewGetHandler),
)
