package fx

import (
	"go.uber.org/fx"

	"startup-positioning-map/internal/app/health"
	"startup-positioning-map/internal/router"
)

var Module = fx.Options(
	router.AsRoute(health.NewHandler),
)
