package fx

import (
	"go.uber.org/fx"

	cachefx "startup-positioning-map/cache/fx"
	dbfx "startup-positioning-map/db/fx"
	"startup-positioning-map/internal/pkg/amqpclient"
)

// InfraOptions provides the optional backing services: history database,
// Redis and the AMQP channel. Each one is nil when it is not configured.
var InfraOptions = fx.Options(
	dbfx.Module,
	cachefx.Module,
	fx.Provide(amqpclient.NewAMQP),
)
