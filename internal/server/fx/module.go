package fx

import (
	"go.uber.org/fx"

	"startup-positioning-map/internal/server"
)

var ServerOptions = fx.Options(
	fx.Provide(server.NewHTTPServer),
	fx.Invoke(RegisterHTTPServerLifecycle),
)
