package fx

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"startup-positioning-map/config"
	"startup-positioning-map/internal/logs"
)

// CoreAppOptions reads configuration from the environment. Commands that
// build *config.Config themselves use LoggingOptions instead.
var CoreAppOptions = fx.Options(
	fx.Provide(
		config.NewViper,
		config.NewConfig,
	),
	LoggingOptions,
)

var LoggingOptions = fx.Options(
	fx.Provide(
		logs.NewLogger,
		logs.NewSugaredLogger,
	),
	fx.Invoke(logs.RegisterLifecycle),
	fx.WithLogger(NewFxLogger),
)

// NewFxLogger routes fx's own events through zap at debug level.
func NewFxLogger(logger *zap.Logger) fxevent.Logger {
	l := &fxevent.ZapLogger{Logger: logger}
	l.UseLogLevel(zapcore.DebugLevel)
	return l
}
