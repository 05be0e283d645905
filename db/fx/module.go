package fx

import (
	"startup-positioning-map/db"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"history-db",
	fx.Provide(db.NewHistoryDB),
)
