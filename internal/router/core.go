package router

import (
	"net/http"

	"go.uber.org/fx"

	"github.com/go-chi/chi/v5"
)

// Handler is one HTTP route of the API server.
type Handler interface {
	RegisterRoute(r *chi.Mux)
	Handle(w http.ResponseWriter, r *http.Request)
}

// AsRoute provides constructor's result into the "handlers" group the mux
// is built from.
func AsRoute(constructor any) fx.Option {
	return fx.Provide(
		fx.Annotate(
			constructor,
			fx.As(new(Handler)),
			fx.ResultTags(`group:"handlers"`),
		),
	)
}
