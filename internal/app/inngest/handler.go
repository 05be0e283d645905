package inngest

import (
	"net/http"

	"startup-positioning-map/config"
	pkginngest "startup-positioning-map/internal/pkg/inngest"
	"startup-positioning-map/internal/pkg/render"
	"startup-positioning-map/internal/router"

	"github.com/go-chi/chi/v5"
	"github.com/inngest/inngestgo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ServeHandler exposes the Inngest serve endpoint that executes registered
// functions.
type ServeHandler struct {
	logger *zap.SugaredLogger
	cfg    *config.Config
	client inngestgo.Client
}

type NewServeHandlerParams struct {
	fx.In

	Logger *zap.SugaredLogger
	Config *config.Config
	Client inngestgo.Client
}

func NewServeHandler(p NewServeHandlerParams) *ServeHandler {
	return &ServeHandler{
		logger: p.Logger,
		cfg:    p.Config,
		client: p.Client,
	}
}

func (h *ServeHandler) RegisterRoute(r *chi.Mux) {
	path := pkginngest.ServePath(h.cfg)

	r.Post(path, h.Handle)
	r.Put(path, h.Handle)
	r.Get(path, h.Handle)
}

func (h *ServeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !pkginngest.Enabled(h.cfg) {
		render.ChiErr(w, http.StatusNotImplemented, pkginngest.ErrDisabled.Error())
		return
	}

	h.client.Serve().ServeHTTP(w, r)
}

var _ router.Handler = (*ServeHandler)(nil)
