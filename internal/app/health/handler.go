package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"startup-positioning-map/internal/history"
	"startup-positioning-map/internal/pkg/render"
	"startup-positioning-map/internal/router"
)

type Handler struct {
	historyEnabled bool
}

type NewHandlerParams struct {
	fx.In

	Store *history.Store `optional:"true"`
}

func NewHandler(p NewHandlerParams) *Handler {
	return &Handler{historyEnabled: p.Store != nil && p.Store.Enabled()}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Get("/health", h.Handle)
}

type healthResponse struct {
	OK      bool `json:"ok"`
	History bool `json:"history"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	render.ChiJSON(w, http.StatusOK, healthResponse{OK: true, History: h.historyEnabled})
}

var _ router.Handler = (*Handler)(nil)
