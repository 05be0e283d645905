// Package runs serves recorded pipeline runs over HTTP.
package runs

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-positioning-map/db"
	"startup-positioning-map/internal/history"
	"startup-positioning-map/internal/pipeline"
	"startup-positioning-map/internal/pkg/render"
	"startup-positioning-map/internal/router"
)

const maxListLimit = 200

type runReader interface {
	ListRuns(ctx context.Context, limit int) ([]pipeline.Run, error)
	GetRun(ctx context.Context, id string) (pipeline.Run, error)
}

type HandlerParams struct {
	fx.In

	Store  *history.Store
	Logger *zap.SugaredLogger
}

type ListHandler struct {
	store  runReader
	logger *zap.SugaredLogger
}

func NewListHandler(p HandlerParams) *ListHandler {
	return &ListHandler{store: p.Store, logger: p.Logger}
}

func (h *ListHandler) RegisterRoute(r *chi.Mux) {
	r.Get("/v1/runs", h.Handle)
}

type listResponse struct {
	Runs []pipeline.Run `json:"runs"`
}

func (h *ListHandler) Handle(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			render.ChiErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if errors.Is(err, db.ErrHistoryDisabled) {
		render.ChiErr(w, http.StatusServiceUnavailable, "run history disabled")
		return
	}
	if err != nil {
		h.logger.Errorw("runs_list_failed", "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []pipeline.Run{}
	}

	render.ChiJSON(w, http.StatusOK, listResponse{Runs: runs})
}

type GetHandler struct {
	store  runReader
	logger *zap.SugaredLogger
}

func NewGetHandler(p HandlerParams) *GetHandler {
	return &GetHandler{store: p.Store, logger: p.Logger}
}

func (h *GetHandler) RegisterRoute(r *chi.Mux) {
	r.Get("/v1/runs/{id}", h.Handle)
}

func (h *GetHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		render.ChiErr(w, http.StatusBadRequest, "missing id")
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	switch {
	case errors.Is(err, history.ErrRunNotFound):
		render.ChiErr(w, http.StatusNotFound, "not found")
		return
	case errors.Is(err, db.ErrHistoryDisabled):
		render.ChiErr(w, http.StatusServiceUnavailable, "run history disabled")
		return
	case err != nil:
		h.logger.Errorw("runs_get_failed", "id", id, "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}

	render.ChiJSON(w, http.StatusOK, run)
}

var (
	_ router.Handler = (*ListHandler)(nil)
	_ router.Handler = (*GetHandler)(nil)
)
