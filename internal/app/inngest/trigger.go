package inngest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"startup-positioning-map/config"
	"startup-positioning-map/internal/app/inngest/pipelinerun"
	pkginngest "startup-positioning-map/internal/pkg/inngest"
	"startup-positioning-map/internal/pkg/render"
	"startup-positioning-map/internal/router"

	"github.com/go-chi/chi/v5"
	"github.com/inngest/inngestgo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxTriggerBody = 4 << 10

// TriggerHandler queues a background pipeline run by sending the
// run-requested event.
type TriggerHandler struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	send   func(ctx context.Context, evt any) (string, error)
}

type NewTriggerHandlerParams struct {
	fx.In

	Config *config.Config
	Client inngestgo.Client
	Logger *zap.SugaredLogger
}

func NewTriggerHandler(p NewTriggerHandlerParams) *TriggerHandler {
	return &TriggerHandler{
		cfg:    p.Config,
		logger: p.Logger,
		send:   p.Client.Send,
	}
}

func (h *TriggerHandler) RegisterRoute(r *chi.Mux) {
	r.Post("/v1/pipeline/runs", h.Handle)
}

type triggerResponse struct {
	EventID string `json:"event_id"`
	Stage   string `json:"stage,omitempty"`
}

func (h *TriggerHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !pkginngest.Enabled(h.cfg) {
		render.ChiErr(w, http.StatusServiceUnavailable, pkginngest.ErrDisabled.Error())
		return
	}

	var data pipelinerun.RunRequestedEventData
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTriggerBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		render.ChiErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	data.Stage = strings.ToLower(strings.TrimSpace(data.Stage))
	if _, err := pipelinerun.PlanForEvent(data); err != nil {
		render.ChiErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if data.RequestedBy == "" {
		data.RequestedBy = "http"
	}

	id, err := h.send(r.Context(), inngestgo.Event{
		Name:      pipelinerun.RunRequestedEventName,
		Data:      map[string]any{"stage": data.Stage, "requested_by": data.RequestedBy},
		Timestamp: inngestgo.Timestamp(time.Now()),
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, pkginngest.ErrDisabled) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Errorw("pipeline_trigger_failed", "stage", data.Stage, "err", err.Error())
		render.ChiErr(w, status, "failed to queue pipeline run")
		return
	}

	h.logger.Infow("pipeline_trigger_queued", "event_id", id, "stage", data.Stage)
	render.ChiJSON(w, http.StatusAccepted, triggerResponse{EventID: id, Stage: data.Stage})
}

var _ router.Handler = (*TriggerHandler)(nil)
