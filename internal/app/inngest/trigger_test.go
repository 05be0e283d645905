package inngest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/inngest/inngestgo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"startup-positioning-map/config"
	"startup-positioning-map/internal/app/inngest/pipelinerun"
)

type sentEvents struct {
	events []inngestgo.Event
	err    error
}

func (s *sentEvents) send(_ context.Context, evt any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.events = append(s.events, evt.(inngestgo.Event))
	return "evt-1", nil
}

func newTriggerMux(appID string, sent *sentEvents) *chi.Mux {
	cfg := &config.Config{}
	cfg.Inngest.AppID = appID

	h := &TriggerHandler{cfg: cfg, logger: zap.NewNop().Sugar(), send: sent.send}
	mux := chi.NewRouter()
	h.RegisterRoute(mux)
	return mux
}

func postRun(mux http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/pipeline/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestTrigger_QueuesSingleStage(t *testing.T) {
	sent := &sentEvents{}
	rr := postRun(newTriggerMux("spm", sent), `{"stage":"Process"}`)

	require.Equal(t, http.StatusAccepted, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "evt-1", body["event_id"])
	require.Equal(t, "process", body["stage"])

	require.Len(t, sent.events, 1)
	require.Equal(t, pipelinerun.RunRequestedEventName, sent.events[0].Name)
	require.Equal(t, "process", sent.events[0].Data["stage"])
	require.Equal(t, "http", sent.events[0].Data["requested_by"])
}

func TestTrigger_EmptyBodyQueuesBatch(t *testing.T) {
	sent := &sentEvents{}
	rr := postRun(newTriggerMux("spm", sent), "")

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, sent.events, 1)
	require.Equal(t, "", sent.events[0].Data["stage"])
}

func TestTrigger_Rejections(t *testing.T) {
	cases := map[string]string{
		"dashboard":     `{"stage":"dashboard"}`,
		"unknown stage": `{"stage":"deploy"}`,
		"bad json":      `{"stage":`,
		"unknown field": `{"stages":["scrape"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			sent := &sentEvents{}
			rr := postRun(newTriggerMux("spm", sent), body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Empty(t, sent.events)
		})
	}
}

func TestTrigger_DisabledWithoutAppID(t *testing.T) {
	sent := &sentEvents{}
	rr := postRun(newTriggerMux("", sent), `{"stage":"scrape"}`)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Empty(t, sent.events)
}

func TestTrigger_SendFailure(t *testing.T) {
	sent := &sentEvents{err: errors.New("connection refused")}
	rr := postRun(newTriggerMux("spm", sent), `{"stage":"scrape"}`)

	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestServeHandler_DisabledReturnsNotImplemented(t *testing.T) {
	h := NewServeHandler(NewServeHandlerParams{
		Logger: zap.NewNop().Sugar(),
		Config: &config.Config{},
	})
	mux := chi.NewRouter()
	h.RegisterRoute(mux)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/inngest", nil))
	require.Equal(t, http.StatusNotImplemented, rr.Code)
}
