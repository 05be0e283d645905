package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"startup-positioning-map/config"
)

// NewHTTPServer serves the run history API and the Inngest endpoint on
// APP_PORT. net/http's own error log is routed through zap.
func NewHTTPServer(cfg *config.Config, mux *chi.Mux, logger *zap.Logger) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           mux,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Inngest step requests run a whole batch pipeline before replying.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}
