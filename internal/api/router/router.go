// Package router assembles the chi route tree for the HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/seonho-lim/aide/internal/api"
	"github.com/seonho-lim/aide/internal/webchat"
	"github.com/seonho-lim/aide/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	ThreadHandler  *api.ThreadHandler
	StatsHandler   *api.StatsHandler
	WebchatHandler *webchat.Handler
	MetricsHandler http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/threads/{threadID}", func(r chi.Router) {
		r.Post("/messages", cfg.ThreadHandler.PostMessage)
		r.Delete("/", cfg.ThreadHandler.DeleteThread)
		if cfg.StatsHandler != nil {
			r.Get("/stats", cfg.StatsHandler.GetThreadStats)
		}
	})

	if cfg.WebchatHandler != nil {
		r.Get("/webchat/ws", cfg.WebchatHandler.HandleWebSocket)
	}

	return r
}
