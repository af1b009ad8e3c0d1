package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the HTTP surface of the queue. metricsHandler may be nil.
func NewRouter(q Queue, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := NewHandlers(q)

	// Health & Info
	r.Get("/health", h.Health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		// Jobs API
		r.Post("/jobs", h.SubmitJob)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{id}", h.GetJob)
		r.Get("/history", h.ListHistory)

		// Runtime config
		r.Get("/config", h.GetConfig)
		r.Put("/config", h.UpdateConfig)

		r.Get("/algorithms", h.Algorithms)
		r.Get("/stats", h.Stats)
	})

	// WebSocket
	r.Get("/ws/jobs", h.StreamEvents)

	return r
}
