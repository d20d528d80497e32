package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes возвращает роутер операционного API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Recovery(h.logger), Logging(h.logger))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs/{id}", h.GetJob)
	})

	return r
}
