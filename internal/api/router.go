package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// NewRouter wires the API routes. The limiter applies only to the ingestion
// endpoints; reads are unthrottled.
func NewRouter(handler *Handler, limiter *rate.Limiter) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", handler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(ingestRateLimiter(limiter))
				r.Post("/", handler.IngestEvent)
				r.Post("/batch", handler.IngestBatch)
			})
			r.Get("/", handler.ListEvents)
			r.Get("/timeline/{serviceName}", handler.Timeline)
			r.Get("/{id}", handler.GetEvent)
			r.Delete("/{id}", handler.DeleteEvent)
		})

		r.Route("/issues", func(r chi.Router) {
			r.Get("/", handler.ListIssues)
			r.Get("/needs-attention", handler.NeedsAttention)
		})

		r.Get("/services", handler.ListServices)
	})

	return r
}
