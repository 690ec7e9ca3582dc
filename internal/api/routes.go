// Package api exposes the automation engine over HTTP: sequence CRUD,
// trigger ingestion, manual scheduler passes, and dead-letter operations.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		// Trigger ingestion: called by the CRM when business events fire.
		r.Post("/automation/trigger", h.Trigger)
		// Manual scheduler pass, for cron-style external invocation.
		r.Post("/automation/process", h.Process)
		r.Get("/automation/stats", h.SchedulerStats)

		r.Route("/sequences", func(r chi.Router) {
			r.Get("/", h.ListSequences)
			r.Post("/", h.CreateSequence)
			r.Route("/{sequenceID}", func(r chi.Router) {
				r.Get("/", h.GetSequence)
				r.Put("/", h.UpdateSequence)
				r.Delete("/", h.DeleteSequence)
				r.Post("/activate", h.ActivateSequence)
				r.Post("/deactivate", h.DeactivateSequence)
				r.Get("/steps", h.ListSteps)
				r.Put("/steps", h.ReplaceSteps)
			})
		})

		r.Route("/enrollments", func(r chi.Router) {
			r.Get("/dead-letter", h.ListDeadLetter)
			r.Route("/{enrollmentID}", func(r chi.Router) {
				r.Get("/", h.GetEnrollment)
				r.Get("/log", h.EnrollmentLog)
				r.Post("/requeue", h.RequeueEnrollment)
			})
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.GetSettings)
			r.Put("/", h.UpdateSettings)
		})
	})

	return r
}
