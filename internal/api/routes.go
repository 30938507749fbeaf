package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the HTTP routes for the dashboard backend
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS - the dashboard frontend sends credentialed requests
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/projects/{projectId}", func(r chi.Router) {
			r.Post("/import", h.HandleImport)
			r.Post("/import/async", h.HandleImportAsync)
		})

		r.Route("/import/jobs", func(r chi.Router) {
			r.Get("/", h.HandleListImportJobs)
			r.Get("/{jobId}", h.HandleGetImportJob)
		})
	})

	return r
}
