// Package api exposes the dataset and view HTTP endpoints.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/merfish-atlas/viewer/internal/config"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(s *Server, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/variants", s.handleVariants)

		r.Get("/contours/{zstack}", s.handleContours)
		r.Get("/nuclei/{zstack}", s.handleNuclei)
		r.Get("/genes", s.handleGeneList)
		r.Get("/genes/{gene}", s.handleGene)
		r.Get("/palette", s.handlePalette)
		r.Get("/clusters", s.handleClusters)

		r.Route("/view", func(r chi.Router) {
			r.Post("/zstack", s.handleViewZStack)
			r.Post("/settings", s.handleViewSettings)
			r.Post("/genes", s.handleViewGenes)
			r.Post("/camera", s.handleViewCamera)
			r.Post("/variant", s.handleViewVariant)
			r.Get("/render.png", s.handleViewRender)
			r.Get("/pick", s.handleViewPick)
		})
	})

	return r
}
