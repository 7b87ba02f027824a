package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(middleware.Recoverer)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})

		if s.hub != nil {
			r.Handle("/bus", s.hub)
		}

		r.Route("/containers/{container}/values", func(r chi.Router) {
			r.Use(middleware.SetHeader("Content-Type", "application/json"))
			r.Get("/", s.handleListValues)    // GET /api/v1/containers/{container}/values
			r.Get("/{key}", s.handleGetValue) // GET /api/v1/containers/{container}/values/{key}
			r.Put("/{key}", s.handleSetValue) // PUT /api/v1/containers/{container}/values/{key}
		})
	})
}
