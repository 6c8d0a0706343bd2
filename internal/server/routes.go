package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors(s.cfg.Server.CORSOrigins))
	r.Use(limitBody(s.cfg.Server.MaxUploadBytes))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/styles", s.handleStyles)
		r.Post("/render", s.handleRender)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/source", s.handlePutSource)
			r.Get("/source", s.handleGetSource)
			r.Post("/generate", s.handleGenerate)
			r.Get("/result", s.handleGetResult)
			r.Post("/reset", s.handleReset)
		})
	})

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)
	return r
}
