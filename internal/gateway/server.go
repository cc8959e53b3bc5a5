package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if g.metrics != nil {
		r.Use(metricsMiddleware(g.metrics))
	}

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit))
		}

		r.Route("/api", func(r chi.Router) {
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", g.handleCreateSession())
				r.Get("/", g.handleListSessions())
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", g.handleGetSession())
					r.Delete("/", g.handleDeleteSession())
					r.Post("/messages", g.handleMessage())
					r.Post("/resume", g.handleResume())
					r.Post("/save", g.handleSave())
					r.Get("/log", g.handleOpLog())
					r.Get("/history", g.handleHistory())
				})
			})
			r.Route("/parsers", func(r chi.Router) {
				r.Get("/", g.handleListParsers())
				r.Get("/match", g.handleMatchParser())
				r.Get("/{id}", g.handleGetParser())
				r.Delete("/{id}", g.handleDeleteParser())
			})
		})

		r.Get("/ws/sessions/{id}", g.handleWebSocket)
	})

	return r
}
