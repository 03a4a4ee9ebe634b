package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/storebotdev/storebot-go/internal/api"
)

// publicPaths are the only paths reachable without a session token.
var publicPaths = []string{
	"/api/healthz",
	"/api/auth/login",
}

// IsAuthRequired checks if a given path requires authentication.
// This is used by the auth middleware to make gating decisions.
func IsAuthRequired(path string) bool {
	for _, p := range publicPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return false
		}
	}
	return true
}

func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.authMiddleware)

	r.Get("/api/healthz", api.HealthHandler)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(s.loginRateLimitMiddleware).Post("/login", s.authHandler.Login)
		r.Post("/logout", s.authHandler.Logout)
	})

	r.Route("/api/access-codes", func(r chi.Router) {
		r.Post("/", s.codesHandler.Create)
		r.Get("/", s.codesHandler.List)
		r.Post("/redeem", s.codesHandler.Redeem)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", s.usersHandler.List)
		r.Put("/{id}", s.usersHandler.Upsert)
		r.Post("/{id}/ban", s.usersHandler.Ban)
		r.Post("/{id}/unban", s.usersHandler.Unban)
	})

	r.Route("/api/gate", func(r chi.Router) {
		r.Get("/", s.gateHandler.Status)
		r.Post("/toggle", s.gateHandler.Toggle)
	})

	r.Route("/api/broadcasts", func(r chi.Router) {
		r.Post("/", s.broadcastsHandler.Create)
		r.Get("/", s.broadcastsHandler.List)
		r.Get("/{id}", s.broadcastsHandler.Get)
		r.Patch("/{id}", s.broadcastsHandler.Edit)
		r.Post("/{id}/resend", s.broadcastsHandler.Resend)
		r.Delete("/{id}", s.broadcastsHandler.Delete)
	})

	return r
}
