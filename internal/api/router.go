package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/auth"
)

// Rate-limited route names, used as key prefixes and metric labels.
const (
	routeSignup  = "signup"
	routeLogin   = "login"
	routeRefresh = "refresh"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		// Probes (no auth required)
		r.Get("/health", s.handleHealth)
		if s.metricsHandler != nil {
			r.Method(http.MethodGet, "/metrics", s.metricsHandler)
		}

		r.Route("/auth", func(r chi.Router) {
			r.With(s.rateLimit(routeSignup, ipKey)).Post("/signup", s.handleSignup)
			r.With(s.rateLimit(routeLogin, ipKey)).Post("/login", s.handleLogin)
			r.With(s.rateLimit(routeRefresh, ipKey)).Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePolicy(auth.PolicyAny))
				r.Post("/logout-all", s.handleLogoutAll)
				r.Get("/me", s.handleMe)
			})
		})

		r.Route("/workspace", func(r chi.Router) {
			r.With(s.requirePolicy(auth.PolicyStaff)).Get("/members", s.handleListMembers)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePolicy(auth.PolicyOwner))
				r.Patch("/members/{userID}", s.handleChangeRole)
				r.Get("/settings", s.handleSettings)
			})
		})
	})

	return r
}
