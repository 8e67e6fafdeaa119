/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:        Request logging
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestID:     Unique ID per request for tracing
  4. CORS:          Cross-origin requests for frontend
  5. Authenticator: Bearer token check on everything under /api except auth

ROUTE GROUPS:
  /api/auth/*        Registration, login, profile
  /api/requests/*    Submission and own-request listing
  /api/admin/*       Department review queue
  /api/principal/*   Escalated review queue
  /api/registrar/*   Final approval queue
  /api/viewer/*      Gate control (allow/return)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Authentication middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/campusgate/gatepass-engine/gatepass"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public auth routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.With(h.Authenticator).Get("/me", h.Me)
			r.With(h.Authenticator).Put("/password", h.ChangePassword)
		})

		// Everything below requires a valid session.
		r.Group(func(r chi.Router) {
			r.Use(h.Authenticator)

			r.Route("/requests", func(r chi.Router) {
				r.With(RequireRoles(gatepass.RoleFaculty, gatepass.RoleAdmin)).
					Post("/", h.SubmitRequest)
				r.With(RequireRoles(gatepass.RoleFaculty, gatepass.RoleAdmin)).
					Get("/mine", h.ListMine)
				r.Get("/{id}", h.GetRequest)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRoles(gatepass.RoleAdmin))
				r.Get("/requests", h.ListQueue)
				r.Put("/requests/{id}/status", h.UpdateStatus)
			})

			r.Route("/principal", func(r chi.Router) {
				r.Use(RequireRoles(gatepass.RolePrincipal))
				r.Get("/requests", h.ListQueue)
				r.Put("/requests/{id}/status", h.UpdateStatus)
			})

			r.Route("/registrar", func(r chi.Router) {
				r.Use(RequireRoles(gatepass.RoleRegistrar))
				r.Get("/requests", h.ListQueue)
				r.Put("/requests/{id}/status", h.UpdateStatus)
			})

			r.Route("/viewer", func(r chi.Router) {
				r.Use(RequireRoles(gatepass.RoleViewer))
				r.Get("/requests", h.ListQueue)
				r.Get("/allowed", h.ListAllowed)
				r.Post("/requests/{id}/allow", h.AllowRequest)
				r.Post("/requests/{id}/return", h.ReturnRequest)
			})
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
