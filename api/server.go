// Package api is the protected settings API. Every route except the health
// check and the public listing requires a verified bearer token.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/synchub/api/handler"
	mw "github.com/jrsteele09/synchub/api/middleware"
	"github.com/jrsteele09/synchub/api/response"
	"github.com/jrsteele09/synchub/authz"
	"github.com/rs/zerolog"
)

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	settings *handler.Settings
	claims   mw.ClaimsSource
	gate     *authz.Gate
	origins  []string
}

type Option func(*Server)

// WithAllowedOrigins enables CORS for the listed browser origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

func NewServer(logger zerolog.Logger, svc handler.SettingsService, claims mw.ClaimsSource, gate *authz.Gate, opts ...Option) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		settings: handler.NewSettings(svc, gate),
		claims:   claims,
		gate:     gate,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
	if len(s.origins) > 0 {
		s.router.Use(mw.CORS(s.origins))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/_health", s.handleHealth)
	s.router.Get("/settings/public", s.settings.ListPublic)

	s.router.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(s.claims))

		r.Get("/me", handler.Me)

		r.Get("/settings", s.settings.List)
		r.Post("/settings", s.settings.Create)
		r.Get("/settings/{settingID}", s.settings.Get)
		r.Put("/settings/{settingID}", s.settings.Update)
		r.Delete("/settings/{settingID}", s.settings.Delete)
		r.Put("/settings/{settingID}/visibility", s.settings.SetVisibility)

		r.Get("/tenants/{tenantID}/settings", s.settings.ListTenant)

		r.Group(func(r chi.Router) {
			r.Use(mw.Require(s.gate, authz.AdminOnly))
			r.Get("/admin/audit", s.settings.Audit)
			r.Get("/admin/analytics", s.settings.Analytics)
		})
	})

	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.WriteError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Router() chi.Router {
	return s.router
}
