// Package server is the server-rendered web app: it runs the login flow
// against the identity provider and keeps the resulting tokens in a
// server-side session behind an HTTP-only cookie.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jrsteele09/synchub/authflow"
	"github.com/jrsteele09/synchub/internal/config"
	"github.com/jrsteele09/synchub/session"
)

// SessionCookieName names the web app's session cookie.
const SessionCookieName = "synchub_session"

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	sessions   sessions.Store
	redirector *authflow.Redirector
	callback   *authflow.CallbackHandler
	exchanger  authflow.Exchanger
	verifier   session.ClaimsVerifier
	httpClient *http.Client
}

type Option func(*Server)

// WithExchanger replaces the token endpoint client.
func WithExchanger(e authflow.Exchanger) Option {
	return func(s *Server) {
		s.exchanger = e
	}
}

// WithHTTPClient sets the client used to reach the API.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) {
		s.httpClient = c
	}
}

func New(cfg config.Config, store sessions.Store, verifier session.ClaimsVerifier, opts ...Option) (*Server, error) {
	redirector, err := authflow.NewRedirector(authflow.RedirectorConfig{
		ClientID:             cfg.GetClientID(),
		IdPDomain:            cfg.GetIdPDomain(),
		AllowedRedirectURIs:  cfg.GetAllowedRedirectURIs(),
		Scopes:               cfg.GetScopes(),
		IdentityProviderHint: cfg.GetIdentityProviderHint(),
		ForceAccountChooser:  cfg.GetForceAccountChooser(),
	})
	if err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}

	s := &Server{
		env:        cfg.GetEnv(),
		mux:        http.NewServeMux(),
		config:     cfg,
		sessions:   store,
		redirector: redirector,
		verifier:   verifier,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exchanger == nil {
		s.exchanger = authflow.NewOAuth2Exchanger(
			authflow.Endpoint(cfg.GetIdPDomain()),
			authflow.WithTimeout(cfg.GetTokenExchangeTimeout()),
		)
	}

	s.callback, err = authflow.NewCallbackHandler(s.exchanger, verifier, cfg.GetClientID(), cfg.GetRedirectURI())
	if err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

// sessionStore binds the token session to this request's cookie.
func (s *Server) sessionStore(w http.ResponseWriter, r *http.Request) *session.Store {
	kv := session.NewCookieKV(s.sessions, SessionCookieName, w, r)
	return session.NewStore(kv, session.WithVerifierMaxAge(s.config.GetVerifierMaxAge()))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}
