package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/synchub/authflow"
	"github.com/jrsteele09/synchub/claims"
	"github.com/jrsteele09/synchub/session"
	"github.com/rs/zerolog/log"
)

const flashLoginError = "login_error"

// IndexHandler renders the landing page: the signed-in identity, or a login
// button and the message of a failed attempt.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"AppName":    s.config.GetAppName(),
			"LoginStart": RouteLoginStart,
			"Logout":     RouteLogout,
			"LoginError": s.popFlash(w, r, flashLoginError),
		}

		current, err := s.sessionStore(w, r).Current(r.Context(), s.verifier)
		if err != nil {
			log.Error().Err(err).Msg("failed to load session")
		}
		if current != nil {
			data["Claims"] = current.Claims
			data["ExpiresAt"] = current.Claims.ExpiresAt().Format(time.RFC1123)
		}

		renderPage(w, "index.html", data)
	}
}

// LoginStartHandler persists a fresh verifier and sends the browser to the
// identity provider with a full-page redirect.
func (s *Server) LoginStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, err := s.redirector.Begin(r.Context(), s.sessionStore(w, r), s.config.GetRedirectURI())
		if err != nil {
			log.Error().Err(err).Msg("failed to start login")
			http.Error(w, "500 - Could not start sign-in", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// OAuthCallbackHandler completes the login. Every outcome lands on the index
// page; failures leave a short message there instead of provider detail.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := s.callback.Handle(r.Context(), s.sessionStore(w, r), authflow.ParseCallback(r))
		if err != nil {
			s.addFlash(w, r, flashLoginError, authflow.UserMessage(err))
		}
		http.Redirect(w, r, RouteIndex, http.StatusFound)
	}
}

// LogoutHandler clears every token and pending verifier, then signs out at
// the identity provider.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessionStore(w, r).Clear(r.Context()); err != nil {
			log.Error().Err(err).Msg("failed to clear session on logout")
		}
		logoutURL := authflow.LogoutURL(s.config.GetIdPDomain(), s.config.GetClientID(), s.config.GetLogoutURI())
		http.Redirect(w, r, logoutURL, http.StatusFound)
	}
}

type meResponse struct {
	claims.Claims
	ExpiresAt time.Time `json:"expires_at"`
}

// MeHandler returns the session's claims as JSON, 401 without a session.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current, err := s.sessionStore(w, r).Current(r.Context(), s.verifier)
		if err != nil {
			log.Error().Err(err).Msg("failed to load session")
		}
		if current == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, meResponse{Claims: current.Claims, ExpiresAt: current.Claims.ExpiresAt()})
	}
}

// SettingsProxyHandler forwards to the API's public settings, carrying the
// session's ID token when there is one.
func (s *Server) SettingsProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := strings.TrimSuffix(s.config.GetAPIBase(), "/") + RouteSettingsPublic
		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		req.Header.Set("Accept", "application/json")

		tokens, err := s.sessionStore(w, r).Load(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to load session")
		}
		if tokens != nil {
			req.Header.Set("Authorization", "Bearer "+tokens.IDToken)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			log.Error().Err(err).Str("target", target).Msg("settings proxy failed")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "api unavailable"})
			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// addFlash leaves a one-time message for the next page load.
func (s *Server) addFlash(w http.ResponseWriter, r *http.Request, key, message string) {
	kv := session.NewCookieKV(s.sessions, SessionCookieName, w, r)
	if err := kv.Set(r.Context(), key, message); err != nil {
		log.Error().Err(err).Msg("failed to save flash message")
	}
}

func (s *Server) popFlash(w http.ResponseWriter, r *http.Request, key string) string {
	kv := session.NewCookieKV(s.sessions, SessionCookieName, w, r)
	message, ok, err := kv.Get(r.Context(), key)
	if err != nil || !ok {
		return ""
	}
	if err := kv.Delete(r.Context(), key); err != nil {
		log.Error().Err(err).Msg("failed to consume flash message")
	}
	return message
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
