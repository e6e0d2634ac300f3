package devidp

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/synchub/oauthmodel"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

//go:embed templates/*.html
var templatesFS embed.FS

var loginTemplate = template.Must(template.ParseFS(templatesFS, "templates/login.html"))

type loginPage struct {
	ClientID    string
	Description string
	Params      url.Values
	Email       string
	Error       string
}

// Handler routes every provider endpoint.
func (p *Provider) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+RouteAuthorize, p.AuthorizeHandler())
	mux.HandleFunc("POST "+RouteAuthorize, p.LoginHandler())
	mux.HandleFunc("POST "+RouteToken, p.TokenHandler())
	mux.HandleFunc("GET "+RouteDiscovery, p.DiscoveryHandler())
	mux.HandleFunc("GET "+RouteJWKS, p.JWKSHandler())
	mux.HandleFunc("GET "+RouteLogout, p.LogoutHandler())
	return mux
}

// AuthorizeHandler validates the request and renders the login form.
func (p *Provider) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		req := authorizationRequestFrom(params)

		client, err := p.ValidateAuthorization(req)
		if err != nil {
			p.rejectAuthorization(w, r, client, req, err)
			return
		}

		p.renderLogin(w, http.StatusOK, loginPage{
			ClientID:    client.ID,
			Description: client.Description,
			Params:      authorizeParams(params),
		})
	}
}

// LoginHandler checks the submitted credentials and redirects back to the
// client with a code, or with error=access_denied when the user cancels.
func (p *Provider) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		req := authorizationRequestFrom(r.PostForm)

		client, err := p.ValidateAuthorization(req)
		if err != nil {
			p.rejectAuthorization(w, r, client, req, err)
			return
		}

		if r.PostForm.Get("action") == "cancel" {
			redirectWithParams(w, r, req.RedirectURI, url.Values{
				"error":             {errAccessDenied},
				"error_description": {"The user cancelled the sign-in"},
				"state":             {req.State},
			})
			return
		}

		email := r.PostForm.Get("email")
		code, err := p.Login(req, email, r.PostForm.Get("password"), r.PostForm.Get("nonce"))
		if err != nil {
			log.Info().Str("email", email).Str("client_id", req.ClientID).Msg("login failed")
			p.renderLogin(w, http.StatusUnauthorized, loginPage{
				ClientID:    client.ID,
				Description: client.Description,
				Params:      authorizeParams(r.PostForm),
				Email:       email,
				Error:       "Invalid email or password",
			})
			return
		}

		log.Info().Str("email", email).Str("client_id", req.ClientID).Msg("login succeeded")
		redirectWithParams(w, r, req.RedirectURI, url.Values{
			"code":  {code},
			"state": {req.State},
		})
	}
}

// TokenHandler handles POST /oauth2/token for the authorization_code grant.
func (p *Provider) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, errInvalidRequest, "invalid form body", http.StatusBadRequest)
			return
		}

		resp, err := p.Exchange(ExchangeInput{
			GrantType:    r.PostForm.Get("grant_type"),
			Code:         r.PostForm.Get("code"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			ClientID:     r.PostForm.Get("client_id"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
		})
		if err != nil {
			var tokenErr *TokenError
			if !errors.As(err, &tokenErr) {
				log.Error().Err(err).Msg("token issue failed")
				writeJSONError(w, "server_error", "failed to issue tokens", http.StatusInternalServerError)
				return
			}
			status := http.StatusBadRequest
			if tokenErr.Code == errInvalidClient {
				status = http.StatusUnauthorized
			}
			writeJSONError(w, tokenErr.Code, tokenErr.Description, status)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// DiscoveryHandler serves the OIDC discovery document
func (p *Provider) DiscoveryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(p.Discovery())
	}
}

// JWKSHandler serves the public signing keys.
func (p *Provider) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = json.NewEncoder(w).Encode(p.JWKS())
	}
}

// LogoutHandler sends the browser to a registered logout_uri. Tokens are
// stateless so there is nothing to revoke.
func (p *Provider) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		target, err := p.LogoutRedirect(q.Get("client_id"), q.Get("logout_uri"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// rejectAuthorization reports an invalid authorize request. Errors go back to
// the client only when its redirect URI has been verified.
func (p *Provider) rejectAuthorization(w http.ResponseWriter, r *http.Request, client *Client, req oauthmodel.AuthorizationRequest, err error) {
	if client == nil {
		log.Warn().Err(err).Str("client_id", req.ClientID).Msg("authorize rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	code := errInvalidRequest
	if errors.Is(err, oauthmodel.ErrInvalidScope) {
		code = errInvalidScope
	}
	redirectWithParams(w, r, req.RedirectURI, url.Values{
		"error":             {code},
		"error_description": {err.Error()},
		"state":             {req.State},
	})
}

func (p *Provider) renderLogin(w http.ResponseWriter, status int, page loginPage) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := loginTemplate.Execute(w, page); err != nil {
		log.Error().Err(err).Msg("failed to render login page")
	}
}

func authorizationRequestFrom(v url.Values) oauthmodel.AuthorizationRequest {
	return oauthmodel.AuthorizationRequest{
		ClientID:            v.Get("client_id"),
		RedirectURI:         v.Get("redirect_uri"),
		Scopes:              strings.Fields(v.Get("scope")),
		ResponseType:        oauthmodel.ResponseType(v.Get("response_type")),
		State:               v.Get("state"),
		CodeChallenge:       v.Get("code_challenge"),
		CodeChallengeMethod: oauthmodel.CodeMethodType(v.Get("code_challenge_method")),
		IdentityProvider:    v.Get("identity_provider"),
		Prompt:              v.Get("prompt"),
	}
}

// authorizeParams keeps the request parameters the login form must echo back.
func authorizeParams(v url.Values) url.Values {
	keep := url.Values{}
	for _, k := range []string{
		"client_id", "redirect_uri", "scope", "response_type", "state",
		"code_challenge", "code_challenge_method", "nonce", "prompt", "identity_provider",
	} {
		if val := v.Get(k); val != "" {
			keep.Set(k, val)
		}
	}
	return keep
}

func redirectWithParams(w http.ResponseWriter, r *http.Request, target string, params url.Values) {
	u, err := url.Parse(target)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	q := u.Query()
	for k, vals := range params {
		for _, v := range vals {
			if v != "" {
				q.Add(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(oauthmodel.TokenErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}
