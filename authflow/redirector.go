// Package authflow runs the authorization code + PKCE login against the
// identity provider: building the authorize redirect, handling the callback
// and exchanging the code for tokens.
package authflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/jrsteele09/synchub/oauthmodel"
	"github.com/jrsteele09/synchub/pkce"
	"golang.org/x/oauth2"
)

const (
	authorizePath = "/oauth2/authorize"
	tokenPath     = "/oauth2/token"
	logoutPath    = "/logout"
)

// VerifierSaver persists a verifier for the attempt identified by state.
type VerifierSaver interface {
	SaveVerifier(ctx context.Context, state, verifier string) error
}

// RedirectorConfig is the client registration used to build authorize URLs.
type RedirectorConfig struct {
	ClientID             string
	IdPDomain            string
	AllowedRedirectURIs  []string
	Scopes               []string
	IdentityProviderHint string
	ForceAccountChooser  bool
}

// Redirector builds authorize endpoint URLs. The browser must navigate to
// them as a full page load; the provider's login UI cannot be embedded.
type Redirector struct {
	oauth               oauth2.Config
	allowedRedirectURIs []string
	idpHint             string
	forceAccountChooser bool
}

func NewRedirector(cfg RedirectorConfig) (*Redirector, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("[NewRedirector] client id is required")
	}
	if cfg.IdPDomain == "" {
		return nil, fmt.Errorf("[NewRedirector] identity provider domain is required")
	}
	if len(cfg.AllowedRedirectURIs) == 0 {
		return nil, fmt.Errorf("[NewRedirector] at least one redirect URI is required")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = oauthmodel.DefaultScopes
	}
	return &Redirector{
		oauth: oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: Endpoint(cfg.IdPDomain),
			Scopes:   scopes,
		},
		allowedRedirectURIs: cfg.AllowedRedirectURIs,
		idpHint:             cfg.IdentityProviderHint,
		forceAccountChooser: cfg.ForceAccountChooser,
	}, nil
}

// Endpoint returns the provider's authorize and token endpoints. The client
// is public, so credentials travel in the form body and no secret is sent.
func Endpoint(idpDomain string) oauth2.Endpoint {
	base := strings.TrimSuffix(idpDomain, "/")
	return oauth2.Endpoint{
		AuthURL:   base + authorizePath,
		TokenURL:  base + tokenPath,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// AuthorizationRequest assembles the request for one attempt.
func (r *Redirector) AuthorizationRequest(redirectURI, state string, pair pkce.PkceChallengePair) oauthmodel.AuthorizationRequest {
	req := oauthmodel.AuthorizationRequest{
		ClientID:            r.oauth.ClientID,
		RedirectURI:         redirectURI,
		Scopes:              r.oauth.Scopes,
		ResponseType:        oauthmodel.ResponseTypeCode,
		State:               state,
		CodeChallenge:       pair.Challenge,
		CodeChallengeMethod: oauthmodel.CodeMethodType(pair.Method),
		IdentityProvider:    r.idpHint,
	}
	if r.forceAccountChooser {
		req.Prompt = oauthmodel.PromptSelectAccount
	}
	return req
}

// BuildAuthorizeURL validates req and renders it as a percent-encoded URL.
func (r *Redirector) BuildAuthorizeURL(req oauthmodel.AuthorizationRequest) (string, error) {
	if err := req.Validate(r.allowedRedirectURIs); err != nil {
		if err == oauthmodel.ErrInvalidRedirectUri {
			return "", apperrors.Wrapf(apperrors.ErrInvalidRedirectURI, "[BuildAuthorizeURL] %q", req.RedirectURI)
		}
		return "", apperrors.Wrapf(err, "[BuildAuthorizeURL]")
	}

	cfg := r.oauth
	cfg.RedirectURL = req.RedirectURI
	cfg.Scopes = req.Scopes

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", string(req.CodeChallengeMethod)),
	}
	if req.IdentityProvider != "" {
		opts = append(opts, oauth2.SetAuthURLParam("identity_provider", req.IdentityProvider))
	}
	if req.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", req.Prompt))
	}
	return cfg.AuthCodeURL(req.State, opts...), nil
}

// Begin starts a login attempt: it generates the PKCE pair and state,
// persists the verifier under that state, and returns the URL to navigate to.
func (r *Redirector) Begin(ctx context.Context, store VerifierSaver, redirectURI string) (string, error) {
	if !oauthmodel.RedirectAllowed(redirectURI, r.allowedRedirectURIs) {
		return "", apperrors.Wrapf(apperrors.ErrInvalidRedirectURI, "[Begin] %q", redirectURI)
	}
	pair := pkce.Generate()
	state := generateRandomString(32)

	authURL, err := r.BuildAuthorizeURL(r.AuthorizationRequest(redirectURI, state, pair))
	if err != nil {
		return "", err
	}
	if err := store.SaveVerifier(ctx, state, pair.Verifier); err != nil {
		return "", apperrors.Wrapf(err, "[Begin] save verifier")
	}
	return authURL, nil
}

// LogoutURL builds the provider's logout redirect.
func LogoutURL(idpDomain, clientID, logoutURI string) string {
	v := url.Values{}
	v.Set("client_id", clientID)
	v.Set("logout_uri", logoutURI)
	return strings.TrimSuffix(idpDomain, "/") + logoutPath + "?" + v.Encode()
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
