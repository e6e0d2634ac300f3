// Package devidp is a small OpenID Connect provider for local development.
// It speaks the authorization code flow with mandatory PKCE S256 and signs
// RS256 ID tokens carrying tenant and admin claims.
package devidp

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/synchub/oauthmodel"
	"github.com/jrsteele09/synchub/pkce"
)

const (
	RouteAuthorize = "/oauth2/authorize"
	RouteToken     = "/oauth2/token"
	RouteDiscovery = "/.well-known/openid-configuration"
	RouteJWKS      = "/.well-known/jwks.json"
	RouteLogout    = "/logout"
)

const (
	defaultTokenTTL = time.Hour
	defaultCodeTTL  = 2 * time.Minute
)

// Token endpoint error codes from RFC 6749 section 5.2.
const (
	errInvalidRequest       = "invalid_request"
	errInvalidClient        = "invalid_client"
	errInvalidGrant         = "invalid_grant"
	errUnsupportedGrantType = "unsupported_grant_type"
	errInvalidScope         = "invalid_scope"
	errAccessDenied         = "access_denied"
)

// TokenError is a token endpoint failure with its OAuth error code.
type TokenError struct {
	Code        string
	Description string
}

func (e *TokenError) Error() string {
	return e.Code + ": " + e.Description
}

type Config struct {
	// Issuer is the public base URL; it becomes the iss claim.
	Issuer   string
	TokenTTL time.Duration
	CodeTTL  time.Duration
}

type Option func(*Provider)

func WithNowTime(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithKeyPair signs with a fixed key instead of a generated one.
func WithKeyPair(kp *KeyPair) Option {
	return func(p *Provider) {
		p.keys = kp
	}
}

// Provider issues authorization codes and tokens for the clients and users in
// its directory.
type Provider struct {
	issuer    string
	tokenTTL  time.Duration
	directory *Directory
	codes     *CodeStore
	keys      *KeyPair
	now       func() time.Time
}

func New(cfg Config, directory *Directory, opts ...Option) (*Provider, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if directory == nil {
		return nil, errors.New("directory is required")
	}

	p := &Provider{
		issuer:    strings.TrimRight(cfg.Issuer, "/"),
		tokenTTL:  cfg.TokenTTL,
		directory: directory,
		now:       time.Now,
	}
	if p.tokenTTL <= 0 {
		p.tokenTTL = defaultTokenTTL
	}
	for _, opt := range opts {
		opt(p)
	}

	codeTTL := cfg.CodeTTL
	if codeTTL <= 0 {
		codeTTL = defaultCodeTTL
	}
	p.codes = NewCodeStore(codeTTL, p.now)

	if p.keys == nil {
		kp, err := GenerateKeyPair(2048)
		if err != nil {
			return nil, err
		}
		p.keys = kp
	}
	return p, nil
}

// Issuer returns the iss value tokens carry.
func (p *Provider) Issuer() string {
	return p.issuer
}

// JWKS returns the public signing keys.
func (p *Provider) JWKS() JWKS {
	return JWKS{Keys: []JWK{p.keys.ToJWK()}}
}

// Codes exposes the code store so callers can sweep it.
func (p *Provider) Codes() *CodeStore {
	return p.codes
}

// ValidateAuthorization checks an authorize request against the registered
// client. A nil client in the result means the redirect URI cannot be trusted
// and the error must not be sent back to it.
func (p *Provider) ValidateAuthorization(req oauthmodel.AuthorizationRequest) (*Client, error) {
	client, err := p.directory.Client(req.ClientID)
	if err != nil {
		return nil, err
	}
	if !oauthmodel.RedirectAllowed(req.RedirectURI, client.RedirectURIs) {
		return nil, oauthmodel.ErrInvalidRedirectUri
	}
	if err := req.Validate(client.RedirectURIs); err != nil {
		return &client, err
	}
	if req.State == "" {
		return &client, errors.New("state is required")
	}
	if err := client.ValidateScopes(strings.Join(req.Scopes, " ")); err != nil {
		return &client, err
	}
	return &client, nil
}

// Login authenticates the user and issues a single-use code bound to the
// request's client, redirect URI and code challenge.
func (p *Provider) Login(req oauthmodel.AuthorizationRequest, email, password, nonce string) (string, error) {
	user, err := p.directory.Authenticate(email, password)
	if err != nil {
		return "", err
	}

	code := rand.Text()
	err = p.codes.Put(code, Grant{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: req.CodeChallenge,
		Scope:         strings.Join(req.Scopes, " "),
		Nonce:         nonce,
		UserSub:       user.Sub,
		CreatedAt:     p.now(),
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// ExchangeInput is the form body of an authorization_code token request.
type ExchangeInput struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string
}

// Exchange redeems a code. The code is consumed before any other check so a
// failed attempt cannot be retried.
func (p *Provider) Exchange(in ExchangeInput) (oauthmodel.TokenResponse, error) {
	if in.GrantType != "authorization_code" {
		return oauthmodel.TokenResponse{}, &TokenError{errUnsupportedGrantType, "only authorization_code is supported"}
	}
	if in.Code == "" || in.RedirectURI == "" || in.CodeVerifier == "" {
		return oauthmodel.TokenResponse{}, &TokenError{errInvalidRequest, "code, redirect_uri and code_verifier are required"}
	}
	client, err := p.directory.Client(in.ClientID)
	if err != nil {
		return oauthmodel.TokenResponse{}, &TokenError{errInvalidClient, "unknown client"}
	}

	grant, err := p.codes.Take(in.Code)
	if err != nil {
		return oauthmodel.TokenResponse{}, &TokenError{errInvalidGrant, "invalid or expired authorization code"}
	}
	if grant.ClientID != client.ID {
		return oauthmodel.TokenResponse{}, &TokenError{errInvalidGrant, "code was issued to another client"}
	}
	if grant.RedirectURI != in.RedirectURI {
		return oauthmodel.TokenResponse{}, &TokenError{errInvalidGrant, "redirect_uri mismatch"}
	}
	if err := pkce.ValidateVerifier(in.CodeVerifier); err != nil {
		return oauthmodel.TokenResponse{}, &TokenError{errInvalidGrant, err.Error()}
	}
	if !pkce.Verify(in.CodeVerifier, grant.CodeChallenge) {
		return oauthmodel.TokenResponse{}, &TokenError{errInvalidGrant, "PKCE verification failed"}
	}

	user, ok := p.directory.User(grant.UserSub)
	if !ok {
		return oauthmodel.TokenResponse{}, &TokenError{errInvalidGrant, "user no longer exists"}
	}
	return p.issueTokens(client, user, grant)
}

func (p *Provider) issueTokens(client Client, user User, grant Grant) (oauthmodel.TokenResponse, error) {
	now := p.now()
	exp := now.Add(p.tokenTTL)

	idClaims := jwt.MapClaims{
		"iss":            p.issuer,
		"aud":            client.ID,
		"sub":            user.Sub,
		"email":          user.Email,
		"email_verified": true,
		"tenant_id":      user.TenantID,
		"is_admin":       user.IsAdmin,
		"token_use":      "id",
		"auth_time":      grant.CreatedAt.Unix(),
		"iat":            now.Unix(),
		"exp":            exp.Unix(),
	}
	if len(user.Groups) > 0 {
		idClaims["cognito:groups"] = user.Groups
	}
	if grant.Nonce != "" {
		idClaims["nonce"] = grant.Nonce
	}
	idToken, err := p.keys.Sign(idClaims)
	if err != nil {
		return oauthmodel.TokenResponse{}, err
	}

	accessToken, err := p.keys.Sign(jwt.MapClaims{
		"iss":       p.issuer,
		"sub":       user.Sub,
		"client_id": client.ID,
		"scope":     grant.Scope,
		"tenant_id": user.TenantID,
		"token_use": "access",
		"jti":       uuid.NewString(),
		"iat":       now.Unix(),
		"exp":       exp.Unix(),
	})
	if err != nil {
		return oauthmodel.TokenResponse{}, err
	}

	return oauthmodel.TokenResponse{
		AccessToken: accessToken,
		IdToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(p.tokenTTL.Seconds()),
	}, nil
}

// LogoutRedirect returns where to send the browser after logout.
func (p *Provider) LogoutRedirect(clientID, logoutURI string) (string, error) {
	client, err := p.directory.Client(clientID)
	if err != nil {
		return "", err
	}
	if !oauthmodel.RedirectAllowed(logoutURI, client.LogoutURIs) {
		return "", errors.New("logout_uri is not registered")
	}
	return logoutURI, nil
}

// Discovery is the OpenID provider metadata document.
func (p *Provider) Discovery() map[string]any {
	return map[string]any{
		"issuer":                                p.issuer,
		"authorization_endpoint":                p.issuer + RouteAuthorize,
		"token_endpoint":                        p.issuer + RouteToken,
		"jwks_uri":                              p.issuer + RouteJWKS,
		"end_session_endpoint":                  p.issuer + RouteLogout,
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"scopes_supported":                      oauthmodel.DefaultScopes,
		"token_endpoint_auth_methods_supported": []string{"none"},
		"code_challenge_methods_supported":      []string{pkce.MethodS256},
		"claims_supported": []string{
			"sub", "email", "tenant_id", "is_admin", "cognito:groups",
		},
	}
}
