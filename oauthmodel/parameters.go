package oauthmodel

import (
	"net/url"
	"slices"
	"strings"

	"github.com/jrsteele09/synchub/pkce"
)

type ResponseType string

const ResponseTypeCode ResponseType = "code"

type CodeMethodType string

const CodeMethodTypeS256 CodeMethodType = pkce.MethodS256

// PromptSelectAccount forces the provider's account chooser.
const PromptSelectAccount = "select_account"

// DefaultScopes is the fixed scope set every login requests.
var DefaultScopes = []string{"openid", "email", "profile"}

// AuthorizationRequest holds the query parameters sent to the identity
// provider's /oauth2/authorize endpoint.
type AuthorizationRequest struct {
	// ClientID identifies this application to the identity provider.
	// Required: Yes
	// Example: "4k2j3h4k5j6h7k8j9"
	ClientID string

	// RedirectURI is where the provider sends the browser after login.
	// Required: Yes
	// Example: "https://app.example.com/oauth2/callback"
	// Security: Must exactly match a registered callback URL, no wildcards
	RedirectURI string

	// Scopes requested. Always openid, email and profile.
	Scopes []string

	// ResponseType is always "code"; the implicit flow is not used.
	ResponseType ResponseType

	// State is an opaque per-attempt value echoed back on the callback.
	// Required: Yes (CSRF protection, and the key the verifier is stored under)
	State string

	// CodeChallenge is BASE64URL(SHA256(code_verifier)).
	// Required: Yes, the client is public
	// Length: 43 characters for a 32 byte verifier
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod CodeMethodType

	// IdentityProvider skips the provider's federation chooser.
	// Required: No
	// Example: "Google"
	IdentityProvider string

	// Prompt is "select_account" when the account chooser is forced, else empty.
	Prompt string
}

// Validate checks the request against the registered redirect URIs.
func (p AuthorizationRequest) Validate(allowedRedirectURIs []string) error {
	if p.ClientID == "" {
		return ErrMissingClientID
	}
	if p.ResponseType != ResponseTypeCode {
		return ErrInvalidResponseType
	}
	if !RedirectAllowed(p.RedirectURI, allowedRedirectURIs) {
		return ErrInvalidRedirectUri
	}
	if p.CodeChallengeMethod != CodeMethodTypeS256 {
		return ErrInvalidCodeChallengeMethod
	}
	if pkce.ValidateChallenge(p.CodeChallenge, string(p.CodeChallengeMethod)) != nil {
		return ErrInvalidCodeChallenge
	}
	if !slices.Contains(p.Scopes, "openid") {
		return ErrInvalidScope
	}
	return nil
}

// Values encodes the request as authorize endpoint query parameters.
func (p AuthorizationRequest) Values() url.Values {
	v := url.Values{}
	v.Set("client_id", p.ClientID)
	v.Set("response_type", string(p.ResponseType))
	v.Set("scope", strings.Join(p.Scopes, " "))
	v.Set("redirect_uri", p.RedirectURI)
	v.Set("state", p.State)
	v.Set("code_challenge", p.CodeChallenge)
	v.Set("code_challenge_method", string(p.CodeChallengeMethod))
	if p.IdentityProvider != "" {
		v.Set("identity_provider", p.IdentityProvider)
	}
	if p.Prompt != "" {
		v.Set("prompt", p.Prompt)
	}
	return v
}

// RedirectAllowed reports an exact string match against the allow-list.
func RedirectAllowed(redirectURI string, allowed []string) bool {
	if redirectURI == "" {
		return false
	}
	return slices.Contains(allowed, redirectURI)
}
