package oauthmodel

// TokenSet is what a successful code exchange yields. The three tokens are
// owned by one session and are always stored and erased together.
type TokenSet struct {
	// AccessToken authorizes calls to resource servers.
	AccessToken string `json:"access_token"`

	// IDToken carries the identity claims. Its "exp" decides session expiry
	// and it is the bearer the protected API accepts.
	IDToken string `json:"id_token"`

	// RefreshToken is optional; some providers omit it for public clients.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds as reported by the
	// provider. A hint only; expiry is decided by the ID token's exp.
	ExpiresIn int64 `json:"expires_in"`
}

// TokenResponse is the JSON body of a token endpoint 200 response.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749.
type TokenResponse struct {
	// AccessToken is the JWT used to access protected resources.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// IdToken is the OpenID Connect ID token containing user identity information.
	// Only present: When "openid" scope was requested
	IdToken string `json:"id_token,omitempty"`

	// TokenType indicates how to use the access token (always "Bearer").
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int64 `json:"expires_in"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenErrorResponse is the RFC 6749 section 5.2 error body.
type TokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
