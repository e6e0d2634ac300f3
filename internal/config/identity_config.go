package config

import "strings"

const (
	idpDomainVar           = "IDP_DOMAIN"
	idpClientIDVar         = "IDP_CLIENT_ID"
	redirectURIVar         = "REDIRECT_URI"
	redirectURIsVar        = "REDIRECT_URIS"
	logoutURIVar           = "LOGOUT_URI"
	idpHintVar             = "IDP_HINT"
	forceAccountChooserVar = "FORCE_ACCOUNT_CHOOSER"
	idpIssuerVar           = "IDP_ISSUER"
	idpJWKSURLVar          = "IDP_JWKS_URL"
)

// IdentityConfig describes the external identity provider and this client's
// registration with it.
type IdentityConfig interface {
	GetIdPDomain() string
	GetClientID() string
	GetRedirectURI() string
	GetAllowedRedirectURIs() []string
	GetLogoutURI() string
	GetIdentityProviderHint() string
	GetForceAccountChooser() bool
	GetIssuer() string
	GetJWKSURL() string
	GetScopes() []string
}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetIdPDomain() string {
	return strings.TrimSuffix(GetEnv(idpDomainVar, "http://localhost:9000"), "/")
}

func (Identity) GetClientID() string {
	return GetEnv(idpClientIDVar, "synchub-web")
}

func (Identity) GetRedirectURI() string {
	return GetEnv(redirectURIVar, "http://localhost:8080/oauth2/callback")
}

// GetAllowedRedirectURIs returns the callback URLs registered with the identity
// provider. The configured redirect URI is always part of the list.
func (i Identity) GetAllowedRedirectURIs() []string {
	uris := GetEnvList(redirectURIsVar, "")
	primary := i.GetRedirectURI()
	for _, u := range uris {
		if u == primary {
			return uris
		}
	}
	return append([]string{primary}, uris...)
}

func (Identity) GetLogoutURI() string {
	return GetEnv(logoutURIVar, "http://localhost:8080/")
}

// GetIdentityProviderHint is sent as identity_provider, e.g. "Google"; empty omits it
func (Identity) GetIdentityProviderHint() string {
	return GetEnv(idpHintVar, "")
}

func (Identity) GetForceAccountChooser() bool {
	return GetEnvBool(forceAccountChooserVar, false)
}

func (i Identity) GetIssuer() string {
	return strings.TrimSuffix(GetEnv(idpIssuerVar, i.GetIdPDomain()), "/")
}

func (i Identity) GetJWKSURL() string {
	return GetEnv(idpJWKSURLVar, i.GetIssuer()+"/.well-known/jwks.json")
}

func (Identity) GetScopes() []string {
	return []string{"openid", "email", "profile"}
}
