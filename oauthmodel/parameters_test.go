package oauthmodel_test

import (
	"testing"

	"github.com/jrsteele09/synchub/oauthmodel"
	"github.com/stretchr/testify/require"
)

const (
	testClientID      = "synchub-web"
	testRedirectURI   = "https://app.example.com/oauth2/callback"
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func validRequest() oauthmodel.AuthorizationRequest {
	return oauthmodel.AuthorizationRequest{
		ClientID:            testClientID,
		RedirectURI:         testRedirectURI,
		Scopes:              oauthmodel.DefaultScopes,
		ResponseType:        oauthmodel.ResponseTypeCode,
		State:               "state-1",
		CodeChallenge:       testCodeChallenge,
		CodeChallengeMethod: oauthmodel.CodeMethodTypeS256,
	}
}

func TestValidate(t *testing.T) {
	allowed := []string{testRedirectURI}

	tests := []struct {
		name    string
		mutate  func(*oauthmodel.AuthorizationRequest)
		wantErr error
	}{
		{"valid", func(*oauthmodel.AuthorizationRequest) {}, nil},
		{"missing client", func(r *oauthmodel.AuthorizationRequest) { r.ClientID = "" }, oauthmodel.ErrMissingClientID},
		{"trailing slash is not an exact match", func(r *oauthmodel.AuthorizationRequest) { r.RedirectURI += "/" }, oauthmodel.ErrInvalidRedirectUri},
		{"wildcard host", func(r *oauthmodel.AuthorizationRequest) { r.RedirectURI = "https://evil.example.com/oauth2/callback" }, oauthmodel.ErrInvalidRedirectUri},
		{"plain method", func(r *oauthmodel.AuthorizationRequest) { r.CodeChallengeMethod = "plain" }, oauthmodel.ErrInvalidCodeChallengeMethod},
		{"short challenge", func(r *oauthmodel.AuthorizationRequest) { r.CodeChallenge = "abc" }, oauthmodel.ErrInvalidCodeChallenge},
		{"token response type", func(r *oauthmodel.AuthorizationRequest) { r.ResponseType = "token" }, oauthmodel.ErrInvalidResponseType},
		{"no openid", func(r *oauthmodel.AuthorizationRequest) { r.Scopes = []string{"email"} }, oauthmodel.ErrInvalidScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate(allowed)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValuesOptionalParameters(t *testing.T) {
	req := validRequest()
	v := req.Values()
	require.Equal(t, "openid email profile", v.Get("scope"))
	require.False(t, v.Has("identity_provider"))
	require.False(t, v.Has("prompt"))

	req.IdentityProvider = "Google"
	req.Prompt = oauthmodel.PromptSelectAccount
	v = req.Values()
	require.Equal(t, "Google", v.Get("identity_provider"))
	require.Equal(t, "select_account", v.Get("prompt"))
}
