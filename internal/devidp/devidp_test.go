package devidp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/synchub/authflow"
	"github.com/jrsteele09/synchub/claims"
	"github.com/jrsteele09/synchub/internal/devidp"
	"github.com/jrsteele09/synchub/oauthmodel"
	"github.com/jrsteele09/synchub/pkce"
	"github.com/jrsteele09/synchub/session"
	"github.com/stretchr/testify/require"
)

const (
	testClientID    = "cli"
	testRedirectURI = "http://127.0.0.1:8765/callback"
	testLogoutURI   = "http://127.0.0.1:8765/"
)

const testSeed = `
clients:
  - id: cli
    redirect_uris: [http://127.0.0.1:8765/callback]
    logout_uris: [http://127.0.0.1:8765/]
users:
  - sub: user-1
    email: alice@acme.test
    password: alice-password
    tenant_id: acme
  - sub: user-2
    email: root@acme.test
    password: root-password
    tenant_id: acme
    is_admin: true
    groups: [admins]
`

type idpFixture struct {
	srv      *httptest.Server
	provider *devidp.Provider
	client   *http.Client
	now      time.Time
}

func setupIdP(t *testing.T) *idpFixture {
	t.Helper()
	dir, err := devidp.LoadDirectory(strings.NewReader(testSeed))
	require.NoError(t, err)

	f := &idpFixture{now: time.Now()}
	var handler http.Handler
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)

	f.provider, err = devidp.New(devidp.Config{Issuer: f.srv.URL}, dir,
		devidp.WithNowTime(func() time.Time { return f.now }))
	require.NoError(t, err)
	handler = f.provider.Handler()

	f.client = &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	return f
}

func (f *idpFixture) authorizeParams(pair pkce.PkceChallengePair, state string) url.Values {
	return url.Values{
		"client_id":             {testClientID},
		"redirect_uri":          {testRedirectURI},
		"response_type":         {"code"},
		"scope":                 {"openid email profile"},
		"state":                 {state},
		"code_challenge":        {pair.Challenge},
		"code_challenge_method": {pkce.MethodS256},
	}
}

// login submits the login form and returns the redirect location.
func (f *idpFixture) login(t *testing.T, params url.Values, email, password string) *url.URL {
	t.Helper()
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("email", email)
	form.Set("password", password)
	form.Set("action", "login")

	resp, err := f.client.PostForm(f.srv.URL+devidp.RouteAuthorize, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return loc
}

func (f *idpFixture) token(t *testing.T, form url.Values) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := f.client.PostForm(f.srv.URL+devidp.RouteToken, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestFullLoginThroughAuthflow(t *testing.T) {
	f := setupIdP(t)
	ctx := context.Background()

	redirector, err := authflow.NewRedirector(authflow.RedirectorConfig{
		ClientID:            testClientID,
		IdPDomain:           f.srv.URL,
		AllowedRedirectURIs: []string{testRedirectURI},
	})
	require.NoError(t, err)

	store := session.NewStore(session.NewMemoryKV())
	authURL, err := redirector.Begin(ctx, store, testRedirectURI)
	require.NoError(t, err)

	resp, err := f.client.Get(authURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	loc := f.login(t, u.Query(), "root@acme.test", "root-password")
	require.Equal(t, "127.0.0.1:8765", loc.Host)
	require.Equal(t, u.Query().Get("state"), loc.Query().Get("state"))

	extractor, err := claims.NewRemoteExtractor(ctx, f.srv.URL, f.srv.URL+devidp.RouteJWKS, testClientID)
	require.NoError(t, err)
	handler, err := authflow.NewCallbackHandler(authflow.NewOAuth2Exchanger(authflow.Endpoint(f.srv.URL)), extractor, testClientID, testRedirectURI)
	require.NoError(t, err)

	sess, err := handler.Handle(ctx, store, authflow.Callback{
		Code:  loc.Query().Get("code"),
		State: loc.Query().Get("state"),
	})
	require.NoError(t, err)
	require.Equal(t, "user-2", sess.Claims.Sub)
	require.Equal(t, "root@acme.test", sess.Claims.Email)
	require.Equal(t, "acme", sess.Claims.TenantID)
	require.True(t, sess.Claims.IsAdmin)

	current, err := store.Current(ctx, extractor)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, "user-2", current.Claims.Sub)
}

func TestTokenCodeIsSingleUse(t *testing.T) {
	f := setupIdP(t)
	pair := pkce.Generate()
	loc := f.login(t, f.authorizeParams(pair, "s1"), "alice@acme.test", "alice-password")

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {loc.Query().Get("code")},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {testClientID},
		"code_verifier": {pair.Verifier},
	}
	resp, body := f.token(t, form)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.NotEmpty(t, body["id_token"])
	require.NotEmpty(t, body["access_token"])
	require.Equal(t, "Bearer", body["token_type"])

	resp, body = f.token(t, form)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_grant", body["error"])
}

func TestTokenRejects(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(form url.Values)
		status    int
		errorCode string
	}{
		{
			name:      "wrong verifier",
			mutate:    func(form url.Values) { form.Set("code_verifier", pkce.Generate().Verifier) },
			status:    http.StatusBadRequest,
			errorCode: "invalid_grant",
		},
		{
			name:      "redirect uri mismatch",
			mutate:    func(form url.Values) { form.Set("redirect_uri", "http://127.0.0.1:8765/other") },
			status:    http.StatusBadRequest,
			errorCode: "invalid_grant",
		},
		{
			name:      "unknown client",
			mutate:    func(form url.Values) { form.Set("client_id", "nope") },
			status:    http.StatusUnauthorized,
			errorCode: "invalid_client",
		},
		{
			name:      "wrong grant type",
			mutate:    func(form url.Values) { form.Set("grant_type", "password") },
			status:    http.StatusBadRequest,
			errorCode: "unsupported_grant_type",
		},
		{
			name:      "missing verifier",
			mutate:    func(form url.Values) { form.Del("code_verifier") },
			status:    http.StatusBadRequest,
			errorCode: "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupIdP(t)
			pair := pkce.Generate()
			loc := f.login(t, f.authorizeParams(pair, "s1"), "alice@acme.test", "alice-password")

			form := url.Values{
				"grant_type":    {"authorization_code"},
				"code":          {loc.Query().Get("code")},
				"redirect_uri":  {testRedirectURI},
				"client_id":     {testClientID},
				"code_verifier": {pair.Verifier},
			}
			tt.mutate(form)

			resp, body := f.token(t, form)
			require.Equal(t, tt.status, resp.StatusCode)
			require.Equal(t, tt.errorCode, body["error"])
		})
	}
}

func TestExpiredCodeIsRejected(t *testing.T) {
	f := setupIdP(t)
	pair := pkce.Generate()
	loc := f.login(t, f.authorizeParams(pair, "s1"), "alice@acme.test", "alice-password")

	f.now = f.now.Add(10 * time.Minute)
	_, err := f.provider.Exchange(devidp.ExchangeInput{
		GrantType:    "authorization_code",
		Code:         loc.Query().Get("code"),
		RedirectURI:  testRedirectURI,
		ClientID:     testClientID,
		CodeVerifier: pair.Verifier,
	})
	var tokenErr *devidp.TokenError
	require.ErrorAs(t, err, &tokenErr)
	require.Equal(t, "invalid_grant", tokenErr.Code)
}

func TestAuthorizeValidation(t *testing.T) {
	f := setupIdP(t)
	pair := pkce.Generate()

	t.Run("unregistered redirect is not followed", func(t *testing.T) {
		params := f.authorizeParams(pair, "s1")
		params.Set("redirect_uri", "https://evil.test/callback")
		resp, err := f.client.Get(f.srv.URL + devidp.RouteAuthorize + "?" + params.Encode())
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Empty(t, resp.Header.Get("Location"))
	})

	t.Run("unknown client", func(t *testing.T) {
		params := f.authorizeParams(pair, "s1")
		params.Set("client_id", "nope")
		resp, err := f.client.Get(f.srv.URL + devidp.RouteAuthorize + "?" + params.Encode())
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("plain challenge method goes back to client", func(t *testing.T) {
		params := f.authorizeParams(pair, "s1")
		params.Set("code_challenge_method", "plain")
		resp, err := f.client.Get(f.srv.URL + devidp.RouteAuthorize + "?" + params.Encode())
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)

		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "invalid_request", loc.Query().Get("error"))
		require.Equal(t, "s1", loc.Query().Get("state"))
	})

	t.Run("scope outside the client", func(t *testing.T) {
		params := f.authorizeParams(pair, "s1")
		params.Set("scope", "openid admin")
		resp, err := f.client.Get(f.srv.URL + devidp.RouteAuthorize + "?" + params.Encode())
		require.NoError(t, err)
		resp.Body.Close()

		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "invalid_scope", loc.Query().Get("error"))
	})
}

func TestLoginFailureAndCancel(t *testing.T) {
	f := setupIdP(t)
	params := f.authorizeParams(pkce.Generate(), "s1")

	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("email", "alice@acme.test")
	form.Set("password", "wrong")
	resp, err := f.client.PostForm(f.srv.URL+devidp.RouteAuthorize, form)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	form.Set("action", "cancel")
	resp, err = f.client.PostForm(f.srv.URL+devidp.RouteAuthorize, form)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "access_denied", loc.Query().Get("error"))
	require.Empty(t, loc.Query().Get("code"))

	cb := authflow.Callback{Error: loc.Query().Get("error"), ErrorDescription: loc.Query().Get("error_description"), State: "s1"}
	handler, err := authflow.NewCallbackHandler(authflow.NewOAuth2Exchanger(authflow.Endpoint(f.srv.URL)), noVerifier{}, testClientID, testRedirectURI)
	require.NoError(t, err)
	_, err = handler.Handle(context.Background(), session.NewStore(session.NewMemoryKV()), cb)
	require.Error(t, err)
	require.False(t, authflow.RestartRequired(err))
}

type noVerifier struct{}

func (noVerifier) Verify(context.Context, string) (claims.Claims, error) {
	return claims.Anonymous(), nil
}

func TestDiscoveryAndJWKS(t *testing.T) {
	f := setupIdP(t)

	resp, err := f.client.Get(f.srv.URL + devidp.RouteDiscovery)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	resp.Body.Close()
	require.Equal(t, f.srv.URL, doc["issuer"])
	require.Equal(t, f.srv.URL+devidp.RouteJWKS, doc["jwks_uri"])
	require.Equal(t, []any{"S256"}, doc["code_challenge_methods_supported"])

	resp, err = f.client.Get(f.srv.URL + devidp.RouteJWKS)
	require.NoError(t, err)
	var jwks devidp.JWKS
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
	resp.Body.Close()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "RSA", jwks.Keys[0].Kty)
	require.Equal(t, "RS256", jwks.Keys[0].Alg)
}

func TestLogoutRedirect(t *testing.T) {
	f := setupIdP(t)

	logoutURL := authflow.LogoutURL(f.srv.URL, testClientID, testLogoutURI)
	resp, err := f.client.Get(logoutURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, testLogoutURI, resp.Header.Get("Location"))

	resp, err = f.client.Get(authflow.LogoutURL(f.srv.URL, testClientID, "https://evil.test/"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoadDirectory(t *testing.T) {
	_, err := devidp.LoadDirectory(strings.NewReader("users:\n  - sub: u\n    email: e@x.test\n"))
	require.Error(t, err)

	dir, err := devidp.DefaultDirectory()
	require.NoError(t, err)
	client, err := dir.Client("synchub-web")
	require.NoError(t, err)
	require.Equal(t, oauthmodel.DefaultScopes, client.Scopes)

	_, err = dir.Authenticate("ALICE@acme.test", "alice-password")
	require.NoError(t, err)
	_, err = dir.Authenticate("alice@acme.test", "nope")
	require.ErrorIs(t, err, devidp.ErrInvalidCredentials)
}

func TestKeyPairRoundTrip(t *testing.T) {
	kp, err := devidp.GenerateKeyPair(2048)
	require.NoError(t, err)

	loaded, err := devidp.ParseKeyPair("k1", []byte(kp.ExportPrivateKeyPEM()))
	require.NoError(t, err)
	require.Equal(t, "k1", loaded.KeyID)
	require.True(t, kp.PrivateKey.Equal(loaded.PrivateKey))

	_, err = devidp.ParseKeyPair("k1", []byte("not pem"))
	require.Error(t, err)
}
