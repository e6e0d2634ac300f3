package authflow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/synchub/authflow"
	"github.com/jrsteele09/synchub/claims"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/jrsteele09/synchub/internal/testutil"
	"github.com/jrsteele09/synchub/oauthmodel"
	"github.com/jrsteele09/synchub/session"
	"github.com/stretchr/testify/require"
)

const (
	testState = "state-1"
	testCode  = "ABC123"
)

// countingExchanger records calls and returns canned tokens.
type countingExchanger struct {
	calls  atomic.Int32
	last   authflow.ExchangeRequest
	tokens oauthmodel.TokenSet
	err    error
}

func (e *countingExchanger) Exchange(_ context.Context, req authflow.ExchangeRequest) (oauthmodel.TokenSet, error) {
	e.calls.Add(1)
	e.last = req
	return e.tokens, e.err
}

type testFixture struct {
	issuer    *testutil.Issuer
	extractor *claims.Extractor
	kv        *session.MemoryKV
	store     *session.Store
	exchanger *countingExchanger
	handler   *authflow.CallbackHandler
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	issuer := testutil.NewIssuer(t)
	ex, err := claims.NewExtractor(issuer.URL, issuer.ClientID, issuer.KeySet())
	require.NoError(t, err)

	kv := session.NewMemoryKV()
	exchanger := &countingExchanger{
		tokens: oauthmodel.TokenSet{
			AccessToken:  "access-1",
			IDToken:      issuer.IDToken(t, "user-1", "T1", false),
			RefreshToken: "refresh-1",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
		},
	}
	h, err := authflow.NewCallbackHandler(exchanger, ex, issuer.ClientID, testRedirectURI)
	require.NoError(t, err)

	return &testFixture{
		issuer:    issuer,
		extractor: ex,
		kv:        kv,
		store:     session.NewStore(kv),
		exchanger: exchanger,
		handler:   h,
	}
}

func (f *testFixture) requireUnauthenticated(t *testing.T) {
	t.Helper()
	tokens, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, tokens)
	_, ok, err := f.kv.Get(context.Background(), "pkce")
	require.NoError(t, err)
	require.False(t, ok, "verifier must not survive a failed callback")
}

func TestCallbackProviderErrorSkipsExchange(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveVerifier(ctx, testState, "verifier-1"))

	s, err := f.handler.Handle(ctx, f.store, authflow.Callback{
		State:            testState,
		Error:            "access_denied",
		ErrorDescription: "User cancelled the login",
	})
	require.Nil(t, s)

	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "access_denied", pe.Code)
	require.Equal(t, "User cancelled the login", authflow.UserMessage(err))
	require.False(t, authflow.RestartRequired(err))

	require.Zero(t, f.exchanger.calls.Load())
	f.requireUnauthenticated(t)
}

func TestCallbackMissingCodeIsMalformed(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveVerifier(ctx, testState, "verifier-1"))

	_, err := f.handler.Handle(ctx, f.store, authflow.Callback{State: testState})
	require.ErrorIs(t, err, apperrors.ErrMalformedCallback)
	require.True(t, authflow.RestartRequired(err))
	require.Zero(t, f.exchanger.calls.Load())
	f.requireUnauthenticated(t)
}

func TestCallbackMissingVerifierSkipsExchange(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.handler.Handle(context.Background(), f.store, authflow.Callback{Code: testCode, State: testState})
	require.ErrorIs(t, err, apperrors.ErrMissingVerifier)
	require.Zero(t, f.exchanger.calls.Load())
	f.requireUnauthenticated(t)
}

func TestCallbackVerifierFromOtherAttemptIsNotUsed(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveVerifier(ctx, "other-tab", "verifier-other"))

	_, err := f.handler.Handle(ctx, f.store, authflow.Callback{Code: testCode, State: testState})
	require.ErrorIs(t, err, apperrors.ErrMissingVerifier)
	require.Zero(t, f.exchanger.calls.Load())
}

func TestCallbackSuccess(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveVerifier(ctx, testState, "verifier-1"))

	s, err := f.handler.Handle(ctx, f.store, authflow.Callback{Code: testCode, State: testState})
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, "user-1", s.Claims.Sub)
	require.Equal(t, "T1", s.Claims.TenantID)

	require.Equal(t, int32(1), f.exchanger.calls.Load())
	require.Equal(t, authflow.ExchangeRequest{
		Code:        testCode,
		Verifier:    "verifier-1",
		RedirectURI: testRedirectURI,
		ClientID:    f.issuer.ClientID,
	}, f.exchanger.last)

	current, err := f.store.Current(ctx, f.extractor)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, s.Claims, current.Claims)

	_, ok, err := f.store.TakeVerifier(ctx, testState)
	require.NoError(t, err)
	require.False(t, ok, "verifier deleted after exchange")
}

func TestCallbackFailedExchangeDeletesVerifier(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.exchanger.err = &apperrors.TokenExchangeError{StatusCode: http.StatusBadRequest, Body: `{"error":"invalid_grant"}`}
	require.NoError(t, f.store.SaveVerifier(ctx, testState, "verifier-1"))

	_, err := f.handler.Handle(ctx, f.store, authflow.Callback{Code: testCode, State: testState})
	require.ErrorIs(t, err, apperrors.ErrTokenExchange)
	require.Equal(t, int32(1), f.exchanger.calls.Load())
	f.requireUnauthenticated(t)

	// A replayed callback cannot exchange again.
	_, err = f.handler.Handle(ctx, f.store, authflow.Callback{Code: testCode, State: testState})
	require.ErrorIs(t, err, apperrors.ErrMissingVerifier)
	require.Equal(t, int32(1), f.exchanger.calls.Load())
}

func TestCallbackRejectsUnverifiableIDToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.exchanger.tokens.IDToken = testutil.NewIssuer(t).IDToken(t, "user-1", "T1", true)
	require.NoError(t, f.store.SaveVerifier(ctx, testState, "verifier-1"))

	_, err := f.handler.Handle(ctx, f.store, authflow.Callback{Code: testCode, State: testState})
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	f.requireUnauthenticated(t)
}

func TestParseCallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/oauth2/callback?code=c&state=s&error=e&error_description=d", nil)
	require.Equal(t, authflow.Callback{Code: "c", State: "s", Error: "e", ErrorDescription: "d"}, authflow.ParseCallback(r))
}

// End to end: the token endpoint receives exactly the verifier whose
// challenge went into the authorize URL.
func TestLoginEndToEnd(t *testing.T) {
	ctx := context.Background()
	issuer := testutil.NewIssuer(t)

	var tokenCalls atomic.Int32
	var challenge string
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth2/token", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		tokenCalls.Add(1)

		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, issuer.ClientID, r.PostForm.Get("client_id"))
		require.Equal(t, testCode, r.PostForm.Get("code"))
		require.Equal(t, testRedirectURI, r.PostForm.Get("redirect_uri"))
		require.Empty(t, r.PostForm.Get("client_secret"))
		require.Equal(t, challenge, pkceChallenge(r.PostForm.Get("code_verifier")))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(oauthmodel.TokenResponse{
			AccessToken:  "access-1",
			IdToken:      issuer.IDToken(t, "user-1", "T1", false),
			RefreshToken: "refresh-1",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
		})
	}))
	defer idp.Close()

	redirector, err := authflow.NewRedirector(authflow.RedirectorConfig{
		ClientID:            issuer.ClientID,
		IdPDomain:           idp.URL,
		AllowedRedirectURIs: []string{testRedirectURI},
	})
	require.NoError(t, err)
	extractor, err := claims.NewExtractor(issuer.URL, issuer.ClientID, issuer.KeySet())
	require.NoError(t, err)
	handler, err := authflow.NewCallbackHandler(
		authflow.NewOAuth2Exchanger(authflow.Endpoint(idp.URL), authflow.WithHTTPClient(idp.Client())),
		extractor, issuer.ClientID, testRedirectURI,
	)
	require.NoError(t, err)
	store := session.NewStore(session.NewMemoryKV())

	raw, err := redirector.Begin(ctx, store, testRedirectURI)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	challenge = u.Query().Get("code_challenge")
	require.Equal(t, "S256", u.Query().Get("code_challenge_method"))

	s, err := handler.Handle(ctx, store, authflow.Callback{Code: testCode, State: u.Query().Get("state")})
	require.NoError(t, err)
	require.Equal(t, int32(1), tokenCalls.Load())
	require.Equal(t, "user-1", s.Claims.Sub)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "refresh-1", loaded.RefreshToken)
	require.Equal(t, int64(3600), loaded.ExpiresIn)
}
