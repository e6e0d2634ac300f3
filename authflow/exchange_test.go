package authflow_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/synchub/authflow"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/jrsteele09/synchub/pkce"
	"github.com/stretchr/testify/require"
)

func pkceChallenge(verifier string) string {
	return pkce.Challenge(verifier)
}

func exchangeRequest() authflow.ExchangeRequest {
	return authflow.ExchangeRequest{
		Code:        testCode,
		Verifier:    "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
		RedirectURI: testRedirectURI,
		ClientID:    testClientID,
	}
}

func TestExchangeNon2xx(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code already used"}`))
	}))
	defer idp.Close()

	ex := authflow.NewOAuth2Exchanger(authflow.Endpoint(idp.URL), authflow.WithHTTPClient(idp.Client()))
	_, err := ex.Exchange(context.Background(), exchangeRequest())

	var te *apperrors.TokenExchangeError
	require.ErrorAs(t, err, &te)
	require.Equal(t, http.StatusBadRequest, te.StatusCode)
	require.Contains(t, te.Body, "invalid_grant")
	require.False(t, te.Timeout())
	require.NotContains(t, err.Error(), exchangeRequest().Verifier)
}

func TestExchangeMissingIDToken(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a","token_type":"Bearer","expires_in":60}`))
	}))
	defer idp.Close()

	ex := authflow.NewOAuth2Exchanger(authflow.Endpoint(idp.URL), authflow.WithHTTPClient(idp.Client()))
	_, err := ex.Exchange(context.Background(), exchangeRequest())
	require.ErrorIs(t, err, apperrors.ErrNoIDToken)
}

func TestExchangeTimeout(t *testing.T) {
	release := make(chan struct{})
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer idp.Close()
	defer close(release)

	ex := authflow.NewOAuth2Exchanger(authflow.Endpoint(idp.URL),
		authflow.WithHTTPClient(idp.Client()),
		authflow.WithTimeout(50*time.Millisecond),
	)
	_, err := ex.Exchange(context.Background(), exchangeRequest())

	var te *apperrors.TokenExchangeError
	require.ErrorAs(t, err, &te)
	require.Zero(t, te.StatusCode)
	require.True(t, te.Timeout())
	require.True(t, authflow.RestartRequired(err))
	require.Equal(t, "Sign-in timed out, please try again", authflow.UserMessage(err))
}
