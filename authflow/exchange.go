package authflow

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/jrsteele09/synchub/oauthmodel"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	defaultExchangeTimeout = 10 * time.Second
	maxErrorBody           = 512
)

// ExchangeRequest is the authorization_code grant of a public client.
type ExchangeRequest struct {
	Code        string
	Verifier    string
	RedirectURI string
	ClientID    string
}

// Exchanger trades an authorization code for tokens.
type Exchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (oauthmodel.TokenSet, error)
}

// OAuth2Exchanger posts to the provider's token endpoint.
type OAuth2Exchanger struct {
	endpoint oauth2.Endpoint
	client   *http.Client
	timeout  time.Duration
}

var _ Exchanger = (*OAuth2Exchanger)(nil)

type ExchangerOption func(*OAuth2Exchanger)

func WithHTTPClient(c *http.Client) ExchangerOption {
	return func(e *OAuth2Exchanger) {
		e.client = c
	}
}

func WithTimeout(d time.Duration) ExchangerOption {
	return func(e *OAuth2Exchanger) {
		e.timeout = d
	}
}

func NewOAuth2Exchanger(endpoint oauth2.Endpoint, opts ...ExchangerOption) *OAuth2Exchanger {
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	e := &OAuth2Exchanger{
		endpoint: endpoint,
		client:   http.DefaultClient,
		timeout:  defaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exchange sends grant_type=authorization_code with the code_verifier. A
// non-2xx answer or a transport failure is a *TokenExchangeError. The code
// is spent either way: a retry must restart the login.
func (e *OAuth2Exchanger) Exchange(ctx context.Context, req ExchangeRequest) (oauthmodel.TokenSet, error) {
	cfg := oauth2.Config{
		ClientID:    req.ClientID,
		Endpoint:    e.endpoint,
		RedirectURL: req.RedirectURI,
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)

	tok, err := cfg.Exchange(ctx, req.Code, oauth2.VerifierOption(req.Verifier))
	if err != nil {
		exErr := toExchangeError(err)
		log.Warn().
			Int("status", exErr.StatusCode).
			Bool("timeout", exErr.Timeout()).
			Str("body", exErr.Body).
			Msg("token exchange failed")
		return oauthmodel.TokenSet{}, exErr
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return oauthmodel.TokenSet{}, &apperrors.TokenExchangeError{
			StatusCode: http.StatusOK,
			Body:       "response carried no id_token",
			Err:        apperrors.ErrNoIDToken,
		}
	}

	return oauthmodel.TokenSet{
		AccessToken:  tok.AccessToken,
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresIn:    tok.ExpiresIn,
	}, nil
}

func toExchangeError(err error) *apperrors.TokenExchangeError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		exErr := &apperrors.TokenExchangeError{
			Body: apperrors.Truncate(string(re.Body), maxErrorBody),
			Err:  err,
		}
		if re.Response != nil {
			exErr.StatusCode = re.Response.StatusCode
		}
		return exErr
	}
	return &apperrors.TokenExchangeError{Err: err}
}
