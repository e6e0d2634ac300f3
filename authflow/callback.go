package authflow

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/synchub/claims"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/jrsteele09/synchub/oauthmodel"
	"github.com/jrsteele09/synchub/session"
	"github.com/rs/zerolog/log"
)

// Phase is the callback state machine position.
type Phase int

const (
	AwaitingCallback Phase = iota
	Exchanging
	Authenticated
	Failed
)

func (p Phase) String() string {
	switch p {
	case AwaitingCallback:
		return "awaiting_callback"
	case Exchanging:
		return "exchanging"
	case Authenticated:
		return "authenticated"
	default:
		return "failed"
	}
}

// Callback is what the provider sent back to the redirect URI.
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseCallback reads the callback parameters from the query string or, for
// form_post responses, the form body.
func ParseCallback(r *http.Request) Callback {
	return Callback{
		Code:             r.FormValue("code"),
		State:            r.FormValue("state"),
		Error:            r.FormValue("error"),
		ErrorDescription: r.FormValue("error_description"),
	}
}

// SessionStore is the part of session.Store the callback needs.
type SessionStore interface {
	TakeVerifier(ctx context.Context, state string) (string, bool, error)
	Save(ctx context.Context, tokens oauthmodel.TokenSet) error
	Clear(ctx context.Context) error
}

var _ SessionStore = (*session.Store)(nil)

// CallbackHandler completes a login attempt.
type CallbackHandler struct {
	exchanger   Exchanger
	verifier    session.ClaimsVerifier
	clientID    string
	redirectURI string
}

func NewCallbackHandler(exchanger Exchanger, verifier session.ClaimsVerifier, clientID, redirectURI string) (*CallbackHandler, error) {
	if exchanger == nil {
		return nil, fmt.Errorf("[NewCallbackHandler] exchanger is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("[NewCallbackHandler] claims verifier is required")
	}
	if clientID == "" || redirectURI == "" {
		return nil, fmt.Errorf("[NewCallbackHandler] client id and redirect URI are required")
	}
	return &CallbackHandler{
		exchanger:   exchanger,
		verifier:    verifier,
		clientID:    clientID,
		redirectURI: redirectURI,
	}, nil
}

// Handle runs the callback state machine. On any failure the client context
// is returned to the unauthenticated state: the session and every pending
// verifier are cleared and the code is never retried.
func (h *CallbackHandler) Handle(ctx context.Context, store SessionStore, cb Callback) (*session.Session, error) {
	phase := AwaitingCallback

	fail := func(err error) (*session.Session, error) {
		log.Info().Str("phase", phase.String()).Err(err).Msg("login callback failed")
		if clearErr := store.Clear(ctx); clearErr != nil {
			log.Err(clearErr).Msg("failed to clear session after callback failure")
		}
		return nil, err
	}

	if cb.Error != "" {
		return fail(apperrors.NewProviderError(cb.Error, cb.ErrorDescription))
	}
	if cb.Code == "" || cb.State == "" {
		return fail(apperrors.Wrapf(apperrors.ErrMalformedCallback, "[CallbackHandler] missing code or state"))
	}

	verifier, ok, err := store.TakeVerifier(ctx, cb.State)
	if err != nil {
		return fail(apperrors.Wrapf(err, "[CallbackHandler] read verifier"))
	}
	if !ok {
		return fail(apperrors.ErrMissingVerifier)
	}

	phase = Exchanging
	tokens, err := h.exchanger.Exchange(ctx, ExchangeRequest{
		Code:        cb.Code,
		Verifier:    verifier,
		RedirectURI: h.redirectURI,
		ClientID:    h.clientID,
	})
	if err != nil {
		return fail(err)
	}

	c, err := h.verifier.Verify(ctx, tokens.IDToken)
	if err != nil {
		return fail(apperrors.Wrapf(err, "[CallbackHandler] id token rejected"))
	}

	if err := store.Save(ctx, tokens); err != nil {
		return fail(apperrors.Wrapf(err, "[CallbackHandler] save session"))
	}

	phase = Authenticated
	log.Info().Str("sub", c.Sub).Str("tenant", c.TenantID).Msg("login completed")
	return &session.Session{Tokens: tokens, Claims: c}, nil
}

// RestartRequired reports failures whose only remedy is a new login attempt
// from the beginning, as opposed to a provider refusal shown to the user.
func RestartRequired(err error) bool {
	var pe *apperrors.ProviderError
	return err != nil && !apperrors.As(err, &pe)
}

// UserMessage is the short text shown on the landing page after a failure.
func UserMessage(err error) string {
	var pe *apperrors.ProviderError
	var te *apperrors.TokenExchangeError
	switch {
	case apperrors.As(err, &pe):
		if pe.Description != "" {
			return pe.Description
		}
		return "Sign-in was cancelled"
	case apperrors.Is(err, apperrors.ErrMissingVerifier):
		return "Sign-in expired, please try again"
	case apperrors.Is(err, apperrors.ErrMalformedCallback):
		return "Sign-in response was incomplete"
	case apperrors.As(err, &te) && te.Timeout():
		return "Sign-in timed out, please try again"
	default:
		return "Sign-in failed"
	}
}

var _ session.ClaimsVerifier = (*claims.Extractor)(nil)
