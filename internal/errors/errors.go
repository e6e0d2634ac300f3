package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"unicode/utf8"
)

// maxDescriptionLength bounds provider supplied text that reaches a user.
const maxDescriptionLength = 120

// Common error types for the login flow and the protected API
var (
	// Callback errors
	ErrMalformedCallback = errors.New("malformed callback")
	ErrMissingVerifier   = errors.New("missing code verifier")

	// Redirect errors
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")

	// Token errors
	ErrTokenExchange  = errors.New("token exchange failed")
	ErrNoIDToken      = errors.New("no id_token in token response")
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredSession = errors.New("session expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// ProviderError is returned when the identity provider redirects back with an
// error parameter instead of a code.
type ProviderError struct {
	Code        string
	Description string
}

func NewProviderError(code, description string) *ProviderError {
	return &ProviderError{Code: code, Description: Truncate(description, maxDescriptionLength)}
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("identity provider error: %s", e.Code)
	}
	return fmt.Sprintf("identity provider error: %s - %s", e.Code, e.Description)
}

// TokenExchangeError carries the diagnostic detail of a failed code exchange.
// StatusCode is zero when no HTTP response was received.
type TokenExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTokenExchange}
	}
	return []error{ErrTokenExchange, e.Err}
}

// Timeout reports whether the exchange failed without an answer from the
// token endpoint. The code may or may not have been spent, so the only safe
// retry is a new login attempt.
func (e *TokenExchangeError) Timeout() bool {
	var ne net.Error
	if errors.As(e.Err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}
