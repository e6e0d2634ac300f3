package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/synchub/authflow"
	"github.com/jrsteele09/synchub/session"
	"github.com/rs/zerolog/log"
)

type callbackResult struct {
	session *session.Session
	err     error
}

// loopbackLogin runs one login attempt with the callback served on a
// 127.0.0.1 listener.
type loopbackLogin struct {
	redirector *authflow.Redirector
	callback   *authflow.CallbackHandler
	store      *session.Store
	out        io.Writer
}

// Run prints the authorize URL and blocks until the first callback arrives
// or ctx ends. The listener is closed on return.
func (l *loopbackLogin) Run(ctx context.Context, ln net.Listener, redirectURI string) (*session.Session, error) {
	authURL, err := l.redirector.Begin(ctx, l.store, redirectURI)
	if err != nil {
		ln.Close()
		return nil, err
	}
	fmt.Fprintf(l.out, "Open this URL in your browser to sign in:\n\n  %s\n\nWaiting for the browser...\n", authURL)

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		sess, err := l.callback.Handle(r.Context(), l.store, authflow.ParseCallback(r))

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Sign-in failed: %s\nYou can close this window.\n", authflow.UserMessage(err))
		} else {
			fmt.Fprintln(w, "Signed in. You can close this window and return to the terminal.")
		}

		select {
		case results <- callbackResult{session: sess, err: err}:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("loopback server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case res := <-results:
		return res.session, res.err
	case <-ctx.Done():
		l.discardPending(authURL)
		return nil, fmt.Errorf("no callback received: %w", ctx.Err())
	}
}

// discardPending drops the verifier of an attempt whose callback never came,
// so it does not linger in the token file.
func (l *loopbackLogin) discardPending(authURL string) {
	u, err := url.Parse(authURL)
	if err != nil {
		return
	}
	if err := l.store.DiscardVerifier(context.Background(), u.Query().Get("state")); err != nil {
		log.Warn().Err(err).Msg("failed to discard pending login")
	}
}
