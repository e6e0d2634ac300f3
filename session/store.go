package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jrsteele09/synchub/claims"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/jrsteele09/synchub/oauthmodel"
	"github.com/rs/zerolog/log"
)

const (
	tokensKey  = "tokens"
	pendingKey = "pkce"

	defaultVerifierMaxAge = 10 * time.Minute
	defaultMaxPending     = 5
)

// Session binds one token set and its verified claims to a client context.
type Session struct {
	Tokens oauthmodel.TokenSet
	Claims claims.Claims
}

// ClaimsVerifier checks an ID token before a session is trusted.
type ClaimsVerifier interface {
	Verify(ctx context.Context, raw string) (claims.Claims, error)
}

// pendingLogin is a verifier waiting for its callback.
type pendingLogin struct {
	Verifier  string    `json:"verifier"`
	CreatedAt time.Time `json:"created_at"`
}

// Store implements save/load/clear over a KV. The three tokens are written as
// one value so they can never be partially cleared.
type Store struct {
	kv             KV
	now            func() time.Time
	verifierMaxAge time.Duration
	maxPending     int
}

type Option func(*Store)

func WithNowTime(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithVerifierMaxAge bounds how long an abandoned login attempt keeps its verifier.
func WithVerifierMaxAge(d time.Duration) Option {
	return func(s *Store) {
		s.verifierMaxAge = d
	}
}

func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:             kv,
		now:            time.Now,
		verifierMaxAge: defaultVerifierMaxAge,
		maxPending:     defaultMaxPending,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save replaces the stored token set.
func (s *Store) Save(ctx context.Context, tokens oauthmodel.TokenSet) error {
	b, err := json.Marshal(tokens)
	if err != nil {
		return apperrors.Wrapf(err, "[Store.Save] encode tokens")
	}
	if err := s.kv.Set(ctx, tokensKey, string(b)); err != nil {
		return apperrors.Wrapf(err, "[Store.Save] write tokens")
	}
	return nil
}

// Load returns the stored tokens, or nil when there are none or the ID
// token's exp has passed. Expiry is only detected here; the stale value stays
// in storage until the next Save or Clear.
func (s *Store) Load(ctx context.Context) (*oauthmodel.TokenSet, error) {
	raw, ok, err := s.kv.Get(ctx, tokensKey)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Store.Load] read tokens")
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var tokens oauthmodel.TokenSet
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		log.Warn().Err(err).Msg("discarding undecodable session tokens")
		return nil, nil
	}

	idClaims, err := claims.DecodeUnverified(tokens.IDToken)
	if err != nil {
		log.Warn().Err(err).Msg("discarding session with undecodable id token")
		return nil, nil
	}
	if idClaims.Expired(s.now()) {
		log.Debug().Err(apperrors.ErrExpiredSession).Str("sub", idClaims.Sub).Msg("stored session is stale")
		return nil, nil
	}
	return &tokens, nil
}

// Current loads the tokens and re-verifies the ID token. A session whose
// token no longer verifies is cleared.
func (s *Store) Current(ctx context.Context, verifier ClaimsVerifier) (*Session, error) {
	tokens, err := s.Load(ctx)
	if err != nil || tokens == nil {
		return nil, err
	}
	c, err := verifier.Verify(ctx, tokens.IDToken)
	if err != nil {
		log.Info().Err(err).Msg("stored session no longer verifies, clearing")
		return nil, s.Clear(ctx)
	}
	return &Session{Tokens: *tokens, Claims: c}, nil
}

// Clear erases tokens and every pending verifier in one write.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, tokensKey, pendingKey); err != nil {
		return apperrors.Wrapf(err, "[Store.Clear] delete session")
	}
	return nil
}

// SaveVerifier stores the verifier of a login attempt under its state. Each
// attempt has its own entry so concurrent tabs do not overwrite each other;
// the oldest entries are dropped beyond a small bound.
func (s *Store) SaveVerifier(ctx context.Context, state, verifier string) error {
	if state == "" || verifier == "" {
		return fmt.Errorf("[Store.SaveVerifier] state and verifier are required")
	}
	pending, err := s.pending(ctx)
	if err != nil {
		return err
	}
	pending[state] = pendingLogin{Verifier: verifier, CreatedAt: s.now()}
	s.prune(pending)
	return s.writePending(ctx, pending)
}

// TakeVerifier returns the verifier saved for state and deletes it in the
// same step, so a verifier is usable for at most one exchange.
func (s *Store) TakeVerifier(ctx context.Context, state string) (string, bool, error) {
	pending, err := s.pending(ctx)
	if err != nil {
		return "", false, err
	}
	p, ok := pending[state]
	if !ok {
		return "", false, nil
	}
	delete(pending, state)
	if err := s.writePending(ctx, pending); err != nil {
		return "", false, err
	}
	if s.expired(p) {
		return "", false, nil
	}
	return p.Verifier, true, nil
}

// DiscardVerifier drops the verifier for state, if any. An empty state drops
// all pending verifiers.
func (s *Store) DiscardVerifier(ctx context.Context, state string) error {
	if state == "" {
		if err := s.kv.Delete(ctx, pendingKey); err != nil {
			return apperrors.Wrapf(err, "[Store.DiscardVerifier] delete verifiers")
		}
		return nil
	}
	pending, err := s.pending(ctx)
	if err != nil {
		return err
	}
	if _, ok := pending[state]; !ok {
		return nil
	}
	delete(pending, state)
	return s.writePending(ctx, pending)
}

func (s *Store) pending(ctx context.Context) (map[string]pendingLogin, error) {
	pending := map[string]pendingLogin{}
	raw, ok, err := s.kv.Get(ctx, pendingKey)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Store] read verifiers")
	}
	if !ok || raw == "" {
		return pending, nil
	}
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		log.Warn().Err(err).Msg("discarding undecodable pending logins")
		return map[string]pendingLogin{}, nil
	}
	return pending, nil
}

func (s *Store) writePending(ctx context.Context, pending map[string]pendingLogin) error {
	if len(pending) == 0 {
		if err := s.kv.Delete(ctx, pendingKey); err != nil {
			return apperrors.Wrapf(err, "[Store] delete verifiers")
		}
		return nil
	}
	b, err := json.Marshal(pending)
	if err != nil {
		return apperrors.Wrapf(err, "[Store] encode verifiers")
	}
	if err := s.kv.Set(ctx, pendingKey, string(b)); err != nil {
		return apperrors.Wrapf(err, "[Store] write verifiers")
	}
	return nil
}

func (s *Store) expired(p pendingLogin) bool {
	return s.now().Sub(p.CreatedAt) > s.verifierMaxAge
}

func (s *Store) prune(pending map[string]pendingLogin) {
	for state, p := range pending {
		if s.expired(p) {
			delete(pending, state)
		}
	}
	if len(pending) <= s.maxPending {
		return
	}
	states := make([]string, 0, len(pending))
	for state := range pending {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		return pending[states[i]].CreatedAt.Before(pending[states[j]].CreatedAt)
	})
	for _, state := range states[:len(states)-s.maxPending] {
		delete(pending, state)
	}
}
