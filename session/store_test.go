package session_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jrsteele09/synchub/claims"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/jrsteele09/synchub/internal/testutil"
	"github.com/jrsteele09/synchub/oauthmodel"
	"github.com/jrsteele09/synchub/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

const (
	testState    = "state-1"
	testVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

type testFixture struct {
	kv     *session.MemoryKV
	store  *session.Store
	issuer *testutil.Issuer
	now    time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		kv:     session.NewMemoryKV(),
		issuer: testutil.NewIssuer(t),
		now:    time.Now(),
	}
	f.store = session.NewStore(f.kv, session.WithNowTime(func() time.Time { return f.now }))
	return f
}

func (f *testFixture) tokens(t *testing.T, exp time.Time) oauthmodel.TokenSet {
	t.Helper()
	mc := f.issuer.Claims("user-1", "T1", false)
	mc["exp"] = exp.Unix()
	return oauthmodel.TokenSet{
		AccessToken:  "access-1",
		IDToken:      f.issuer.Mint(t, mc),
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}
}

func TestSaveLoad(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	loaded, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	want := f.tokens(t, f.now.Add(time.Hour))
	require.NoError(t, f.store.Save(ctx, want))

	loaded, err = f.store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, want, *loaded)
}

func TestLoadIsLazyAboutExpiry(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Save(ctx, f.tokens(t, f.now.Add(time.Minute))))

	f.now = f.now.Add(2 * time.Minute)

	loaded, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	raw, ok, err := f.kv.Get(ctx, "tokens")
	require.NoError(t, err)
	require.True(t, ok, "stale tokens stay in storage until save or clear")
	require.NotEmpty(t, raw)
}

func TestLoadLogsExpiredSession(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Logger = prev })

	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, f.tokens(t, f.now.Add(time.Minute))))
	f.now = f.now.Add(2 * time.Minute)

	loaded, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
	require.Contains(t, buf.String(), apperrors.ErrExpiredSession.Error())
	require.Contains(t, buf.String(), `"sub":"user-1"`)
}

func TestLoadRejectsTokenWithoutExp(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	tokens := f.tokens(t, f.now.Add(time.Hour))
	tokens.IDToken = "not-a-jwt"
	require.NoError(t, f.store.Save(ctx, tokens))

	loaded, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestClearRemovesTokensAndVerifiers(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Save(ctx, f.tokens(t, f.now.Add(time.Hour))))
	require.NoError(t, f.store.SaveVerifier(ctx, testState, testVerifier))

	require.NoError(t, f.store.Clear(ctx))

	for _, key := range []string{"tokens", "pkce"} {
		_, ok, err := f.kv.Get(ctx, key)
		require.NoError(t, err)
		require.False(t, ok, key)
	}
	_, ok, err := f.store.TakeVerifier(ctx, testState)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTakeVerifierIsSingleUse(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveVerifier(ctx, testState, testVerifier))

	v, ok, err := f.store.TakeVerifier(ctx, testState)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testVerifier, v)

	_, ok, err = f.store.TakeVerifier(ctx, testState)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConcurrentAttemptsKeepSeparateVerifiers(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveVerifier(ctx, "tab-a", "verifier-a"))
	require.NoError(t, f.store.SaveVerifier(ctx, "tab-b", "verifier-b"))

	v, ok, err := f.store.TakeVerifier(ctx, "tab-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "verifier-a", v)

	v, ok, err = f.store.TakeVerifier(ctx, "tab-b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "verifier-b", v)
}

func TestVerifierExpiresAndIsBounded(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveVerifier(ctx, "old", "verifier-old"))
	f.now = f.now.Add(11 * time.Minute)
	_, ok, err := f.store.TakeVerifier(ctx, "old")
	require.NoError(t, err)
	require.False(t, ok)

	for i := 0; i < 8; i++ {
		f.now = f.now.Add(time.Second)
		require.NoError(t, f.store.SaveVerifier(ctx, fmt.Sprintf("s%d", i), "v"))
	}
	_, ok, err = f.store.TakeVerifier(ctx, "s0")
	require.NoError(t, err)
	require.False(t, ok, "oldest attempt is evicted")
	_, ok, err = f.store.TakeVerifier(ctx, "s7")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDiscardVerifier(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveVerifier(ctx, "a", "va"))
	require.NoError(t, f.store.SaveVerifier(ctx, "b", "vb"))
	require.NoError(t, f.store.DiscardVerifier(ctx, "a"))

	_, ok, _ := f.store.TakeVerifier(ctx, "a")
	require.False(t, ok)

	require.NoError(t, f.store.DiscardVerifier(ctx, ""))
	_, ok, _ = f.store.TakeVerifier(ctx, "b")
	require.False(t, ok)
}

type fakeVerifier struct {
	err error
}

func (v fakeVerifier) Verify(_ context.Context, raw string) (claims.Claims, error) {
	if v.err != nil {
		return claims.Anonymous(), v.err
	}
	return claims.DecodeUnverified(raw)
}

func TestCurrent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Save(ctx, f.tokens(t, f.now.Add(time.Hour))))

	s, err := f.store.Current(ctx, fakeVerifier{})
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, "user-1", s.Claims.Sub)
	require.Equal(t, "T1", s.Claims.TenantID)

	s, err = f.store.Current(ctx, fakeVerifier{err: fmt.Errorf("bad signature")})
	require.NoError(t, err)
	require.Nil(t, s)

	_, ok, _ := f.kv.Get(ctx, "tokens")
	require.False(t, ok, "unverifiable session is cleared")
}
