package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/synchub/session"
	"github.com/stretchr/testify/require"
)

var testHashKey = []byte("0123456789abcdef0123456789abcdef")

func TestFileKV(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	kv := session.NewFileKV(path)

	_, ok, err := kv.Get(ctx, "tokens")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set(ctx, "tokens", "t"))
	require.NoError(t, kv.Set(ctx, "pkce", "p"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened := session.NewFileKV(path)
	v, ok, err := reopened.Get(ctx, "tokens")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "t", v)

	require.NoError(t, reopened.Delete(ctx, "tokens", "pkce"))
	_, ok, err = kv.Get(ctx, "pkce")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCookieKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := session.NewCookieStore(testHashKey, nil, true, 3600)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/login-start", nil)
	kv := session.NewCookieKV(store, "synchub", w, r)
	require.NoError(t, kv.Set(ctx, "pkce", "verifier"))

	resp := w.Result()
	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)
	cookie := cookies[len(cookies)-1]
	require.True(t, cookie.HttpOnly)
	require.True(t, cookie.Secure)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.NotContains(t, cookie.Value, "verifier")

	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "/oauth2/callback", nil)
	r2.AddCookie(cookie)
	kv2 := session.NewCookieKV(store, "synchub", w2, r2)

	v, ok, err := kv2.Get(ctx, "pkce")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "verifier", v)

	require.NoError(t, kv2.Delete(ctx, "pkce", "tokens"))
	_, ok, err = kv2.Get(ctx, "pkce")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCookieKVTamperedCookieStartsFresh(t *testing.T) {
	ctx := context.Background()
	store := session.NewCookieStore(testHashKey, nil, false, 3600)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "synchub", Value: "tampered"})
	kv := session.NewCookieKV(store, "synchub", httptest.NewRecorder(), r)

	_, ok, err := kv.Get(ctx, "tokens")
	require.NoError(t, err)
	require.False(t, ok)
}
