package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

// CookieKV stores values in a gorilla session bound to one request/response
// pair. Each Set or Delete is saved immediately, so a Delete of several keys
// reaches the browser as one Set-Cookie.
type CookieKV struct {
	store sessions.Store
	name  string
	w     http.ResponseWriter
	r     *http.Request
}

var _ KV = (*CookieKV)(nil)

func NewCookieKV(store sessions.Store, name string, w http.ResponseWriter, r *http.Request) *CookieKV {
	return &CookieKV{store: store, name: name, w: w, r: r}
}

// NewCookieStore returns a cookie store with the flags session cookies need:
// HttpOnly, SameSite=Lax, and Secure when served over https.
func NewCookieStore(hashKey, blockKey []byte, secure bool, maxAge int) *sessions.CookieStore {
	keys := [][]byte{hashKey}
	if len(blockKey) > 0 {
		keys = append(keys, blockKey)
	}
	store := sessions.NewCookieStore(keys...)
	applyOptions(store.Options, secure, maxAge)
	return store
}

// NewFilesystemStore keeps session data server side; only the session id
// travels in the cookie, so large ID tokens fit.
func NewFilesystemStore(dir string, hashKey, blockKey []byte, secure bool, maxAge int) *sessions.FilesystemStore {
	keys := [][]byte{hashKey}
	if len(blockKey) > 0 {
		keys = append(keys, blockKey)
	}
	store := sessions.NewFilesystemStore(dir, keys...)
	store.MaxLength(0)
	applyOptions(store.Options, secure, maxAge)
	return store
}

func applyOptions(o *sessions.Options, secure bool, maxAge int) {
	o.Path = "/"
	o.MaxAge = maxAge
	o.HttpOnly = true
	o.Secure = secure
	o.SameSite = http.SameSiteLaxMode
}

func (c *CookieKV) session() (*sessions.Session, error) {
	s, err := c.store.Get(c.r, c.name)
	if err != nil && s == nil {
		return nil, fmt.Errorf("[CookieKV] load session: %w", err)
	}
	// A cookie that no longer decodes (rotated keys) yields a fresh session.
	return s, nil
}

func (c *CookieKV) Get(_ context.Context, key string) (string, bool, error) {
	s, err := c.session()
	if err != nil {
		return "", false, err
	}
	v, ok := s.Values[key].(string)
	return v, ok, nil
}

func (c *CookieKV) Set(_ context.Context, key, value string) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	s.Values[key] = value
	if err := s.Save(c.r, c.w); err != nil {
		return fmt.Errorf("[CookieKV] save session: %w", err)
	}
	return nil
}

func (c *CookieKV) Delete(_ context.Context, keys ...string) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(s.Values, k)
	}
	if err := s.Save(c.r, c.w); err != nil {
		return fmt.Errorf("[CookieKV] save session: %w", err)
	}
	return nil
}
