package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	sessionHashKeyVar  = "SESSION_HASH_KEY"
	sessionBlockKeyVar = "SESSION_BLOCK_KEY"
	sessionSecureVar   = "SESSION_SECURE"
	tokenCachePathVar  = "TOKEN_CACHE_PATH"
	sessionStoreVar    = "SESSION_STORE"
	sessionDirVar      = "SESSION_DIR"
)

// Session store kinds for the web app.
const (
	SessionStoreCookie     = "cookie"
	SessionStoreFilesystem = "filesystem"
)

type SessionConfig interface {
	GetSessionHashKey() []byte
	GetSessionBlockKey() []byte
	GetSessionSecure() bool
	GetVerifierMaxAge() time.Duration
	GetTokenCachePath() string
	GetSessionStore() string
	GetSessionDir() string
}

type Session struct{}

var _ SessionConfig = Session{}

// GetSessionHashKey signs the session cookie; 32 or 64 bytes
func (Session) GetSessionHashKey() []byte {
	return envBytes(sessionHashKeyVar)
}

// GetSessionBlockKey encrypts the session cookie; 16, 24 or 32 bytes, empty disables encryption
func (Session) GetSessionBlockKey() []byte {
	return envBytes(sessionBlockKeyVar)
}

// envBytes is nil when the variable is unset so that an absent key is
// distinguishable from a short one.
func envBytes(name string) []byte {
	v := GetEnv(name, "")
	if v == "" {
		return nil
	}
	return []byte(v)
}

func (Session) GetSessionSecure() bool {
	return GetEnvBool(sessionSecureVar, false)
}

func (Session) GetVerifierMaxAge() time.Duration {
	return 10 * time.Minute
}

// GetTokenCachePath is where the CLI keeps its tokens between runs
func (Session) GetTokenCachePath() string {
	if p := GetEnv(tokenCachePathVar, ""); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "synchub", "tokens.json")
}

// GetSessionStore picks where web sessions live: "filesystem" keeps tokens on
// the server behind an HTTP-only cookie id, "cookie" keeps them in the
// encrypted cookie itself.
func (Session) GetSessionStore() string {
	return GetEnv(sessionStoreVar, SessionStoreFilesystem)
}

// GetSessionDir holds filesystem sessions; empty is the OS temp dir
func (Session) GetSessionDir() string {
	return GetEnv(sessionDirVar, "")
}
