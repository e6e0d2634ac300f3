// Package testutil provides a signing identity provider for tests.
package testutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	TestIssuer   = "https://idp.test"
	TestClientID = "synchub-test-client"
	TestKeyID    = "test-key-1"
)

// Issuer mints RS256 tokens the way the identity provider would.
type Issuer struct {
	URL      string
	ClientID string
	key      *rsa.PrivateKey
}

func NewIssuer(t *testing.T) *Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &Issuer{URL: TestIssuer, ClientID: TestClientID, key: key}
}

// KeySet returns a key set that verifies tokens from this issuer.
func (i *Issuer) KeySet() oidc.KeySet {
	return &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&i.key.PublicKey}}
}

// Claims returns a valid claim set for subject; callers override fields.
func (i *Issuer) Claims(sub, tenantID string, admin bool) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":       i.URL,
		"aud":       i.ClientID,
		"sub":       sub,
		"email":     sub + "@example.com",
		"tenant_id": tenantID,
		"is_admin":  admin,
		"iat":       now.Unix(),
		"exp":       now.Add(time.Hour).Unix(),
	}
}

// Mint signs claims with the issuer key.
func (i *Issuer) Mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = TestKeyID
	signed, err := token.SignedString(i.key)
	require.NoError(t, err)
	return signed
}

// IDToken is shorthand for minting a valid token.
func (i *Issuer) IDToken(t *testing.T, sub, tenantID string, admin bool) string {
	t.Helper()
	return i.Mint(t, i.Claims(sub, tenantID, admin))
}

// JWKSHandler serves the public key as a JSON Web Key Set.
func (i *Issuer) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pub := i.key.PublicKey
		jwks := map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": TestKeyID,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}
}
