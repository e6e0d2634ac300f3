// Package pkce implements the RFC 7636 proof key for code exchange used by
// the public login clients.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// MethodS256 is the only challenge method the login clients send.
	MethodS256 = "S256"

	// VerifierEntropy is the number of random bytes behind a verifier. 32 bytes
	// encode to a 43 character verifier.
	VerifierEntropy = 32

	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// PkceChallengePair is the verifier/challenge pair for one login attempt.
// The verifier stays on the client until the token exchange; only the
// challenge travels through the browser.
type PkceChallengePair struct {
	Verifier  string
	Challenge string
	Method    string
}

// Generate returns a fresh pair. It panics if the system random source
// fails, which crypto/rand documents as unrecoverable.
func Generate() PkceChallengePair {
	b := make([]byte, VerifierEntropy)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("[pkce.Generate] crypto/rand: %v", err))
	}
	verifier := base64.RawURLEncoding.EncodeToString(b)
	return PkceChallengePair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}
}

// Challenge computes base64url_no_pad(sha256(verifier)).
func Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// Verify reports whether verifier hashes to challenge.
func Verify(verifier, challenge string) bool {
	computed := Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// ValidateVerifier checks the RFC 7636 length and alphabet rules.
func ValidateVerifier(verifier string) error {
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return fmt.Errorf("code_verifier must be between %d and %d characters", MinVerifierLength, MaxVerifierLength)
	}
	for _, c := range verifier {
		if !isUnreserved(c) {
			return fmt.Errorf("code_verifier contains invalid character %q", c)
		}
	}
	return nil
}

// ValidateChallenge checks the parameters an authorization server receives.
func ValidateChallenge(challenge, method string) error {
	if challenge == "" || method == "" {
		return fmt.Errorf("both code_challenge and code_challenge_method must be provided together")
	}
	if len(challenge) < MinVerifierLength || len(challenge) > MaxVerifierLength {
		return fmt.Errorf("code_challenge length must be between %d and %d characters", MinVerifierLength, MaxVerifierLength)
	}
	if method != MethodS256 {
		return fmt.Errorf("code_challenge_method must be 'S256'")
	}
	return nil
}

func isUnreserved(c rune) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}
