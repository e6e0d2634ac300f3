package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/rs/zerolog/log"
)

// Extractor verifies bearer tokens against the identity provider's published
// keys and maps them to Claims.
type Extractor struct {
	verifier   *oidc.IDTokenVerifier
	clientID   string
	adminGroup string
}

type extractorOptions struct {
	now        func() time.Time
	adminGroup string
}

type Option func(*extractorOptions)

// WithNowTime sets the clock used for exp checks.
func WithNowTime(now func() time.Time) Option {
	return func(o *extractorOptions) {
		o.now = now
	}
}

// WithAdminGroup grants admin to members of the named cognito:groups entry.
func WithAdminGroup(group string) Option {
	return func(o *extractorOptions) {
		o.adminGroup = group
	}
}

// NewExtractor builds an extractor that trusts tokens from issuer signed by a
// key in keySet and issued to clientID.
func NewExtractor(issuer, clientID string, keySet oidc.KeySet, opts ...Option) (*Extractor, error) {
	if issuer == "" {
		return nil, fmt.Errorf("[NewExtractor] issuer is required")
	}
	if clientID == "" {
		return nil, fmt.Errorf("[NewExtractor] client id is required")
	}
	if keySet == nil {
		return nil, fmt.Errorf("[NewExtractor] key set is required")
	}

	o := extractorOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	// Audience is checked by hand: ID tokens carry aud, access tokens carry client_id.
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{
		SkipClientIDCheck: true,
		Now:               o.now,
	})

	return &Extractor{
		verifier:   verifier,
		clientID:   clientID,
		adminGroup: o.adminGroup,
	}, nil
}

// NewRemoteExtractor fetches signing keys from jwksURL. ctx bounds the
// lifetime of the key cache and should outlive the extractor.
func NewRemoteExtractor(ctx context.Context, issuer, jwksURL, clientID string, opts ...Option) (*Extractor, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("[NewRemoteExtractor] jwks url is required")
	}
	return NewExtractor(issuer, clientID, oidc.NewRemoteKeySet(ctx, jwksURL), opts...)
}

// Verify checks signature, iss, exp and audience before trusting any claim.
func (e *Extractor) Verify(ctx context.Context, raw string) (Claims, error) {
	if raw == "" {
		return Anonymous(), apperrors.Wrapf(apperrors.ErrInvalidToken, "[Extractor.Verify] empty token")
	}

	idToken, err := e.verifier.Verify(ctx, raw)
	if err != nil {
		return Anonymous(), fmt.Errorf("[Extractor.Verify] %w: %v", apperrors.ErrInvalidToken, err)
	}

	var rc rawClaims
	if err := idToken.Claims(&rc); err != nil {
		return Anonymous(), fmt.Errorf("[Extractor.Verify] %w: claims: %v", apperrors.ErrInvalidToken, err)
	}

	if !slices.Contains(idToken.Audience, e.clientID) && rc.ClientID != e.clientID {
		return Anonymous(), apperrors.Wrapf(apperrors.ErrInvalidToken, "[Extractor.Verify] audience mismatch")
	}

	c := rc.toClaims(e.adminGroup)
	c.Exp = idToken.Expiry.Unix()
	return c, nil
}

// Extract is Verify for optional endpoints: any failure yields the anonymous
// identity. Callers must still check Authenticated before trusting it.
func (e *Extractor) Extract(ctx context.Context, raw string) Claims {
	c, err := e.Verify(ctx, raw)
	if err != nil {
		if raw != "" {
			log.Debug().Err(err).Msg("bearer token rejected, continuing as anonymous")
		}
		return Anonymous()
	}
	return c
}

// FromRequest verifies the request's bearer token. A missing or rejected
// token is ErrUnauthorized.
func (e *Extractor) FromRequest(r *http.Request) (Claims, error) {
	raw, ok := BearerToken(r)
	if !ok {
		return Anonymous(), apperrors.Wrapf(apperrors.ErrUnauthorized, "missing bearer token")
	}
	c, err := e.Verify(r.Context(), raw)
	if err != nil {
		return Anonymous(), fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if !c.Authenticated() {
		return Anonymous(), apperrors.Wrapf(apperrors.ErrUnauthorized, "token names no subject")
	}
	return c, nil
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// DecodeUnverified reads claims without checking the signature. Only for
// tokens that were verified when they were stored, e.g. to find a cached
// session's expiry.
func DecodeUnverified(raw string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return Anonymous(), apperrors.Wrapf(apperrors.ErrInvalidToken, "[DecodeUnverified] %v", err)
	}
	b, err := json.Marshal(mc)
	if err != nil {
		return Anonymous(), apperrors.Wrapf(err, "[DecodeUnverified] marshal")
	}
	var rc rawClaims
	if err := json.Unmarshal(b, &rc); err != nil {
		return Anonymous(), apperrors.Wrapf(apperrors.ErrInvalidToken, "[DecodeUnverified] %v", err)
	}
	return rc.toClaims(""), nil
}
