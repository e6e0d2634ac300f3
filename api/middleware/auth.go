package middleware

import (
	"context"
	"net/http"

	"github.com/jrsteele09/synchub/api/response"
	"github.com/jrsteele09/synchub/authz"
	"github.com/jrsteele09/synchub/claims"
	"github.com/rs/zerolog"
)

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsSource verifies the bearer token of a request.
type ClaimsSource interface {
	FromRequest(r *http.Request) (claims.Claims, error)
}

// Authenticate rejects requests without a valid bearer token with 401 and
// puts the verified claims into the context.
func Authenticate(source ClaimsSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := source.FromRequest(r)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("bearer token rejected")
				response.WriteDenied(w, authz.Decision{Reason: authz.ReasonUnauthenticated})
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, c)
			ctx = zerolog.Ctx(ctx).With().Str("sub", c.Sub).Str("tenant_id", c.TenantID).Logger().WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require applies a policy that needs no resource, e.g. AdminOnly.
func Require(gate *authz.Gate, policy authz.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Authorize(GetClaims(r.Context()), policy, authz.Resource{})
			if !d.Allowed {
				response.WriteDenied(w, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims returns the caller's claims, anonymous outside Authenticate.
func GetClaims(ctx context.Context) claims.Claims {
	c, ok := ctx.Value(claimsKey).(claims.Claims)
	if !ok {
		return claims.Anonymous()
	}
	return c
}
