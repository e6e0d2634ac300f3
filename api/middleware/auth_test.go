package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/synchub/authz"
	"github.com/jrsteele09/synchub/claims"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/stretchr/testify/assert"
)

type stubSource struct {
	claims claims.Claims
	err    error
}

func (s stubSource) FromRequest(*http.Request) (claims.Claims, error) {
	return s.claims, s.err
}

func echoClaims() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GetClaims(r.Context()))
	})
}

func TestAuthenticate_Rejected(t *testing.T) {
	handler := Authenticate(stubSource{err: apperrors.ErrUnauthorized})(echoClaims())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/settings", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body["error"])
}

func TestAuthenticate_PutsClaimsInContext(t *testing.T) {
	want := claims.Claims{Sub: "u1", TenantID: "T1"}
	handler := Authenticate(stubSource{claims: want})(echoClaims())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/me", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got claims.Claims
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want, got)
}

func TestRequireAdmin(t *testing.T) {
	gate := authz.NewGate()
	tests := []struct {
		name   string
		claims claims.Claims
		want   int
	}{
		{"admin", claims.Claims{Sub: "a", TenantID: "T1", IsAdmin: true}, http.StatusOK},
		{"member", claims.Claims{Sub: "u", TenantID: "T1"}, http.StatusForbidden},
		{"anonymous", claims.Anonymous(), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Authenticate(stubSource{claims: tt.claims})(Require(gate, authz.AdminOnly)(echoClaims()))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/audit", nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestGetClaimsDefaultsToAnonymous(t *testing.T) {
	assert.Equal(t, claims.Anonymous(), GetClaims(httptest.NewRequest("GET", "/", nil).Context()))
}
