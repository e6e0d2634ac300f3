// Package claims turns identity provider tokens into the caller identity used
// for tenant scoping and admin checks.
package claims

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/jrsteele09/synchub/internal/utils"
)

// DefaultTenant is the tenant of callers whose token names none.
const DefaultTenant = "default"

// Claims is the caller identity. Tenant and admin status come from here and
// never from request bodies or query strings.
type Claims struct {
	Sub      string `json:"sub"`
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
	IsAdmin  bool   `json:"is_admin"`
	Exp      int64  `json:"exp"`
}

// Anonymous is the identity of a caller without usable credentials.
func Anonymous() Claims {
	return Claims{TenantID: DefaultTenant}
}

// Authenticated reports whether the claims name a real subject.
func (c Claims) Authenticated() bool {
	return c.Sub != "" || c.Email != ""
}

// ExpiresAt returns the expiry, zero when the token carried none.
func (c Claims) ExpiresAt() time.Time {
	if c.Exp == 0 {
		return time.Time{}
	}
	return time.Unix(c.Exp, 0)
}

// Expired reports whether exp is missing or not after now.
func (c Claims) Expired(now time.Time) bool {
	return c.Exp == 0 || !now.Before(c.ExpiresAt())
}

// rawClaims is the token payload as issued. Providers spell the custom
// attributes differently, so both spellings are read.
type rawClaims struct {
	Sub            string   `json:"sub"`
	Email          string   `json:"email"`
	TenantID       string   `json:"tenant_id"`
	CustomTenantID string   `json:"custom:tenant_id"`
	IsAdmin        flexBool `json:"is_admin"`
	CustomIsAdmin  flexBool `json:"custom:is_admin"`
	Groups         []any    `json:"cognito:groups"`
	ClientID       string   `json:"client_id"`
	Exp            int64    `json:"exp"`
}

func (rc rawClaims) toClaims(adminGroup string) Claims {
	c := Claims{
		Sub:      rc.Sub,
		Email:    rc.Email,
		TenantID: rc.TenantID,
		IsAdmin:  bool(rc.IsAdmin) || bool(rc.CustomIsAdmin),
		Exp:      rc.Exp,
	}
	if c.TenantID == "" {
		c.TenantID = rc.CustomTenantID
	}
	if c.TenantID == "" {
		c.TenantID = DefaultTenant
	}
	if !c.IsAdmin && adminGroup != "" {
		c.IsAdmin = slices.Contains(utils.ToStringSlice(rc.Groups), adminGroup)
	}
	return c
}

// flexBool accepts JSON booleans and the strings "true"/"false", which is how
// custom attributes arrive.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*b = true
	case len(data) > 1 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = flexBool(strings.EqualFold(strings.TrimSpace(s), "true"))
	default:
		*b = false
	}
	return nil
}
