// Package authz decides whether verified claims may perform an operation.
package authz

import (
	"net/http"

	"github.com/jrsteele09/synchub/claims"
)

// Policy is the access rule attached to a route.
type Policy int

const (
	// Public routes need no credentials.
	Public Policy = iota
	// Authenticated routes need any verified caller.
	Authenticated
	// TenantScoped routes need the resource's tenant to be the caller's.
	TenantScoped
	// AdminOnly routes need the admin flag regardless of tenant.
	AdminOnly
	// Owner routes need the caller to own the resource or be admin.
	Owner
)

func (p Policy) String() string {
	switch p {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case TenantScoped:
		return "tenant"
	case AdminOnly:
		return "admin"
	case Owner:
		return "owner"
	default:
		return "unknown"
	}
}

// Resource describes what the operation touches. Fields not relevant to the
// policy are ignored.
type Resource struct {
	TenantID string
	OwnerID  string
}

// Reason explains a decision.
type Reason string

const (
	ReasonAllowed         Reason = "allowed"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonTenantMismatch  Reason = "tenant_mismatch"
	ReasonNotAdmin        Reason = "admin_required"
	ReasonNotOwner        Reason = "not_owner"
)

// Decision is Allow or Deny(reason).
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision             { return Decision{Allowed: true, Reason: ReasonAllowed} }
func deny(reason Reason) Decision { return Decision{Reason: reason} }

// Status maps a decision to its HTTP status: 200, 401 for a missing
// identity, 403 for everything else.
func (d Decision) Status() int {
	switch {
	case d.Allowed:
		return http.StatusOK
	case d.Reason == ReasonUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}

// Gate applies policies and counts decisions.
type Gate struct {
	metrics *gateMetrics
}

func NewGate() *Gate {
	return &Gate{metrics: defaultMetrics}
}

// Authorize evaluates policy for c against res.
func (g *Gate) Authorize(c claims.Claims, policy Policy, res Resource) Decision {
	d := evaluate(c, policy, res)
	g.metrics.observe(policy, d)
	return d
}

func evaluate(c claims.Claims, policy Policy, res Resource) Decision {
	if policy == Public {
		return allow()
	}
	if !c.Authenticated() {
		return deny(ReasonUnauthenticated)
	}

	switch policy {
	case Authenticated:
		return allow()
	case TenantScoped:
		if c.IsAdmin || (res.TenantID != "" && res.TenantID == c.TenantID) {
			return allow()
		}
		return deny(ReasonTenantMismatch)
	case AdminOnly:
		if c.IsAdmin {
			return allow()
		}
		return deny(ReasonNotAdmin)
	case Owner:
		if c.IsAdmin || (res.OwnerID != "" && res.OwnerID == c.Sub) {
			return allow()
		}
		return deny(ReasonNotOwner)
	}
	return deny(ReasonNotAdmin)
}
