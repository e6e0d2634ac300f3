package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/synchub/api/middleware"
	"github.com/jrsteele09/synchub/api/request"
	"github.com/jrsteele09/synchub/api/response"
	"github.com/jrsteele09/synchub/authz"
	"github.com/jrsteele09/synchub/claims"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/jrsteele09/synchub/internal/utils"
	"github.com/jrsteele09/synchub/settings"
)

// SettingsService is the part of settings.Service the handlers use.
type SettingsService interface {
	List(ctx context.Context, tenantID string) ([]settings.Setting, error)
	ListPublic(ctx context.Context) ([]settings.Setting, error)
	Get(ctx context.Context, tenantID, settingID string) (*settings.Setting, error)
	Create(ctx context.Context, actor claims.Claims, in settings.CreateInput) (*settings.Setting, error)
	Update(ctx context.Context, actor claims.Claims, settingID string, in settings.UpdateInput) (*settings.Setting, error)
	SetVisibility(ctx context.Context, actor claims.Claims, settingID string, visibility settings.Visibility) (*settings.Setting, error)
	Delete(ctx context.Context, actor claims.Claims, settingID string) error
	Audit(ctx context.Context, actor claims.Claims, tenantID string) ([]settings.AuditEvent, error)
	Analytics(ctx context.Context, actor claims.Claims, tenantID, rangeName string) (*settings.Analytics, error)
	RecordAdminRead(ctx context.Context, actor claims.Claims, target string)
}

type Settings struct {
	svc  SettingsService
	gate *authz.Gate
}

func NewSettings(svc SettingsService, gate *authz.Gate) *Settings {
	return &Settings{svc: svc, gate: gate}
}

// ListPublic serves public settings to anyone.
func (h *Settings) ListPublic(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListPublic(r.Context())
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, list)
}

// List serves the caller's own tenant.
func (h *Settings) List(w http.ResponseWriter, r *http.Request) {
	c := middleware.GetClaims(r.Context())
	h.listTenant(w, r, c, c.TenantID)
}

// ListTenant serves any tenant the gate lets the caller read.
func (h *Settings) ListTenant(w http.ResponseWriter, r *http.Request) {
	h.listTenant(w, r, middleware.GetClaims(r.Context()), chi.URLParam(r, "tenantID"))
}

func (h *Settings) listTenant(w http.ResponseWriter, r *http.Request, c claims.Claims, tenantID string) {
	d := h.gate.Authorize(c, authz.TenantScoped, authz.Resource{TenantID: tenantID})
	if !d.Allowed {
		response.WriteDenied(w, d)
		return
	}
	list, err := h.svc.List(r.Context(), tenantID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	if tenantID != c.TenantID {
		h.svc.RecordAdminRead(r.Context(), c, "tenant:"+tenantID)
	}
	response.WriteJSON(w, http.StatusOK, list)
}

func (h *Settings) Create(w http.ResponseWriter, r *http.Request) {
	c := middleware.GetClaims(r.Context())
	var req request.CreateSetting
	if err := request.Decode(w, r, &req); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	s, err := h.svc.Create(r.Context(), c, settings.CreateInput{
		Name:       req.Name,
		Value:      req.Value,
		Visibility: settings.Visibility(req.Visibility),
	})
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, s)
}

// Get serves a setting to its owner or an admin, and public settings to
// anyone in the tenant.
func (h *Settings) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.authorizeSetting(w, r, true)
	if !ok {
		return
	}
	response.WriteJSON(w, http.StatusOK, s)
}

// Update and SetVisibility authorize before reading the body so a
// non-owner never learns anything from validation errors.
func (h *Settings) Update(w http.ResponseWriter, r *http.Request) {
	s, ok := h.authorizeSetting(w, r, false)
	if !ok {
		return
	}
	var req request.UpdateSetting
	if err := request.Decode(w, r, &req); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	if req.Empty() {
		response.WriteError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	updated, err := h.svc.Update(r.Context(), middleware.GetClaims(r.Context()), s.SettingID, settings.UpdateInput{
		Name:  req.Name,
		Value: req.Value,
	})
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, updated)
}

func (h *Settings) SetVisibility(w http.ResponseWriter, r *http.Request) {
	s, ok := h.authorizeSetting(w, r, false)
	if !ok {
		return
	}
	var req request.SetVisibility
	if err := request.Decode(w, r, &req); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	updated, err := h.svc.SetVisibility(r.Context(), middleware.GetClaims(r.Context()), s.SettingID, settings.Visibility(req.Visibility))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, updated)
}

func (h *Settings) Delete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.authorizeSetting(w, r, false)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), middleware.GetClaims(r.Context()), s.SettingID); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorizeSetting loads the {settingID} of the caller's tenant and applies
// the owner policy. A missing setting is 404 for admins only; everyone else
// gets the same 403 a non-owner would, so existence is not revealed.
func (h *Settings) authorizeSetting(w http.ResponseWriter, r *http.Request, read bool) (*settings.Setting, bool) {
	c := middleware.GetClaims(r.Context())
	s, err := h.svc.Get(r.Context(), c.TenantID, chi.URLParam(r, "settingID"))
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			response.WriteServiceError(w, r, err)
			return nil, false
		}
		if c.IsAdmin {
			response.WriteError(w, http.StatusNotFound, "not found")
			return nil, false
		}
		response.WriteDenied(w, authz.Decision{Reason: authz.ReasonNotOwner})
		return nil, false
	}

	policy, res := authz.Owner, authz.Resource{TenantID: s.TenantID, OwnerID: s.OwnerID}
	if read && s.Visibility == settings.Public {
		policy = authz.TenantScoped
	}
	d := h.gate.Authorize(c, policy, res)
	if !d.Allowed {
		response.WriteDenied(w, d)
		return nil, false
	}
	return s, true
}

// Audit lists the audit trail of ?tenant_id, defaulting to the caller's.
func (h *Settings) Audit(w http.ResponseWriter, r *http.Request) {
	c := middleware.GetClaims(r.Context())
	tenantID := utils.FirstNonEmpty(r.URL.Query().Get("tenant_id"), c.TenantID)
	events, err := h.svc.Audit(r.Context(), c, tenantID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, events)
}

// Analytics summarises ?tenant_id over ?range (1d, 7d or 30d).
func (h *Settings) Analytics(w http.ResponseWriter, r *http.Request) {
	c := middleware.GetClaims(r.Context())
	q := r.URL.Query()
	tenantID := utils.FirstNonEmpty(q.Get("tenant_id"), c.TenantID)
	a, err := h.svc.Analytics(r.Context(), c, tenantID, q.Get("range"))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, a)
}
