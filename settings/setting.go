// Package settings is the tenant-scoped settings service behind the API.
package settings

import (
	"github.com/jrsteele09/synchub/store"
)

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == Public || v == Private
}

// Setting is one named value owned by a user within a tenant.
type Setting struct {
	TenantID   string     `json:"tenant_id"`
	SettingID  string     `json:"setting_id"`
	OwnerID    string     `json:"owner_id"`
	Name       string     `json:"name"`
	Value      string     `json:"value"`
	Visibility Visibility `json:"visibility"`
	Version    int64      `json:"version"`
	CreatedAt  int64      `json:"created_at"` // unix seconds
	UpdatedAt  int64      `json:"updated_at"` // unix seconds
}

// AuditEvent records who did what to which target.
type AuditEvent struct {
	EventID  string `json:"event_id"`
	TenantID string `json:"tenant_id"`
	Actor    string `json:"actor"`
	Action   string `json:"action"`
	Target   string `json:"target"`
	At       int64  `json:"at"`
}

// Audit actions.
const (
	ActionCreate        = "setting.create"
	ActionUpdate        = "setting.update"
	ActionSetVisibility = "setting.visibility"
	ActionDelete        = "setting.delete"
	ActionAdminRead     = "admin.read"
)

// VisibilityIndex is the secondary index ListPublic reads.
const VisibilityIndex = "visibility-index"

// SettingsSchema lays out the settings table under name.
func SettingsSchema(name string) store.Schema {
	return store.Schema{
		Name:         name,
		PartitionKey: "tenant_id",
		SortKey:      "setting_id",
		Indexes:      map[string]string{VisibilityIndex: "visibility"},
	}
}

// AuditSchema lays out the audit table under name.
func AuditSchema(name string) store.Schema {
	return store.Schema{
		Name:         name,
		PartitionKey: "tenant_id",
		SortKey:      "event_id",
	}
}

func (s Setting) item() store.Item {
	return store.Item{
		"tenant_id":  s.TenantID,
		"setting_id": s.SettingID,
		"owner_id":   s.OwnerID,
		"name":       s.Name,
		"value":      s.Value,
		"visibility": string(s.Visibility),
		"version":    s.Version,
		"created_at": s.CreatedAt,
		"updated_at": s.UpdatedAt,
	}
}

func settingFromItem(i store.Item) Setting {
	return Setting{
		TenantID:   i.String("tenant_id"),
		SettingID:  i.String("setting_id"),
		OwnerID:    i.String("owner_id"),
		Name:       i.String("name"),
		Value:      i.String("value"),
		Visibility: Visibility(i.String("visibility")),
		Version:    i.Int64("version"),
		CreatedAt:  i.Int64("created_at"),
		UpdatedAt:  i.Int64("updated_at"),
	}
}

func (e AuditEvent) item() store.Item {
	return store.Item{
		"tenant_id": e.TenantID,
		"event_id":  e.EventID,
		"actor":     e.Actor,
		"action":    e.Action,
		"target":    e.Target,
		"at":        e.At,
	}
}

func auditFromItem(i store.Item) AuditEvent {
	return AuditEvent{
		EventID:  i.String("event_id"),
		TenantID: i.String("tenant_id"),
		Actor:    i.String("actor"),
		Action:   i.String("action"),
		Target:   i.String("target"),
		At:       i.Int64("at"),
	}
}
