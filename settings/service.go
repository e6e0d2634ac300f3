package settings

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/synchub/claims"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/jrsteele09/synchub/internal/utils"
	"github.com/jrsteele09/synchub/store"
	"github.com/rs/zerolog/log"
)

// CreateInput is the caller-controlled part of a new setting.
type CreateInput struct {
	Name       string
	Value      string
	Visibility Visibility
}

// UpdateInput changes the fields that are set.
type UpdateInput struct {
	Name  *string
	Value *string
}

// Service reads and writes settings. Tenant and owner always come from the
// actor's claims; ownership checks happen in the caller before mutation.
type Service struct {
	settings store.Table
	audit    store.Table
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithNowTime(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

func NewService(settings, audit store.Table, opts ...Option) *Service {
	s := &Service{
		settings: settings,
		audit:    audit,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every setting in tenantID ordered by name.
func (s *Service) List(ctx context.Context, tenantID string) ([]Setting, error) {
	items, err := s.settings.Query(ctx, "", tenantID)
	if err != nil {
		return nil, apperrors.Wrapf(err, "list settings for %s", tenantID)
	}
	return sortedSettings(items), nil
}

// ListPublic returns public settings across tenants.
func (s *Service) ListPublic(ctx context.Context) ([]Setting, error) {
	items, err := s.settings.Query(ctx, VisibilityIndex, string(Public))
	if err != nil {
		return nil, apperrors.Wrapf(err, "list public settings")
	}
	return sortedSettings(items), nil
}

func (s *Service) Get(ctx context.Context, tenantID, settingID string) (*Setting, error) {
	item, err := s.settings.Get(ctx, store.Key{Partition: tenantID, Sort: settingID})
	if err != nil {
		return nil, notFound(err, "get setting %s", settingID)
	}
	setting := settingFromItem(item)
	return &setting, nil
}

func (s *Service) Create(ctx context.Context, actor claims.Claims, in CreateInput) (*Setting, error) {
	if in.Name == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "name is required")
	}
	if in.Visibility == "" {
		in.Visibility = Private
	}
	if !in.Visibility.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "visibility %q", in.Visibility)
	}

	now := s.now().Unix()
	setting := Setting{
		TenantID:   actor.TenantID,
		SettingID:  s.newID(),
		OwnerID:    actor.Sub,
		Name:       in.Name,
		Value:      in.Value,
		Visibility: in.Visibility,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.settings.Put(ctx, setting.item()); err != nil {
		return nil, apperrors.Wrapf(err, "create setting")
	}
	s.record(ctx, actor, ActionCreate, setting.SettingID)
	return &setting, nil
}

// Update applies in and bumps the version in the same write.
func (s *Service) Update(ctx context.Context, actor claims.Claims, settingID string, in UpdateInput) (*Setting, error) {
	if in.Name != nil && *in.Name == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "name cannot be empty")
	}

	patch := store.Item{
		"version":    store.Increment(1),
		"updated_at": s.now().Unix(),
	}
	if in.Name != nil {
		patch["name"] = utils.Value(in.Name)
	}
	if in.Value != nil {
		patch["value"] = utils.Value(in.Value)
	}
	return s.patch(ctx, actor, settingID, patch, ActionUpdate)
}

func (s *Service) SetVisibility(ctx context.Context, actor claims.Claims, settingID string, visibility Visibility) (*Setting, error) {
	if !visibility.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "visibility %q", visibility)
	}
	patch := store.Item{
		"visibility": string(visibility),
		"version":    store.Increment(1),
		"updated_at": s.now().Unix(),
	}
	return s.patch(ctx, actor, settingID, patch, ActionSetVisibility)
}

func (s *Service) Delete(ctx context.Context, actor claims.Claims, settingID string) error {
	err := s.settings.Delete(ctx, store.Key{Partition: actor.TenantID, Sort: settingID})
	if err != nil {
		return notFound(err, "delete setting %s", settingID)
	}
	s.record(ctx, actor, ActionDelete, settingID)
	return nil
}

// Audit lists tenantID's audit trail, oldest first, and records the read.
func (s *Service) Audit(ctx context.Context, actor claims.Claims, tenantID string) ([]AuditEvent, error) {
	items, err := s.audit.Query(ctx, "", tenantID)
	if err != nil {
		return nil, apperrors.Wrapf(err, "list audit events for %s", tenantID)
	}
	events := make([]AuditEvent, 0, len(items))
	for _, item := range items {
		events = append(events, auditFromItem(item))
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].At != events[j].At {
			return events[i].At < events[j].At
		}
		return events[i].EventID < events[j].EventID
	})
	s.record(ctx, actor, ActionAdminRead, "audit:"+tenantID)
	return events, nil
}

// RecordAdminRead notes an admin reading target.
func (s *Service) RecordAdminRead(ctx context.Context, actor claims.Claims, target string) {
	s.record(ctx, actor, ActionAdminRead, target)
}

func (s *Service) patch(ctx context.Context, actor claims.Claims, settingID string, patch store.Item, action string) (*Setting, error) {
	item, err := s.settings.Update(ctx, store.Key{Partition: actor.TenantID, Sort: settingID}, patch)
	if err != nil {
		return nil, notFound(err, "update setting %s", settingID)
	}
	setting := settingFromItem(item)
	s.record(ctx, actor, action, settingID)
	return &setting, nil
}

// record writes an audit event. A failed write is logged and does not fail
// the operation it describes.
func (s *Service) record(ctx context.Context, actor claims.Claims, action, target string) {
	event := AuditEvent{
		EventID:  s.newID(),
		TenantID: actor.TenantID,
		Actor:    actor.Sub,
		Action:   action,
		Target:   target,
		At:       s.now().Unix(),
	}
	if err := s.audit.Put(ctx, event.item()); err != nil {
		log.Error().Err(err).Str("action", action).Str("target", target).Msg("Failed to write audit event")
	}
}

func notFound(err error, format string, args ...any) error {
	if apperrors.Is(err, store.ErrNotFound) {
		return apperrors.Wrapf(apperrors.ErrNotFound, format, args...)
	}
	return apperrors.Wrapf(err, format, args...)
}

func sortedSettings(items []store.Item) []Setting {
	out := make([]Setting, 0, len(items))
	for _, item := range items {
		out = append(out, settingFromItem(item))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].SettingID < out[j].SettingID
	})
	return out
}
