package settings

import (
	"context"
	"time"

	"github.com/jrsteele09/synchub/claims"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
)

// Analytics windows. Anything else falls back to DefaultRange.
var analyticsRanges = map[string]time.Duration{
	"1d":  24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

const DefaultRange = "7d"

// Analytics summarises one tenant's activity since Since.
type Analytics struct {
	TenantID        string         `json:"tenant_id"`
	Range           string         `json:"range"`
	Since           int64          `json:"since"`
	TotalSettings   int            `json:"total_settings"`
	PublicSettings  int            `json:"public_settings"`
	PrivateSettings int            `json:"private_settings"`
	AuditEvents     int            `json:"audit_events"`
	Actions         map[string]int `json:"actions"`
	GeneratedAt     int64          `json:"generated_at"`
}

// Analytics counts the settings created and the audit events written in
// tenantID during rangeName, then records the read.
func (s *Service) Analytics(ctx context.Context, actor claims.Claims, tenantID, rangeName string) (*Analytics, error) {
	window, ok := analyticsRanges[rangeName]
	if !ok {
		rangeName, window = DefaultRange, analyticsRanges[DefaultRange]
	}
	now := s.now()
	since := now.Add(-window).Unix()

	items, err := s.settings.Query(ctx, "", tenantID)
	if err != nil {
		return nil, apperrors.Wrapf(err, "list settings for %s", tenantID)
	}
	a := &Analytics{
		TenantID:    tenantID,
		Range:       rangeName,
		Since:       since,
		Actions:     map[string]int{},
		GeneratedAt: now.Unix(),
	}
	for _, item := range items {
		setting := settingFromItem(item)
		if setting.CreatedAt < since {
			continue
		}
		a.TotalSettings++
		if setting.Visibility == Public {
			a.PublicSettings++
		}
	}
	a.PrivateSettings = a.TotalSettings - a.PublicSettings

	events, err := s.audit.Query(ctx, "", tenantID)
	if err != nil {
		return nil, apperrors.Wrapf(err, "list audit events for %s", tenantID)
	}
	for _, item := range events {
		event := auditFromItem(item)
		if event.At < since {
			continue
		}
		a.AuditEvents++
		a.Actions[event.Action]++
	}

	s.record(ctx, actor, ActionAdminRead, "analytics:"+tenantID)
	return a, nil
}
