package request

import (
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string, v any) error {
	t.Helper()
	r := httptest.NewRequest("POST", "/settings", strings.NewReader(body))
	return Decode(httptest.NewRecorder(), r, v)
}

func TestDecodeCreateSetting(t *testing.T) {
	var req CreateSetting
	require.NoError(t, decode(t, `{"name":"theme","value":"dark","tenant_id":"T9","is_admin":true}`, &req))
	assert.Equal(t, "theme", req.Name)
	assert.Equal(t, "dark", req.Value)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"value":"x"}`},
		{"bad visibility", `{"name":"a","visibility":"everyone"}`},
		{"not json", `name=a`},
		{"long name", `{"name":"` + strings.Repeat("a", 129) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CreateSetting
			assert.ErrorIs(t, decode(t, tt.body, &req), apperrors.ErrInvalidRequest)
		})
	}
}

func TestDecodeUpdateSetting(t *testing.T) {
	var req UpdateSetting
	require.NoError(t, decode(t, `{}`, &req))
	assert.True(t, req.Empty())

	req = UpdateSetting{}
	require.NoError(t, decode(t, `{"value":"light"}`, &req))
	assert.False(t, req.Empty())
	assert.Nil(t, req.Name)
	assert.Equal(t, "light", *req.Value)
}

func TestDecodeSetVisibility(t *testing.T) {
	var req SetVisibility
	assert.ErrorIs(t, decode(t, `{}`, &req), apperrors.ErrInvalidRequest)
	require.NoError(t, decode(t, `{"visibility":"public"}`, &req))
}
