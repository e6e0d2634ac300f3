package request

// Tenant and owner are never read from bodies; fields such as tenant_id or
// is_admin in a request are ignored.

type CreateSetting struct {
	Name       string `json:"name" validate:"required,max=128"`
	Value      string `json:"value" validate:"max=4096"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=public private"`
}

type UpdateSetting struct {
	Name  *string `json:"name" validate:"omitempty,max=128"`
	Value *string `json:"value" validate:"omitempty,max=4096"`
}

// Empty reports whether the update changes nothing.
func (u UpdateSetting) Empty() bool {
	return u.Name == nil && u.Value == nil
}

type SetVisibility struct {
	Visibility string `json:"visibility" validate:"required,oneof=public private"`
}
