package config

import "time"

const adminGroupVar = "ADMIN_GROUP"

type SecurityConfig interface {
	GetTokenExchangeTimeout() time.Duration
	GetAdminGroup() string
	GetClockSkew() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetTokenExchangeTimeout() time.Duration {
	return 10 * time.Second
}

// GetAdminGroup is the cognito:groups entry that grants admin
func (Security) GetAdminGroup() string {
	return GetEnv(adminGroupVar, "admins")
}

func (Security) GetClockSkew() time.Duration {
	return 30 * time.Second
}
