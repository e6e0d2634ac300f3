package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type snapshot struct {
	Port          string   `validate:"required"`
	BaseURL       string   `validate:"required,url"`
	IdPDomain     string   `validate:"required,url"`
	ClientID      string   `validate:"required"`
	RedirectURI   string   `validate:"required,url"`
	RedirectURIs  []string `validate:"required,min=1,dive,url"`
	LogoutURI     string   `validate:"required,url"`
	Issuer        string   `validate:"required,url"`
	JWKSURL       string   `validate:"required,url"`
	HashKey       []byte   `validate:"omitempty,min=32"`
	SessionStore  string   `validate:"oneof=cookie filesystem"`
	StoreBackend  string   `validate:"oneof=memory dynamodb postgres"`
	DatabaseURL   string   `validate:"required_if=StoreBackend postgres"`
	AWSRegion     string   `validate:"required_if=StoreBackend dynamodb"`
	SettingsTable string   `validate:"required"`
	AuditTable    string   `validate:"required"`
}

// Validate checks that the environment describes a usable deployment.
func Validate(c Config) error {
	s := snapshot{
		Port:          c.GetPort(),
		BaseURL:       c.GetBaseURL(),
		IdPDomain:     c.GetIdPDomain(),
		ClientID:      c.GetClientID(),
		RedirectURI:   c.GetRedirectURI(),
		RedirectURIs:  c.GetAllowedRedirectURIs(),
		LogoutURI:     c.GetLogoutURI(),
		Issuer:        c.GetIssuer(),
		JWKSURL:       c.GetJWKSURL(),
		HashKey:       c.GetSessionHashKey(),
		SessionStore:  c.GetSessionStore(),
		StoreBackend:  c.GetStoreBackend(),
		DatabaseURL:   c.GetDatabaseURL(),
		AWSRegion:     c.GetAWSRegion(),
		SettingsTable: c.GetSettingsTable(),
		AuditTable:    c.GetAuditTable(),
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("[config.Validate] invalid configuration: %w", err)
	}
	return nil
}
