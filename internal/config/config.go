package config

type Config interface {
	EnvConfig
	CorsConfig
	IdentityConfig
	SessionConfig
	StoreConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
	GetAPIBase() string
	GetMetricsPort() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Identity
	Session
	Store
	Security
}

func New() Config {
	return mainConfig{}
}
