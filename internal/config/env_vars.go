package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	portEnvVar        = "PORT"
	appNameVar        = "APP_NAME"
	envVar            = "ENV"
	logLevelVar       = "LOG_LEVEL"
	baseURLVar        = "BASE_URL"
	apiBaseVar        = "API_BASE"
	metricsPortEnvVar = "METRICS_PORT"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	return withColon(GetEnv(portEnvVar, "8080"))
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "SyncHub")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetBaseURL returns the externally visible URL of this process (e.g., "https://app.example.com")
func (EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(GetEnv(baseURLVar, "http://localhost:8080"), "/")
}

// GetAPIBase returns the URL of the protected settings API that the web app proxies to
func (EnvVars) GetAPIBase() string {
	return strings.TrimSuffix(GetEnv(apiBaseVar, "http://localhost:8081"), "/")
}

// GetMetricsPort returns the listen address of the prometheus side server, empty disables it
func (EnvVars) GetMetricsPort() string {
	port := GetEnv(metricsPortEnvVar, "")
	if port == "" {
		return ""
	}
	return withColon(port)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvBool(envVar string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvList splits a comma separated variable, dropping empty entries.
func GetEnvList(envVar, defaultValue string) []string {
	var list []string
	for _, v := range strings.Split(GetEnv(envVar, defaultValue), ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func withColon(port string) string {
	if port != "" && port[0] != ':' {
		return ":" + port
	}
	return port
}
