package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	envVar         = "ENV"
	logLevelEnvVar = "LOG_LEVEL"
)

// source resolves a setting from the environment first, then from the optional file overlay.
type source struct {
	overlay map[string]string
}

func (s source) get(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	if value, ok := s.overlay[name]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s source) getDuration(name string, defaultValue time.Duration) time.Duration {
	raw := s.get(name, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// Bare integers are seconds
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func (s source) getBool(name string, defaultValue bool) bool {
	raw := strings.TrimSpace(s.get(name, ""))
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return b
}

type EnvVars struct {
	source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.get(portEnvVar, "3000")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.get(appNameVar, "RavKav Bridge")
}

func (e EnvVars) GetEnv() string {
	return e.get(envVar, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return e.get(logLevelEnvVar, "info")
}
