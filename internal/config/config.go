package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	UpstreamConfig
	ExportConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type UpstreamConfig interface {
	GetUpstreamBaseURL() string
	GetUpstreamTimeout() time.Duration
	GetUpstreamClientVersion() string
}

type ExportConfig interface {
	GetExportWorkDir() string
	GetRenderTimeout() time.Duration
	GetContinueOnError() bool
	GetChromePath() string
}

type SessionConfig interface {
	GetSessionMaxAge() time.Duration
	GetSessionSweepInterval() time.Duration
}

type mainConfig struct {
	EnvVars
	Cors
	Upstream
	Export
	Sessions
}

// New returns a Config backed purely by environment variables.
func New() Config {
	return newMainConfig(source{})
}

// NewFromFile returns a Config whose defaults come from the YAML file at path.
// Environment variables still take precedence over anything in the file.
func NewFromFile(path string) (Config, error) {
	overlay, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	return newMainConfig(source{overlay: overlay}), nil
}

func newMainConfig(src source) mainConfig {
	return mainConfig{
		EnvVars:  EnvVars{src},
		Cors:     Cors{src},
		Upstream: Upstream{src},
		Export:   Export{src},
		Sessions: Sessions{src},
	}
}
