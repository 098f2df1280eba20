package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the optional YAML configuration file.
type FileConfig struct {
	Server   ServerFileConfig   `yaml:"server"`
	Upstream UpstreamFileConfig `yaml:"upstream"`
	Export   ExportFileConfig   `yaml:"export"`
	Sessions SessionsFileConfig `yaml:"sessions"`
}

type ServerFileConfig struct {
	Port           string   `yaml:"port"`
	AppName        string   `yaml:"app_name"`
	Env            string   `yaml:"env"`
	LogLevel       string   `yaml:"log_level"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type UpstreamFileConfig struct {
	BaseURL       string `yaml:"base_url"`
	Timeout       string `yaml:"timeout"`
	ClientVersion string `yaml:"client_version"`
}

type ExportFileConfig struct {
	WorkDir         string `yaml:"work_dir"`
	RenderTimeout   string `yaml:"render_timeout"`
	ContinueOnError *bool  `yaml:"continue_on_error"`
	ChromePath      string `yaml:"chrome_path"`
}

type SessionsFileConfig struct {
	MaxAge        string `yaml:"max_age"`
	SweepInterval string `yaml:"sweep_interval"`
}

func loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return fc.overlay(), nil
}

// overlay flattens the file into the same keys the environment uses.
func (fc FileConfig) overlay() map[string]string {
	m := map[string]string{
		portEnvVar:                  fc.Server.Port,
		appNameVar:                  fc.Server.AppName,
		envVar:                      fc.Server.Env,
		logLevelEnvVar:              fc.Server.LogLevel,
		allowedOriginsEnvVar:        strings.Join(fc.Server.AllowedOrigins, ","),
		upstreamBaseURLEnvVar:       fc.Upstream.BaseURL,
		upstreamTimeoutEnvVar:       fc.Upstream.Timeout,
		upstreamClientVersionEnvVar: fc.Upstream.ClientVersion,
		exportWorkDirEnvVar:         fc.Export.WorkDir,
		exportRenderTimeoutEnvVar:   fc.Export.RenderTimeout,
		chromePathEnvVar:            fc.Export.ChromePath,
		sessionMaxAgeEnvVar:         fc.Sessions.MaxAge,
		sessionSweepIntervalEnvVar:  fc.Sessions.SweepInterval,
	}
	if fc.Export.ContinueOnError != nil {
		m[exportContinueOnErrorEnvVar] = strconv.FormatBool(*fc.Export.ContinueOnError)
	}
	return m
}
