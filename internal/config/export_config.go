package config

import "time"

const (
	exportWorkDirEnvVar         = "EXPORT_WORK_DIR"
	exportRenderTimeoutEnvVar   = "EXPORT_RENDER_TIMEOUT"
	exportContinueOnErrorEnvVar = "EXPORT_CONTINUE_ON_ERROR"
	chromePathEnvVar            = "CHROME_PATH"
)

type Export struct {
	source
}

var _ ExportConfig = Export{}

func (e Export) GetExportWorkDir() string {
	return e.get(exportWorkDirEnvVar, "./pdfs")
}

func (e Export) GetRenderTimeout() time.Duration {
	return e.getDuration(exportRenderTimeoutEnvVar, 60*time.Second)
}

// GetContinueOnError switches the export from abort-on-first-error to collecting every render failure.
func (e Export) GetContinueOnError() bool {
	return e.getBool(exportContinueOnErrorEnvVar, false)
}

// GetChromePath is empty unless a specific browser binary is required (e.g. /usr/bin/chromium on arm boards).
func (e Export) GetChromePath() string {
	return e.get(chromePathEnvVar, "")
}
