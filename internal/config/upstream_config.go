package config

import "time"

const (
	upstreamBaseURLEnvVar       = "UPSTREAM_BASE_URL"
	upstreamTimeoutEnvVar       = "UPSTREAM_TIMEOUT"
	upstreamClientVersionEnvVar = "UPSTREAM_CLIENT_VERSION"
)

type Upstream struct {
	source
}

var _ UpstreamConfig = Upstream{}

func (u Upstream) GetUpstreamBaseURL() string {
	return u.get(upstreamBaseURLEnvVar, "https://ravkavonline.co.il")
}

func (u Upstream) GetUpstreamTimeout() time.Duration {
	return u.getDuration(upstreamTimeoutEnvVar, 30*time.Second)
}

// GetUpstreamClientVersion is sent as the x-ravkav-version header.
func (u Upstream) GetUpstreamClientVersion() string {
	return u.get(upstreamClientVersionEnvVar, "sw=ravkav-web id=null version=null d=87ad43702ce240c8b19cdd79ed677489")
}
