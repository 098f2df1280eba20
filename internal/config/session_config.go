package config

import "time"

const (
	sessionMaxAgeEnvVar        = "SESSION_MAX_AGE"
	sessionSweepIntervalEnvVar = "SESSION_SWEEP_INTERVAL"
)

type Sessions struct {
	source
}

var _ SessionConfig = Sessions{}

// GetSessionMaxAge returns 0 when sessions should live for the whole process lifetime.
func (s Sessions) GetSessionMaxAge() time.Duration {
	return s.getDuration(sessionMaxAgeEnvVar, 0)
}

func (s Sessions) GetSessionSweepInterval() time.Duration {
	return s.getDuration(sessionSweepIntervalEnvVar, 5*time.Minute)
}
