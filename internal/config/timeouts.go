package config

import (
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides timeouts and retry settings from environment variables.
// Unset or unparsable variables keep the current value.
//
// Environment Variables:
//   - NEXUS_RUN_TIMEOUT (default: 2h, 0 disables the watchdog)
//   - NEXUS_CONFLICT_TIMEOUT (default: 0, no cap)
//   - NEXUS_CHALLENGE_TIMEOUT (default: 5m, minimum 2m)
//   - NEXUS_CHALLENGE_POLL (default: 5s)
//   - NEXUS_HEARTBEAT_INTERVAL (default: 30s, minimum 30s)
//   - NEXUS_RETRY_MAX_ATTEMPTS (default: 3)
//   - NEXUS_RETRY_INITIAL_DELAY (default: 1s)
//   - NEXUS_RETRY_MAX_DELAY (default: 30s)
//   - NEXUS_RETRY_MULTIPLIER (default: 2)
func (c *Config) ApplyEnv() {
	c.Run.Timeout = parseDuration("NEXUS_RUN_TIMEOUT", c.Run.Timeout)
	c.Run.ConflictTimeout = parseDuration("NEXUS_CONFLICT_TIMEOUT", c.Run.ConflictTimeout)
	c.Challenge.Timeout = parseDuration("NEXUS_CHALLENGE_TIMEOUT", c.Challenge.Timeout)
	c.Challenge.PollInterval = parseDuration("NEXUS_CHALLENGE_POLL", c.Challenge.PollInterval)
	c.Challenge.HeartbeatInterval = parseDuration("NEXUS_HEARTBEAT_INTERVAL", c.Challenge.HeartbeatInterval)
	c.Retry.MaxAttempts = parseInt("NEXUS_RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts)
	c.Retry.InitialDelay = parseDuration("NEXUS_RETRY_INITIAL_DELAY", c.Retry.InitialDelay)
	c.Retry.MaxDelay = parseDuration("NEXUS_RETRY_MAX_DELAY", c.Retry.MaxDelay)
	c.Retry.Multiplier = parseFloat("NEXUS_RETRY_MULTIPLIER", c.Retry.Multiplier)
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}

func parseFloat(envVar string, defaultVal float64) float64 {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}

	return f
}
