package config

import "time"

// DefaultConfigFilename is the default configuration filename.
const DefaultConfigFilename = "nexus.yaml"

// Default values applied when nexus.yaml leaves a field unset.
const (
	DefaultRunTimeout        = 2 * time.Hour
	DefaultChallengeTimeout  = 5 * time.Minute
	DefaultChallengePoll     = 5 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHistoryPath       = "nexus-history.db"
	DefaultReportDir         = "reports"
	DefaultReportPrefix      = "reports/"

	MinChallengeTimeout  = 2 * time.Minute
	MinHeartbeatInterval = 30 * time.Second
)

// Default returns a configuration with every default applied and no vendors.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Run.Timeout == 0 {
		c.Run.Timeout = DefaultRunTimeout
	}
	if c.Challenge.Timeout == 0 {
		c.Challenge.Timeout = DefaultChallengeTimeout
	}
	if c.Challenge.PollInterval == 0 {
		c.Challenge.PollInterval = DefaultChallengePoll
	}
	if c.Challenge.HeartbeatInterval == 0 {
		c.Challenge.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 30 * time.Second
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2
	}
	if c.Credentials.Source == "" {
		c.Credentials.Source = CredentialSourceEnv
	}
	if c.Report.Dir == "" {
		c.Report.Dir = DefaultReportDir
	}
	if c.Report.Prefix == "" {
		c.Report.Prefix = DefaultReportPrefix
	}
	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
	for i := range c.Vendors {
		if c.Vendors[i].Identity == "" {
			c.Vendors[i].Identity = "email"
		}
	}
}
