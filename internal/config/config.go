package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/imamik/nexus/internal/util/password"
	"github.com/imamik/nexus/internal/util/retry"
)

// Config is the root of nexus.yaml.
type Config struct {
	Vendors     []VendorConfig    `yaml:"vendors"`
	Run         RunConfig         `yaml:"run"`
	Challenge   ChallengeConfig   `yaml:"challenge"`
	Retry       RetryConfig       `yaml:"retry"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Profiles    ProfilesConfig    `yaml:"profiles"`
	Report      ReportConfig      `yaml:"report"`
	History     HistoryConfig     `yaml:"history"`
	S3          S3Config          `yaml:"s3"`
}

// VendorConfig describes one vendor portal. It is read-only once a run starts.
type VendorConfig struct {
	ID            string           `yaml:"id" json:"id"`
	DisplayName   string           `yaml:"display_name" json:"display_name,omitempty"`
	Driver        string           `yaml:"driver" json:"driver"`
	Enabled       *bool            `yaml:"enabled" json:"enabled,omitempty"`
	Identity      string           `yaml:"identity" json:"identity,omitempty"`
	LoginURL      string           `yaml:"login_url" json:"login_url,omitempty"`
	Challenge     *ChallengeConfig `yaml:"challenge" json:"challenge,omitempty"`
	PasswordRules *password.Rules  `yaml:"password_rules" json:"password_rules,omitempty"`
	Simulate      *SimulateConfig  `yaml:"simulate" json:"simulate,omitempty"`
}

// IsEnabled reports whether the vendor takes part in default runs. Vendors are enabled unless disabled explicitly.
func (v VendorConfig) IsEnabled() bool {
	return v.Enabled == nil || *v.Enabled
}

// Name returns the display name, falling back to the id.
func (v VendorConfig) Name() string {
	if v.DisplayName != "" {
		return v.DisplayName
	}
	return v.ID
}

// Rules returns the password rules for new accounts on this vendor.
func (v VendorConfig) Rules() password.Rules {
	if v.PasswordRules != nil {
		return *v.PasswordRules
	}
	return password.DefaultRules()
}

// RunConfig bounds a whole run.
type RunConfig struct {
	// Timeout is the run watchdog. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`
	// ConflictTimeout caps how long a duplicate prompt waits for an answer. Zero means no cap.
	ConflictTimeout time.Duration `yaml:"conflict_timeout"`
}

// ChallengeConfig controls MFA and CAPTCHA waits.
type ChallengeConfig struct {
	Timeout           time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	PollInterval      time.Duration `yaml:"poll_interval" json:"poll_interval,omitempty"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval,omitempty"`
}

// RetryConfig is the backoff policy for idempotent driver steps.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// Policy converts the config to a retry.Policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		Multiplier:   r.Multiplier,
	}
}

// Credential sources.
const (
	CredentialSourceEnv  = "env"
	CredentialSourceFile = "file"
	CredentialSourceS3   = "s3"
)

// CredentialsConfig selects where vendor admin secrets come from.
type CredentialsConfig struct {
	Source string `yaml:"source"`
	// File is the secrets YAML used by the file source.
	File string `yaml:"file"`
	// Key is the object key used by the s3 source (bucket from S3Config).
	Key string `yaml:"key"`
}

// ProfilesConfig points at the identity directory export.
type ProfilesConfig struct {
	File string `yaml:"file"`
}

// ReportConfig controls where run reports are written.
type ReportConfig struct {
	Dir string `yaml:"dir"`
	// Upload also stores each report under Prefix in the S3 bucket.
	Upload bool   `yaml:"upload"`
	Prefix string `yaml:"prefix"`
}

// HistoryConfig locates the run history database.
type HistoryConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// S3Config is an S3-compatible object store used for reports and secrets.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// Enabled reports whether an object store is configured.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// Vendor returns the vendor with id.
func (c *Config) Vendor(id string) (VendorConfig, bool) {
	for _, v := range c.Vendors {
		if v.ID == id {
			return v, true
		}
	}
	return VendorConfig{}, false
}

// EnabledVendors returns enabled vendors in config order.
func (c *Config) EnabledVendors() []VendorConfig {
	var out []VendorConfig
	for _, v := range c.Vendors {
		if v.IsEnabled() {
			out = append(out, v)
		}
	}
	return out
}

// SelectVendors resolves a run's vendor list. With no ids every enabled
// vendor is selected in config order; otherwise ids are kept in the given
// order and unknown, disabled or repeated ids are rejected.
func (c *Config) SelectVendors(ids []string) ([]VendorConfig, error) {
	if len(ids) == 0 {
		out := c.EnabledVendors()
		if len(out) == 0 {
			return nil, fmt.Errorf("no enabled vendors configured")
		}
		return out, nil
	}

	var errs []error
	seen := make(map[string]bool, len(ids))
	out := make([]VendorConfig, 0, len(ids))
	for _, id := range ids {
		v, ok := c.Vendor(id)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("unknown vendor %q", id))
		case !v.IsEnabled():
			errs = append(errs, fmt.Errorf("vendor %q is disabled", id))
		case seen[id]:
			errs = append(errs, fmt.Errorf("vendor %q selected twice", id))
		default:
			out = append(out, v)
		}
		seen[id] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// ChallengeFor merges a vendor's challenge overrides over the global settings
// and clamps the result to the supported minimums.
func (c *Config) ChallengeFor(v VendorConfig) ChallengeConfig {
	out := c.Challenge
	if o := v.Challenge; o != nil {
		if o.Timeout > 0 {
			out.Timeout = o.Timeout
		}
		if o.PollInterval > 0 {
			out.PollInterval = o.PollInterval
		}
		if o.HeartbeatInterval > 0 {
			out.HeartbeatInterval = o.HeartbeatInterval
		}
	}
	return out.Clamped()
}

// Clamped enforces the minimum wait timeout and heartbeat interval.
func (c ChallengeConfig) Clamped() ChallengeConfig {
	if c.Timeout < MinChallengeTimeout {
		c.Timeout = MinChallengeTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultChallengePoll
	}
	if c.HeartbeatInterval < MinHeartbeatInterval {
		c.HeartbeatInterval = MinHeartbeatInterval
	}
	return c
}
