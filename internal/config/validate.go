package config

import (
	"errors"
	"fmt"
	"regexp"
)

var vendorIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidIdentities are the supported account identity attributes.
var ValidIdentities = map[string]bool{
	"email":    true,
	"username": true,
}

// Validate checks the configuration and joins every problem found.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Vendors) == 0 {
		errs = append(errs, fmt.Errorf("at least one vendor is required"))
	}

	seen := make(map[string]bool, len(c.Vendors))
	for i, v := range c.Vendors {
		if err := v.validate(); err != nil {
			errs = append(errs, fmt.Errorf("vendors[%d]: %w", i, err))
		}
		if seen[v.ID] {
			errs = append(errs, fmt.Errorf("vendors[%d]: duplicate vendor id %q", i, v.ID))
		}
		seen[v.ID] = true
	}

	if err := c.Retry.Policy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	if c.Run.Timeout < 0 || c.Run.ConflictTimeout < 0 {
		errs = append(errs, fmt.Errorf("run: timeouts must not be negative"))
	}

	switch c.Credentials.Source {
	case CredentialSourceEnv:
	case CredentialSourceFile:
		if c.Credentials.File == "" {
			errs = append(errs, fmt.Errorf("credentials: file is required for source %q", c.Credentials.Source))
		}
	case CredentialSourceS3:
		if !c.S3.Enabled() || c.Credentials.Key == "" {
			errs = append(errs, fmt.Errorf("credentials: s3.bucket and credentials.key are required for source %q", c.Credentials.Source))
		}
	default:
		errs = append(errs, fmt.Errorf("credentials: unknown source %q", c.Credentials.Source))
	}

	if c.Report.Upload && !c.S3.Enabled() {
		errs = append(errs, fmt.Errorf("report: upload requires s3.bucket"))
	}

	return errors.Join(errs...)
}

func (v VendorConfig) validate() error {
	if !vendorIDPattern.MatchString(v.ID) {
		return fmt.Errorf("invalid vendor id %q", v.ID)
	}
	if v.Driver == "" {
		return fmt.Errorf("%s: driver is required", v.ID)
	}
	if !ValidIdentities[v.Identity] {
		return fmt.Errorf("%s: identity must be email or username, got %q", v.ID, v.Identity)
	}
	if v.PasswordRules != nil {
		if err := v.PasswordRules.Validate(); err != nil {
			return fmt.Errorf("%s: password_rules: %w", v.ID, err)
		}
	}
	return nil
}
