package config

import "time"

// SimulateConfig scripts the dry-run driver for one vendor.
type SimulateConfig struct {
	// ExistingIdentities are reported as duplicates on submit.
	ExistingIdentities []string `yaml:"existing_identities" json:"existing_identities,omitempty"`
	// Challenge is "mfa" or "captcha" to present a challenge after login.
	Challenge string `yaml:"challenge" json:"challenge,omitempty"`
	// ChallengeDelay is how long the challenge stays unresolved.
	ChallengeDelay time.Duration `yaml:"challenge_delay" json:"challenge_delay,omitempty"`
	// TransientLoginFailures fails the first N logins with a transient error.
	TransientLoginFailures int `yaml:"transient_login_failures" json:"transient_login_failures,omitempty"`
	// RejectLogin fails login with an admin authentication error.
	RejectLogin bool `yaml:"reject_login" json:"reject_login,omitempty"`
	// RejectSubmit fails submission with this validation message.
	RejectSubmit string `yaml:"reject_submit" json:"reject_submit,omitempty"`
	// VerifyFails makes the created account invisible to verification.
	VerifyFails bool `yaml:"verify_fails" json:"verify_fails,omitempty"`
	// PreCheck lets the driver look identities up before submitting.
	PreCheck bool `yaml:"pre_check" json:"pre_check,omitempty"`
	// StepDelay is added to every driver call.
	StepDelay time.Duration `yaml:"step_delay" json:"step_delay,omitempty"`
}
