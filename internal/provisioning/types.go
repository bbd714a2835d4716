package provisioning

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/imamik/nexus/internal/config"
)

// Status is the lifecycle state of one vendor task.
type Status string

const (
	StatusPending       Status = "pending"
	StatusRunning       Status = "running"
	StatusAwaitingInput Status = "awaiting_input"
	StatusSucceeded     Status = "succeeded"
	StatusFailed        Status = "failed"
	StatusSkipped       Status = "skipped"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// Reason distinguishes why a task ended SKIPPED (or, for escalation, FAILED).
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonDuplicateSkipped Reason = "duplicate_skipped"
	ReasonCancelled        Reason = "cancelled"
	ReasonAdminAuthAborted Reason = "admin_auth_aborted"
	ReasonRunTimeout       Reason = "run_timeout"
)

// ConflictKind identifies which identity attribute collided on the vendor side.
type ConflictKind string

const (
	ConflictDuplicateUsername ConflictKind = "duplicate_username"
	ConflictDuplicateEmail    ConflictKind = "duplicate_email"
)

// ChallengeKind identifies an out-of-band challenge a human must complete.
type ChallengeKind string

const (
	ChallengeMFA     ChallengeKind = "mfa"
	ChallengeCAPTCHA ChallengeKind = "captcha"
)

// IdentityKind selects which profile attribute a vendor uses as the account identity.
type IdentityKind string

const (
	IdentityEmail    IdentityKind = "email"
	IdentityUsername IdentityKind = "username"
)

// ConflictKind maps the identity attribute to the conflict raised when it collides.
func (k IdentityKind) ConflictKind() ConflictKind {
	if k == IdentityUsername {
		return ConflictDuplicateUsername
	}
	return ConflictDuplicateEmail
}

// UserProfile is the read-only identity-directory record of the user being provisioned.
type UserProfile struct {
	ID                string            `yaml:"id" json:"id"`
	DisplayName       string            `yaml:"display_name" json:"display_name"`
	GivenName         string            `yaml:"given_name" json:"given_name,omitempty"`
	Surname           string            `yaml:"surname" json:"surname,omitempty"`
	UserPrincipalName string            `yaml:"user_principal_name" json:"user_principal_name,omitempty"`
	Email             string            `yaml:"email" json:"email"`
	Title             string            `yaml:"title" json:"title,omitempty"`
	Department        string            `yaml:"department" json:"department,omitempty"`
	Office            string            `yaml:"office" json:"office,omitempty"`
	Attributes        map[string]string `yaml:"attributes" json:"attributes,omitempty"`
}

// Identity returns the initial identity value proposed to a vendor.
// Usernames are first initial plus surname, falling back to the mail local part.
func (p UserProfile) Identity(kind IdentityKind) string {
	if kind != IdentityUsername {
		return p.Email
	}
	if p.GivenName != "" && p.Surname != "" {
		initial, _ := utf8.DecodeRuneInString(p.GivenName)
		return strings.ToLower(string(initial) + strings.ReplaceAll(p.Surname, " ", ""))
	}
	local, _, _ := strings.Cut(p.Email, "@")
	return strings.ToLower(local)
}

// RunRequest is the immutable input of one provisioning run.
type RunRequest struct {
	user    UserProfile
	vendors []config.VendorConfig
}

// NewRunRequest copies its inputs so later mutation by the caller cannot leak in.
func NewRunRequest(user UserProfile, vendors []config.VendorConfig) RunRequest {
	attrs := make(map[string]string, len(user.Attributes))
	for k, v := range user.Attributes {
		attrs[k] = v
	}
	user.Attributes = attrs

	return RunRequest{
		user:    user,
		vendors: append([]config.VendorConfig(nil), vendors...),
	}
}

// User returns the target profile.
func (r RunRequest) User() UserProfile { return r.user }

// Vendors returns a copy of the ordered vendor list.
func (r RunRequest) Vendors() []config.VendorConfig {
	return append([]config.VendorConfig(nil), r.vendors...)
}

// PendingKind tells which rendezvous a task is blocked on.
type PendingKind string

const (
	PendingConflict PendingKind = "conflict"
	PendingWait     PendingKind = "wait"
)

// PendingRequest describes the open ConflictRequest or WaitCondition of a task.
type PendingRequest struct {
	ID            string        `json:"id"`
	Kind          PendingKind   `json:"kind"`
	Conflict      ConflictKind  `json:"conflict,omitempty"`
	Challenge     ChallengeKind `json:"challenge,omitempty"`
	ProposedValue string        `json:"proposed_value,omitempty"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
}

// Snapshot is an immutable copy of a vendor task's observable state.
type Snapshot struct {
	RunID       string          `json:"run_id"`
	VendorID    string          `json:"vendor_id"`
	DisplayName string          `json:"display_name"`
	Status      Status          `json:"status"`
	Progress    int             `json:"progress"`
	Step        string          `json:"step,omitempty"`
	Identity    string          `json:"identity,omitempty"`
	Messages    []string        `json:"messages"`
	Warnings    []string        `json:"warnings"`
	Errors      []string        `json:"errors"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Pending     *PendingRequest `json:"pending,omitempty"`
	Reason      Reason          `json:"reason,omitempty"`
	ErrorKind   ErrorKind       `json:"error_kind,omitempty"`
	Seq         uint64          `json:"seq"`
}

// Started reports whether the task ever left PENDING.
func (s Snapshot) Started() bool {
	return s.StartedAt != nil
}

// Duration returns the time between start and end, or zero if either is unset.
func (s Snapshot) Duration() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt)
}
