package portal

import (
	"context"

	"github.com/imamik/nexus/internal/config"
	"github.com/imamik/nexus/internal/provisioning"
)

// Outcome is the vendor's answer to a submission.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
)

// SubmitRequest is the account to create.
type SubmitRequest struct {
	Profile      provisioning.UserProfile
	IdentityKind provisioning.IdentityKind
	Identity     string
	Password     string
}

// MarshalLog implements logr.Marshaler and omits the password.
func (r SubmitRequest) MarshalLog() any {
	return map[string]string{
		"identity": r.Identity,
		"kind":     string(r.IdentityKind),
		"user":     r.Profile.DisplayName,
	}
}

// SubmitResult is a successful round-trip to the vendor. Transient and
// validation failures are returned as errors instead.
type SubmitResult struct {
	Outcome Outcome
	// Duplicate names the colliding attribute when Outcome is OutcomeDuplicate.
	Duplicate provisioning.ConflictKind
	// Challenge is set when the vendor put up a challenge after submission.
	Challenge provisioning.ChallengeKind
}

// Driver performs one vendor's portal steps. A task calls Login, then polls
// ChallengePresent, then Submit (possibly several times with alternate
// identities), then VerifyCreated. Close is always called, on every exit path.
//
// Login returns a *provisioning.AuthError (Admin set) for rejected admin
// credentials and a *provisioning.TransientError for navigation problems.
// Submit must not be retried by the caller; it returns a
// *provisioning.ValidationError for rejected input.
type Driver interface {
	Login(ctx context.Context, creds Credentials) error
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	VerifyCreated(ctx context.Context, identity string) (bool, error)
	ChallengePresent(ctx context.Context) (provisioning.ChallengeKind, bool, error)
	ChallengeResolved(ctx context.Context) (bool, error)
	Close() error
}

// DuplicateChecker is implemented by drivers that can look an identity up
// before submitting.
type DuplicateChecker interface {
	CheckDuplicate(ctx context.Context, identity string) (bool, error)
}

// Factory opens a driver session for a vendor.
type Factory func(ctx context.Context, cfg config.VendorConfig) (Driver, error)

// CredentialProvider returns the admin credential set for a vendor. It is
// called at most once per task and the result is never cached.
type CredentialProvider interface {
	Credentials(ctx context.Context, vendorID string) (Credentials, error)
}

// CredentialProviderFunc adapts a function to CredentialProvider.
type CredentialProviderFunc func(ctx context.Context, vendorID string) (Credentials, error)

// Credentials implements CredentialProvider.
func (f CredentialProviderFunc) Credentials(ctx context.Context, vendorID string) (Credentials, error) {
	return f(ctx, vendorID)
}
