package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrorKind is the taxonomy name recorded on a FAILED snapshot.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindTransient          ErrorKind = "TransientError"
	KindAuth               ErrorKind = "AuthError"
	KindDuplicate          ErrorKind = "DuplicateError"
	KindChallengeTimeout   ErrorKind = "ChallengeTimeoutError"
	KindConflictTimeout    ErrorKind = "ConflictTimeoutError"
	KindValidation         ErrorKind = "ValidationError"
	KindCancelled          ErrorKind = "CancelledError"
	KindVerification       ErrorKind = "VerificationError"
	KindCredentialNotFound ErrorKind = "CredentialNotFoundError"
	KindDriver             ErrorKind = "DriverError"
)

var (
	// ErrCancelled is the cancellation cause installed by an operator cancel.
	ErrCancelled = errors.New("run cancelled by operator")

	// ErrRunTimeout is the cancellation cause installed by the run watchdog.
	ErrRunTimeout = errors.New("run exceeded its time limit")

	// ErrCredentialNotFound is returned by credential providers for unknown keys.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrVerificationFailed means the vendor accepted a submission but the account never appeared.
	ErrVerificationFailed = errors.New("account not found after submission")
)

// TransientError marks a failure that is expected to clear on retry
// (navigation timeout, dropped connection, stale page element).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for op.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// AuthError is a rejected login. Admin is set when the rejected account is
// the shared administrative account, which aborts the rest of the run.
type AuthError struct {
	Vendor string
	Admin  bool
	Err    error
}

func (e *AuthError) Error() string {
	who := "login"
	if e.Admin {
		who = "admin login"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s rejected", e.Vendor, who)
	}
	return fmt.Sprintf("%s: %s rejected: %v", e.Vendor, who, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// DuplicateError reports that the vendor already has an account for the identity value.
type DuplicateError struct {
	Kind  ConflictKind
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Kind, e.Value)
}

// ChallengeTimeoutError reports a wait condition that was not satisfied in time.
type ChallengeTimeoutError struct {
	Kind    ChallengeKind
	Timeout time.Duration
}

func (e *ChallengeTimeoutError) Error() string {
	return fmt.Sprintf("%s challenge not completed within %v", e.Kind, e.Timeout)
}

// ConflictTimeoutError reports a conflict request nobody answered in time.
type ConflictTimeoutError struct {
	Kind    ConflictKind
	Value   string
	Timeout time.Duration
}

func (e *ConflictTimeoutError) Error() string {
	return fmt.Sprintf("no resolution for %s %q within %v", e.Kind, e.Value, e.Timeout)
}

// ValidationError is an input the vendor or the request rejected outright.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// IsTransient reports whether err may be retried.
// Cancellation is never transient, even when a context deadline caused it.
func IsTransient(err error) bool {
	if err == nil || IsCancelled(err) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// IsCancelled reports whether err stems from run cancellation or the run watchdog.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, ErrRunTimeout) ||
		errors.Is(err, context.Canceled)
}

// CancelReason maps a cancellation cause to the skip reason it produces.
func CancelReason(cause error) Reason {
	if errors.Is(cause, ErrRunTimeout) {
		return ReasonRunTimeout
	}
	return ReasonCancelled
}

// IsAdminAuth reports whether err is a rejected admin login.
func IsAdminAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Admin
}

// KindOf classifies err into the taxonomy. Unknown errors are DriverError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		authErr      *AuthError
		dupErr       *DuplicateError
		challengeErr *ChallengeTimeoutError
		conflictErr  *ConflictTimeoutError
		validErr     *ValidationError
	)

	switch {
	case IsCancelled(err):
		return KindCancelled
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &dupErr):
		return KindDuplicate
	case errors.As(err, &challengeErr):
		return KindChallengeTimeout
	case errors.As(err, &conflictErr):
		return KindConflictTimeout
	case errors.As(err, &validErr):
		return KindValidation
	case errors.Is(err, ErrVerificationFailed):
		return KindVerification
	case errors.Is(err, ErrCredentialNotFound):
		return KindCredentialNotFound
	case IsTransient(err):
		return KindTransient
	default:
		return KindDriver
	}
}
