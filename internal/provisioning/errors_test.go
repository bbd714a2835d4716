package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"transient", Transient("login", errors.New("page did not load")), KindTransient},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindTransient},
		{"auth", &AuthError{Vendor: "acme", Admin: true}, KindAuth},
		{"duplicate", &DuplicateError{Kind: ConflictDuplicateEmail, Value: "a@b.c"}, KindDuplicate},
		{"challenge timeout", &ChallengeTimeoutError{Kind: ChallengeMFA, Timeout: time.Minute}, KindChallengeTimeout},
		{"conflict timeout", &ConflictTimeoutError{Kind: ConflictDuplicateUsername}, KindConflictTimeout},
		{"validation", &ValidationError{Field: "email", Message: "rejected"}, KindValidation},
		{"verification", fmt.Errorf("verify: %w", ErrVerificationFailed), KindVerification},
		{"credential", fmt.Errorf("acme-admin: %w", ErrCredentialNotFound), KindCredentialNotFound},
		{"operator cancel", fmt.Errorf("wait: %w", ErrCancelled), KindCancelled},
		{"watchdog", ErrRunTimeout, KindCancelled},
		{"context cancel", context.Canceled, KindCancelled},
		{"unknown", errors.New("selector not found"), KindDriver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsTransient_CancellationWins(t *testing.T) {
	t.Parallel()

	err := Transient("navigate", fmt.Errorf("aborted: %w", ErrCancelled))
	assert.False(t, IsTransient(err), "cancelled work must not be retried")
	assert.Equal(t, KindCancelled, KindOf(err))
}

func TestIsAdminAuth(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAdminAuth(fmt.Errorf("login: %w", &AuthError{Vendor: "acme", Admin: true})))
	assert.False(t, IsAdminAuth(&AuthError{Vendor: "acme"}))
	assert.False(t, IsAdminAuth(errors.New("boom")))
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "acme: admin login rejected", (&AuthError{Vendor: "acme", Admin: true}).Error())
	assert.Equal(t, "duplicate_email already exists: a@b.c",
		(&DuplicateError{Kind: ConflictDuplicateEmail, Value: "a@b.c"}).Error())
	assert.Equal(t, "mfa challenge not completed within 5m0s",
		(&ChallengeTimeoutError{Kind: ChallengeMFA, Timeout: 5 * time.Minute}).Error())
	assert.Nil(t, Transient("noop", nil))
}

func TestCancelReason(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ReasonRunTimeout, CancelReason(fmt.Errorf("wait: %w", ErrRunTimeout)))
	assert.Equal(t, ReasonCancelled, CancelReason(ErrCancelled))
	assert.Equal(t, ReasonCancelled, CancelReason(context.Canceled))
}
