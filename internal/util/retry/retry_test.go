package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"
)

var errTransient = errors.New("temporary error")

// stepUntilDone advances the fake clock whenever the operation under test is
// parked on a backoff timer, until fn returns.
func stepUntilDone(t *testing.T, fc *testingclock.FakeClock, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("operation did not finish")
		}
		if fc.HasWaiters() {
			fc.Step(time.Minute)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDo_Success(t *testing.T) {
	t.Parallel()
	attempts := 0
	operation := func(context.Context) error {
		attempts++
		return nil
	}

	err := Do(context.Background(), operation)

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	operation := func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	}

	err := Do(context.Background(), operation, WithInitialDelay(10*time.Millisecond))

	if err != nil {
		t.Errorf("Expected no error after retries, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestDo_BackoffSchedule(t *testing.T) {
	t.Parallel()
	fc := testingclock.NewFakeClock(time.Now())
	attempts := 0
	var delays []time.Duration

	operation := func(context.Context) error {
		attempts++
		return errTransient
	}

	err := stepUntilDone(t, fc, func() error {
		return Do(context.Background(), operation,
			WithPolicy(Policy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}),
			WithClock(fc),
			WithOnRetry(func(_ int, d time.Duration, _ error) { delays = append(delays, d) }))
	})

	expected := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(expected) {
		t.Fatalf("Expected %d delays, got %v", len(expected), delays)
	}
	for i := range expected {
		if delays[i] != expected[i] {
			t.Errorf("Delay %d: expected %v, got %v", i+1, expected[i], delays[i])
		}
	}

	// MaxAttempts counts retries after the first call.
	if attempts != 4 {
		t.Errorf("Expected 4 calls (1 + 3 retries), got: %d", attempts)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedError, got: %v", err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("Expected attempt count 4, got %d", exhausted.Attempts)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("Expected last underlying error to be wrapped, got: %v", err)
	}
}

func TestDo_RetryIfRejectsError(t *testing.T) {
	t.Parallel()
	errValidation := errors.New("bad input")
	attempts := 0
	operation := func(context.Context) error {
		attempts++
		return errValidation
	}

	err := Do(context.Background(), operation,
		WithInitialDelay(10*time.Millisecond),
		WithRetryIf(func(err error) bool { return errors.Is(err, errTransient) }))

	if !errors.Is(err, errValidation) {
		t.Errorf("Expected validation error, got: %v", err)
	}
	if IsExhausted(err) {
		t.Error("Non-transient failure must not be reported as exhausted")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()
	attempts := 0
	operation := func(context.Context) error {
		attempts++
		return errTransient
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, operation, WithInitialDelay(10*time.Millisecond))

	if err == nil {
		t.Error("Expected error due to context cancellation, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt before context check, got: %d", attempts)
	}
}

func TestDo_CancelCauseDuringBackoff(t *testing.T) {
	t.Parallel()
	errStop := errors.New("operator cancelled")
	ctx, cancel := context.WithCancelCause(context.Background())

	attempts := 0
	operation := func(context.Context) error {
		attempts++
		cancel(errStop)
		return errTransient
	}

	err := Do(ctx, operation, WithInitialDelay(time.Hour), WithMaxDelay(time.Hour))

	if !errors.Is(err, errStop) {
		t.Errorf("Expected cancel cause in error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestDo_FatalError(t *testing.T) {
	t.Parallel()
	attempts := 0
	operation := func(context.Context) error {
		attempts++
		return Fatal(errors.New("fatal error"))
	}

	err := Do(context.Background(), operation, WithInitialDelay(10*time.Millisecond))

	if err == nil {
		t.Error("Expected fatal error, got nil")
	}
	if !IsFatal(err) {
		t.Errorf("Expected fatal error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retries for fatal error), got: %d", attempts)
	}
}

func TestPolicy_Delay(t *testing.T) {
	t.Parallel()
	p := Policy{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{9, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"zero attempts", Policy{MaxAttempts: 0, Multiplier: 2}, true},
		{"shrinking multiplier", Policy{MaxAttempts: 1, Multiplier: 0.5}, true},
		{"initial above max", Policy{MaxAttempts: 1, InitialDelay: time.Minute, MaxDelay: time.Second, Multiplier: 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFatal(t *testing.T) {
	t.Parallel()
	t.Run("Nil error", func(t *testing.T) {
		t.Parallel()
		if err := Fatal(nil); err != nil {
			t.Errorf("Expected nil, got: %v", err)
		}
	})

	t.Run("Non-nil error", func(t *testing.T) {
		t.Parallel()
		original := errors.New("original error")
		err := Fatal(original)
		if !IsFatal(err) {
			t.Error("Expected error to be fatal")
		}
		if !errors.Is(err, original) {
			t.Error("Expected fatal error to unwrap to original")
		}
		if err.Error() != original.Error() {
			t.Errorf("Expected message %q, got %q", original.Error(), err.Error())
		}
	})
}
