package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/imamik/nexus/internal/config"
	"github.com/imamik/nexus/internal/conflict"
	"github.com/imamik/nexus/internal/portal"
	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/util/password"
	"github.com/imamik/nexus/internal/util/retry"
	"github.com/imamik/nexus/internal/waitgate"
)

// Progress checkpoints reported while RUNNING.
const (
	progressStarted   = 5
	progressSession   = 10
	progressLoggedIn  = 30
	progressSubmitted = 60
	progressVerifying = 80
	progressDone      = 100
)

// Deps are the collaborators a task drives.
type Deps struct {
	Open        portal.Factory
	Credentials portal.CredentialProvider
	Broker      *conflict.Broker
	Gate        *waitgate.Gate
	Clock       clock.WithTicker
	Observer    provisioning.Observer

	Retry           retry.Policy
	Challenge       config.ChallengeConfig
	ConflictTimeout time.Duration

	// Password generates a new-account password when the vendor has no preset one.
	Password func(password.Rules) (string, error)
	// OnChange receives every snapshot. It must not block.
	OnChange func(provisioning.Snapshot)
}

// skipError ends a task SKIPPED with a reason instead of FAILED.
type skipError struct {
	reason provisioning.Reason
	msg    string
}

func (e *skipError) Error() string { return e.msg }

// Task is one vendor's provisioning attempt within a run.
type Task struct {
	runID string
	cfg   config.VendorConfig
	user  provisioning.UserProfile
	deps  Deps

	mu   sync.Mutex
	snap provisioning.Snapshot
}

// New creates a PENDING task.
func New(runID string, user provisioning.UserProfile, cfg config.VendorConfig, deps Deps) *Task {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Observer == nil {
		deps.Observer = provisioning.NewMultiObserver()
	}
	if deps.Password == nil {
		deps.Password = password.Generate
	}
	if deps.Gate == nil {
		deps.Gate = waitgate.New(waitgate.WithClock(deps.Clock))
	}
	if deps.Broker == nil {
		deps.Broker = conflict.NewBroker(conflict.WithClock(deps.Clock))
	}
	deps.Observer = deps.Observer.WithFields(map[string]string{"vendor": cfg.ID})

	return &Task{
		runID: runID,
		cfg:   cfg,
		user:  user,
		deps:  deps,
		snap: provisioning.Snapshot{
			RunID:       runID,
			VendorID:    cfg.ID,
			DisplayName: cfg.Name(),
			Status:      provisioning.StatusPending,
			Messages:    []string{},
			Warnings:    []string{},
			Errors:      []string{},
		},
	}
}

// VendorID returns the vendor the task provisions.
func (t *Task) VendorID() string { return t.cfg.ID }

// Snapshot returns a copy of the current state.
func (t *Task) Snapshot() provisioning.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copySnapshot(t.snap)
}

// Skip moves a task that never started straight to SKIPPED. It is a no-op
// for tasks that already left PENDING.
func (t *Task) Skip(reason provisioning.Reason, msg string) provisioning.Snapshot {
	snap, changed := t.update(func(s *provisioning.Snapshot) bool {
		if s.Status != provisioning.StatusPending {
			return false
		}
		s.Status = provisioning.StatusSkipped
		s.Reason = reason
		now := t.deps.Clock.Now()
		s.EndedAt = &now
		if msg != "" {
			s.Messages = append(s.Messages, msg)
		}
		return true
	})
	if changed {
		provisioning.LogTaskFinished(t.deps.Observer, snap)
	}
	return snap
}

// Run executes the task to a terminal state and returns the error that ended
// it, or nil on success. A task whose context is already done is skipped
// without starting.
func (t *Task) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		t.Skip(provisioning.CancelReason(cause), "not started: "+cause.Error())
		return cause
	}

	if _, ok := t.update(func(s *provisioning.Snapshot) bool {
		if err := ValidateTransition(s.Status, provisioning.StatusRunning); err != nil {
			return false
		}
		now := t.deps.Clock.Now()
		s.Status = provisioning.StatusRunning
		s.StartedAt = &now
		s.Progress = progressStarted
		s.Messages = append(s.Messages, "starting")
		return true
	}); !ok {
		return fmt.Errorf("%s: task already ran", t.cfg.ID)
	}
	provisioning.LogTaskStarted(t.deps.Observer, t.runID, t.cfg.ID)

	err := t.execute(ctx)
	if err != nil && !provisioning.IsCancelled(err) && ctx.Err() != nil {
		err = fmt.Errorf("%w (driver error: %v)", context.Cause(ctx), err)
	}
	t.finish(err)
	return err
}

func (t *Task) execute(ctx context.Context) (err error) {
	creds, err := t.deps.Credentials.Credentials(ctx, t.cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch credentials: %w", err)
	}

	if err := t.checkpoint(ctx, "opening session", progressSession); err != nil {
		return err
	}
	drv, err := t.deps.Open(ctx, t.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := drv.Close(); cerr != nil {
			t.warn(fmt.Sprintf("failed to close session: %v", cerr))
		}
	}()

	if err := t.checkpoint(ctx, "logging in", progressSession); err != nil {
		return err
	}
	if err := t.retry(ctx, "login", func(ctx context.Context) error {
		return drv.Login(ctx, creds)
	}); err != nil {
		return err
	}

	if err := t.checkpoint(ctx, "checking for challenge", progressLoggedIn); err != nil {
		return err
	}
	kind, present, err := drv.ChallengePresent(ctx)
	if err != nil {
		return fmt.Errorf("failed to detect challenge: %w", err)
	}
	if present {
		if err := t.await(ctx, drv, kind); err != nil {
			return err
		}
	}

	pw := creds.NewUserPassword
	if pw == "" {
		if pw, err = t.deps.Password(t.cfg.Rules()); err != nil {
			return fmt.Errorf("failed to generate password: %w", err)
		}
	}

	identityKind := provisioning.IdentityKind(t.cfg.Identity)
	identity := t.user.Identity(identityKind)
	if identity == "" {
		return &provisioning.ValidationError{Field: string(identityKind), Message: "user profile has no value"}
	}

	identity, err = t.submit(ctx, drv, portal.SubmitRequest{
		Profile:      t.user,
		IdentityKind: identityKind,
		Identity:     identity,
		Password:     pw,
	})
	if err != nil {
		return err
	}

	if err := t.checkpoint(ctx, "verifying account", progressVerifying); err != nil {
		return err
	}
	return t.retry(ctx, "verify", func(ctx context.Context) error {
		ok, err := drv.VerifyCreated(ctx, identity)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", identity, provisioning.ErrVerificationFailed)
		}
		return nil
	})
}

// submit creates the account, settling duplicates before any challenge. It
// returns the identity value that was accepted.
func (t *Task) submit(ctx context.Context, drv portal.Driver, req portal.SubmitRequest) (string, error) {
	checker, canCheck := drv.(portal.DuplicateChecker)

	for {
		t.setIdentity(req.Identity)
		if err := t.checkpoint(ctx, "submitting "+req.Identity, progressLoggedIn); err != nil {
			return "", err
		}

		if canCheck {
			var dup bool
			err := t.retry(ctx, "duplicate check", func(ctx context.Context) error {
				var err error
				dup, err = checker.CheckDuplicate(ctx, req.Identity)
				return err
			})
			if err != nil {
				return "", err
			}
			if dup {
				next, err := t.resolveConflict(ctx, req.IdentityKind.ConflictKind(), req.Identity)
				if err != nil {
					return "", err
				}
				req.Identity = next
				continue
			}
		}

		res, err := drv.Submit(ctx, req)
		if err != nil {
			return "", fmt.Errorf("submit failed: %w", err)
		}

		switch res.Outcome {
		case portal.OutcomeDuplicate:
			kind := res.Duplicate
			if kind == "" {
				kind = req.IdentityKind.ConflictKind()
			}
			next, err := t.resolveConflict(ctx, kind, req.Identity)
			if err != nil {
				return "", err
			}
			req.Identity = next
			continue

		case portal.OutcomeCreated:
			t.progress(progressSubmitted, "submitted "+req.Identity)
			if res.Challenge != "" {
				if err := t.await(ctx, drv, res.Challenge); err != nil {
					return "", err
				}
			}
			return req.Identity, nil

		default:
			return "", fmt.Errorf("driver returned unknown outcome %q", res.Outcome)
		}
	}
}

func (t *Task) resolveConflict(ctx context.Context, kind provisioning.ConflictKind, value string) (string, error) {
	p, err := t.deps.Broker.Open(t.cfg.ID, kind, value, t.deps.ConflictTimeout)
	if err != nil {
		return "", err
	}

	t.awaitInput(provisioning.PendingRequest{
		ID:            p.ID,
		Kind:          provisioning.PendingConflict,
		Conflict:      kind,
		ProposedValue: value,
		Deadline:      p.Deadline,
	}, fmt.Sprintf("%s already exists on vendor: %s", attribute(kind), value))
	t.deps.Observer.Event(provisioning.Event{
		Type:    provisioning.EventConflictOpened,
		RunID:   t.runID,
		Vendor:  t.cfg.ID,
		Message: "waiting for duplicate resolution",
		Fields:  map[string]string{"request": p.ID, "kind": string(kind)},
	})

	res := p.Wait(ctx)
	t.deps.Observer.Event(provisioning.Event{
		Type:    provisioning.EventConflictResolved,
		RunID:   t.runID,
		Vendor:  t.cfg.ID,
		Message: "duplicate resolution recorded",
		Fields:  map[string]string{"request": p.ID, "action": string(res.Action)},
	})

	switch res.Action {
	case conflict.ActionRetryWith:
		t.resume(fmt.Sprintf("retrying with %s", res.Value))
		t.warn(fmt.Sprintf("alternate %s used: %s", attribute(kind), res.Value))
		return res.Value, nil
	case conflict.ActionSkip:
		return "", &skipError{
			reason: provisioning.ReasonDuplicateSkipped,
			msg:    fmt.Sprintf("skipped: %s %s already exists", attribute(kind), value),
		}
	case conflict.ActionTimedOut:
		return "", &provisioning.ConflictTimeoutError{Kind: kind, Value: value, Timeout: t.deps.ConflictTimeout}
	default:
		return "", cancelCause(res.Cause)
	}
}

func (t *Task) await(ctx context.Context, drv portal.Driver, kind provisioning.ChallengeKind) error {
	cond := waitgate.Condition{
		Kind:              kind,
		Timeout:           t.deps.Challenge.Timeout,
		PollInterval:      t.deps.Challenge.PollInterval,
		HeartbeatInterval: t.deps.Challenge.HeartbeatInterval,
		Detector:          drv.ChallengeResolved,
	}.Normalized()
	cond.Heartbeat = func(elapsed, remaining time.Duration) {
		t.message(fmt.Sprintf("waiting for %s challenge (%s elapsed, %s remaining)",
			kind, elapsed.Round(time.Second), remaining.Round(time.Second)))
		provisioning.LogHeartbeat(t.deps.Observer, t.runID, t.cfg.ID, kind, elapsed, remaining)
	}

	deadline := t.deps.Clock.Now().Add(cond.Timeout)
	t.awaitInput(provisioning.PendingRequest{
		ID:        uuid.NewString(),
		Kind:      provisioning.PendingWait,
		Challenge: kind,
		Deadline:  &deadline,
	}, fmt.Sprintf("complete the %s challenge within %s", kind, cond.Timeout))
	t.deps.Observer.Event(provisioning.Event{
		Type:    provisioning.EventWaitOpened,
		RunID:   t.runID,
		Vendor:  t.cfg.ID,
		Message: fmt.Sprintf("waiting for %s challenge", kind),
		Fields:  map[string]string{"challenge": string(kind), "timeout": cond.Timeout.String()},
	})

	res, err := t.deps.Gate.Open(ctx, cond)
	if err != nil {
		return err
	}
	t.deps.Observer.Event(provisioning.Event{
		Type:    provisioning.EventWaitClosed,
		RunID:   t.runID,
		Vendor:  t.cfg.ID,
		Message: fmt.Sprintf("%s wait %s", kind, res.Outcome),
		Fields:  map[string]string{"challenge": string(kind), "elapsed": res.Elapsed.String(), "outcome": string(res.Outcome)},
	})

	switch res.Outcome {
	case waitgate.Satisfied:
		t.resume(fmt.Sprintf("%s challenge completed after %s", kind, res.Elapsed.Round(time.Second)))
		return nil
	case waitgate.TimedOut:
		return &provisioning.ChallengeTimeoutError{Kind: kind, Timeout: cond.Timeout}
	default:
		return cancelCause(res.Cause)
	}
}

func (t *Task) retry(ctx context.Context, step string, op func(context.Context) error) error {
	return retry.Do(ctx, op,
		retry.WithPolicy(t.deps.Retry),
		retry.WithClock(t.deps.Clock),
		retry.WithRetryIf(provisioning.IsTransient),
		retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			t.warn(fmt.Sprintf("%s attempt %d failed, retrying in %s: %v", step, attempt, delay, err))
			provisioning.LogRetry(t.deps.Observer, t.runID, t.cfg.ID, step, attempt, delay, err)
		}),
	)
}

// checkpoint observes cancellation between steps and records progress.
func (t *Task) checkpoint(ctx context.Context, step string, progress int) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	t.update(func(s *provisioning.Snapshot) bool {
		s.Step = step
		if progress > s.Progress {
			s.Progress = progress
		}
		return true
	})
	t.deps.Observer.Event(provisioning.Event{
		Type:    provisioning.EventTaskStep,
		RunID:   t.runID,
		Vendor:  t.cfg.ID,
		Message: step,
	})
	return nil
}

func (t *Task) finish(err error) {
	var skip *skipError
	snap, _ := t.update(func(s *provisioning.Snapshot) bool {
		switch {
		case err == nil:
			s.Status = provisioning.StatusSucceeded
			s.Progress = progressDone
			s.Messages = append(s.Messages, "account created: "+s.Identity)
		case errors.As(err, &skip):
			s.Status = provisioning.StatusSkipped
			s.Reason = skip.reason
			s.Messages = append(s.Messages, skip.msg)
		case provisioning.IsCancelled(err):
			s.Status = provisioning.StatusSkipped
			s.Reason = provisioning.CancelReason(err)
			s.Messages = append(s.Messages, "stopped: "+err.Error())
		default:
			s.Status = provisioning.StatusFailed
			s.ErrorKind = provisioning.KindOf(err)
			s.Errors = append(s.Errors, err.Error())
		}
		now := t.deps.Clock.Now()
		s.EndedAt = &now
		s.Pending = nil
		s.Step = ""
		return true
	})
	provisioning.LogTaskFinished(t.deps.Observer, snap)
}

func (t *Task) awaitInput(req provisioning.PendingRequest, msg string) {
	t.update(func(s *provisioning.Snapshot) bool {
		if s.Status != provisioning.StatusRunning {
			return false
		}
		s.Status = provisioning.StatusAwaitingInput
		s.Pending = &req
		s.Messages = append(s.Messages, msg)
		return true
	})
}

func (t *Task) resume(msg string) {
	t.update(func(s *provisioning.Snapshot) bool {
		if s.Status != provisioning.StatusAwaitingInput {
			return false
		}
		s.Status = provisioning.StatusRunning
		s.Pending = nil
		s.Messages = append(s.Messages, msg)
		return true
	})
}

func (t *Task) setIdentity(identity string) {
	t.update(func(s *provisioning.Snapshot) bool {
		if s.Identity == identity {
			return false
		}
		s.Identity = identity
		return true
	})
}

func (t *Task) progress(p int, msg string) {
	t.update(func(s *provisioning.Snapshot) bool {
		if p > s.Progress {
			s.Progress = p
		}
		s.Messages = append(s.Messages, msg)
		return true
	})
}

func (t *Task) message(msg string) {
	t.update(func(s *provisioning.Snapshot) bool {
		s.Messages = append(s.Messages, msg)
		return true
	})
}

func (t *Task) warn(msg string) {
	t.update(func(s *provisioning.Snapshot) bool {
		s.Warnings = append(s.Warnings, msg)
		return true
	})
}

// update applies fn under the lock and publishes the result when fn reports a
// change. Terminal snapshots never change again.
func (t *Task) update(fn func(*provisioning.Snapshot) bool) (provisioning.Snapshot, bool) {
	t.mu.Lock()
	if t.snap.Status.IsTerminal() {
		snap := copySnapshot(t.snap)
		t.mu.Unlock()
		return snap, false
	}
	prev := copySnapshot(t.snap)
	if !fn(&t.snap) || (prev.Status != t.snap.Status && ValidateTransition(prev.Status, t.snap.Status) != nil) {
		t.snap = prev
		t.mu.Unlock()
		return prev, false
	}
	t.snap.Seq++
	snap := copySnapshot(t.snap)
	t.mu.Unlock()

	if t.deps.OnChange != nil {
		t.deps.OnChange(snap)
	}
	return snap, true
}

func copySnapshot(s provisioning.Snapshot) provisioning.Snapshot {
	s.Messages = append([]string{}, s.Messages...)
	s.Warnings = append([]string{}, s.Warnings...)
	s.Errors = append([]string{}, s.Errors...)
	if s.StartedAt != nil {
		v := *s.StartedAt
		s.StartedAt = &v
	}
	if s.EndedAt != nil {
		v := *s.EndedAt
		s.EndedAt = &v
	}
	if s.Pending != nil {
		p := *s.Pending
		if p.Deadline != nil {
			d := *p.Deadline
			p.Deadline = &d
		}
		s.Pending = &p
	}
	return s
}

func attribute(kind provisioning.ConflictKind) string {
	if kind == provisioning.ConflictDuplicateUsername {
		return "username"
	}
	return "email"
}

func cancelCause(cause error) error {
	if cause == nil {
		return provisioning.ErrCancelled
	}
	return cause
}
