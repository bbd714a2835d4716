package run

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"

	"github.com/imamik/nexus/internal/config"
	"github.com/imamik/nexus/internal/conflict"
	"github.com/imamik/nexus/internal/portal"
	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/provisioning/report"
	"github.com/imamik/nexus/internal/provisioning/task"
	"github.com/imamik/nexus/internal/util/password"
	"github.com/imamik/nexus/internal/waitgate"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("run already started")
	// ErrNotRunning is returned by controls used before Start or after the run ended.
	ErrNotRunning = errors.New("run is not in progress")
	// ErrNoVendors is returned for a request without vendors.
	ErrNoVendors = errors.New("run request has no vendors")
)

// State is the lifecycle of a Coordinator.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateCancelling State = "cancelling"
	StateCompleted  State = "completed"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used by waits, retries, prompts and the watchdog.
func WithClock(clk clock.WithTicker) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// WithObserver sets the event sink. Defaults to a LogObserver over the
// logger found in the Start context.
func WithObserver(o provisioning.Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// WithConflictPublisher registers the decision surface for duplicate prompts.
func WithConflictPublisher(p conflict.Publisher) Option {
	return func(c *Coordinator) {
		c.publish = p
	}
}

// WithPasswordGenerator replaces password.Generate.
func WithPasswordGenerator(fn func(password.Rules) (string, error)) Option {
	return func(c *Coordinator) {
		c.password = fn
	}
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(c *Coordinator) {
		c.runID = id
	}
}

// Coordinator executes one provisioning run.
type Coordinator struct {
	cfg      *config.Config
	open     portal.Factory
	creds    portal.CredentialProvider
	clock    clock.WithTicker
	observer provisioning.Observer
	publish  conflict.Publisher
	password func(password.Rules) (string, error)
	runID    string

	broker  *conflict.Broker
	gate    *waitgate.Gate
	session *semaphore.Weighted
	done    chan struct{}

	mu     sync.Mutex
	state  State
	paused bool
	resume chan struct{}
	cancel context.CancelCauseFunc
	user   provisioning.UserProfile
	tasks  []*task.Task
	out    *stream
	report report.RunReport
}

// New creates a coordinator for a single run.
func New(cfg *config.Config, open portal.Factory, creds portal.CredentialProvider, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:     cfg,
		open:    open,
		creds:   creds,
		clock:   clock.RealClock{},
		session: semaphore.NewWeighted(1),
		done:    make(chan struct{}),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	brokerOpts := []conflict.Option{conflict.WithClock(c.clock)}
	if c.publish != nil {
		brokerOpts = append(brokerOpts, conflict.WithPublisher(c.publish))
	}
	c.broker = conflict.NewBroker(brokerOpts...)
	c.gate = waitgate.New(waitgate.WithClock(c.clock))
	return c
}

// RunID returns the id of the run.
func (c *Coordinator) RunID() string { return c.runID }

// Start creates one task per vendor and executes them in order on a
// background goroutine. The returned channel carries every snapshot, starting
// with one PENDING snapshot per vendor, and is closed after the last task is
// terminal. Callers must drain it.
func (c *Coordinator) Start(ctx context.Context, req provisioning.RunRequest) (<-chan provisioning.Snapshot, error) {
	vendors := req.Vendors()
	if len(vendors) == 0 {
		return nil, ErrNoVendors
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	if c.observer == nil {
		c.observer = provisioning.NewLogObserver(logr.FromContextOrDiscard(ctx))
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	c.cancel = cancel
	c.user = req.User()
	c.out = newStream()
	for _, v := range vendors {
		c.tasks = append(c.tasks, task.New(c.runID, c.user, v, c.taskDeps(v)))
	}
	c.state = StateRunning
	c.mu.Unlock()

	for _, t := range c.tasks {
		c.out.push(t.Snapshot())
	}
	c.observer.Event(provisioning.Event{
		Type:    provisioning.EventRunStarted,
		RunID:   c.runID,
		Message: fmt.Sprintf("provisioning %d vendors", len(vendors)),
		Fields:  map[string]string{"vendors": strconv.Itoa(len(vendors))},
	})

	if d := c.cfg.Run.Timeout; d > 0 {
		go c.watchdog(runCtx, d)
	}
	go c.loop(runCtx)
	return c.out.out, nil
}

func (c *Coordinator) taskDeps(v config.VendorConfig) task.Deps {
	return task.Deps{
		Open:            c.open,
		Credentials:     c.creds,
		Broker:          c.broker,
		Gate:            c.gate,
		Clock:           c.clock,
		Observer:        c.observer,
		Retry:           c.cfg.Retry.Policy(),
		Challenge:       c.cfg.ChallengeFor(v),
		ConflictTimeout: c.cfg.Run.ConflictTimeout,
		Password:        c.password,
		OnChange:        c.out.push,
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	var abortedBy string
	for _, t := range c.tasks {
		if abortedBy != "" {
			t.Skip(provisioning.ReasonAdminAuthAborted, "not started: admin authentication failed on "+abortedBy)
			continue
		}
		if err := c.admit(ctx); err != nil {
			t.Skip(provisioning.CancelReason(err), "not started: "+err.Error())
			continue
		}

		err := t.Run(ctx)
		c.session.Release(1)

		if provisioning.IsAdminAuth(err) {
			abortedBy = t.VendorID()
		}
	}
	c.finish(ctx)
}

// admit blocks while the run is paused and then takes the session slot.
func (c *Coordinator) admit(ctx context.Context) error {
	for {
		c.mu.Lock()
		paused, resume := c.paused, c.resume
		c.mu.Unlock()
		if !paused {
			break
		}
		select {
		case <-resume:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if err := c.session.Acquire(ctx, 1); err != nil {
		return context.Cause(ctx)
	}
	return nil
}

func (c *Coordinator) finish(ctx context.Context) {
	snaps := make([]provisioning.Snapshot, len(c.tasks))
	for i, t := range c.tasks {
		snaps[i] = t.Snapshot()
	}
	rep := report.Summarize(c.runID, c.user, snaps)

	msg, result := "run completed", "completed"
	if cause := context.Cause(ctx); cause != nil && cutShort(snaps) {
		msg, result = "run stopped: "+cause.Error(), "stopped"
	}

	c.mu.Lock()
	c.report = rep
	c.state = StateCompleted
	c.mu.Unlock()
	c.cancel(nil)

	c.observer.Event(provisioning.Event{
		Type:    provisioning.EventRunCompleted,
		RunID:   c.runID,
		Message: msg,
		Fields: map[string]string{
			"succeeded": strconv.Itoa(rep.Succeeded),
			"failed":    strconv.Itoa(rep.Failed),
			"skipped":   strconv.Itoa(rep.Skipped),
			"result":    result,
		},
	})

	close(c.done)
	c.out.close()
}

// cutShort reports whether a stop actually ended some task early. A cancel
// that lands after the last task is terminal leaves the run completed.
func cutShort(snaps []provisioning.Snapshot) bool {
	for _, s := range snaps {
		if !s.Status.IsTerminal() {
			return true
		}
		if s.Status == provisioning.StatusSkipped &&
			(s.Reason == provisioning.ReasonCancelled || s.Reason == provisioning.ReasonRunTimeout) {
			return true
		}
	}
	return false
}

func (c *Coordinator) watchdog(ctx context.Context, d time.Duration) {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C():
		_ = c.stop(fmt.Errorf("%w after %s", provisioning.ErrRunTimeout, d))
	case <-ctx.Done():
	}
}

// Pause stops the run before the next PENDING task. The in-flight task runs
// on until it is terminal. Pausing a paused run is a no-op.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	switch c.state {
	case StatePaused:
		c.mu.Unlock()
		return nil
	case StateRunning:
	default:
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.state = StatePaused
	c.paused = true
	c.resume = make(chan struct{})
	c.mu.Unlock()

	c.observer.Event(provisioning.Event{
		Type:    provisioning.EventRunPaused,
		RunID:   c.runID,
		Message: "run paused before next vendor",
	})
	return nil
}

// Resume continues a paused run. Resuming a running run is a no-op.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	switch c.state {
	case StateRunning:
		c.mu.Unlock()
		return nil
	case StatePaused:
	default:
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.state = StateRunning
	c.paused = false
	close(c.resume)
	c.mu.Unlock()

	c.observer.Event(provisioning.Event{
		Type:    provisioning.EventRunResumed,
		RunID:   c.runID,
		Message: "run resumed",
	})
	return nil
}

// Cancel stops the run immediately. The in-flight task ends SKIPPED and no
// further task is started.
func (c *Coordinator) Cancel() error {
	return c.stop(provisioning.ErrCancelled)
}

func (c *Coordinator) stop(cause error) error {
	c.mu.Lock()
	if c.state != StateRunning && c.state != StatePaused {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.state = StateCancelling
	cancel := c.cancel
	c.mu.Unlock()

	cancel(cause)
	c.broker.CancelAll(cause)
	c.observer.Event(provisioning.Event{
		Type:    provisioning.EventRunCancelled,
		RunID:   c.runID,
		Message: "run cancelled: " + cause.Error(),
		Fields:  map[string]string{"reason": string(provisioning.CancelReason(cause))},
	})
	return nil
}

// ResolveConflict records an operator decision for an open duplicate prompt.
// It reports whether the decision took effect.
func (c *Coordinator) ResolveConflict(id string, d conflict.Decision) (bool, error) {
	return c.broker.Resolve(id, d)
}

// PendingConflicts returns the open duplicate prompts.
func (c *Coordinator) PendingConflicts() []conflict.Request {
	return c.broker.Pending()
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshots returns the latest snapshot of every task in request order.
func (c *Coordinator) Snapshots() []provisioning.Snapshot {
	c.mu.Lock()
	tasks := c.tasks
	c.mu.Unlock()

	out := make([]provisioning.Snapshot, len(tasks))
	for i, t := range tasks {
		out[i] = t.Snapshot()
	}
	return out
}

// Wait blocks until the run is complete and returns its report.
func (c *Coordinator) Wait(ctx context.Context) (report.RunReport, error) {
	if c.State() == StateIdle {
		return report.RunReport{}, ErrNotRunning
	}
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.report, nil
	case <-ctx.Done():
		return report.RunReport{}, context.Cause(ctx)
	}
}

// Done is closed once the report is available.
func (c *Coordinator) Done() <-chan struct{} { return c.done }
