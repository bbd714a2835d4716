package waitgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/imamik/nexus/internal/provisioning"
)

const (
	// MinTimeout is the shortest deadline a wait is allowed to have.
	MinTimeout = 2 * time.Minute
	// MinHeartbeatInterval bounds heartbeat frequency.
	MinHeartbeatInterval = 30 * time.Second
	// DefaultPollInterval is used when a condition sets none.
	DefaultPollInterval = 5 * time.Second
)

// Outcome is how a wait ended.
type Outcome string

const (
	Satisfied Outcome = "satisfied"
	TimedOut  Outcome = "timed_out"
	Cancelled Outcome = "cancelled"
)

// Detector reports whether the awaited condition holds. Errors are treated as
// "not yet" and the gate keeps polling.
type Detector func(ctx context.Context) (bool, error)

// HeartbeatFunc receives liveness updates while a wait is open.
type HeartbeatFunc func(elapsed, remaining time.Duration)

// Condition describes one wait.
type Condition struct {
	Kind              provisioning.ChallengeKind
	Timeout           time.Duration
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	Detector          Detector
	Heartbeat         HeartbeatFunc
}

// Result describes a finished wait.
type Result struct {
	Outcome  Outcome
	Elapsed  time.Duration
	Deadline time.Time
	Polls    int
	// Cause is the context cause when Outcome is Cancelled.
	Cause error
	// LastErr is the most recent detector error, if any.
	LastErr error
}

// Gate opens waits against a clock.
type Gate struct {
	clock clock.WithTicker
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the clock used for deadlines and tickers.
func WithClock(clk clock.WithTicker) Option {
	return func(g *Gate) {
		g.clock = clk
	}
}

// New creates a Gate on the real clock unless overridden.
func New(opts ...Option) *Gate {
	g := &Gate{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Normalized applies defaults and minimums to c.
func (c Condition) Normalized() Condition {
	if c.Timeout < MinTimeout {
		c.Timeout = MinTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HeartbeatInterval < MinHeartbeatInterval {
		c.HeartbeatInterval = MinHeartbeatInterval
	}
	return c
}

// Open blocks until the detector reports true, the deadline passes or ctx is
// done. It never returns later than the deadline, even if a detector call
// hangs; such a call sees its context cancelled when the gate returns. The
// returned error is only set for an unusable condition.
func (g *Gate) Open(ctx context.Context, cond Condition) (Result, error) {
	if cond.Detector == nil {
		return Result{}, fmt.Errorf("wait condition %q has no detector", cond.Kind)
	}
	cond = cond.Normalized()

	start := g.clock.Now()
	deadline := start.Add(cond.Timeout)
	res := Result{Deadline: deadline}

	deadlineTimer := g.clock.NewTimer(cond.Timeout)
	defer deadlineTimer.Stop()
	poll := g.clock.NewTicker(cond.PollInterval)
	defer poll.Stop()
	heartbeat := g.clock.NewTicker(cond.HeartbeatInterval)
	defer heartbeat.Stop()

	// At most one detector call is in flight. Ticks that arrive meanwhile
	// collapse into one follow-up check.
	checkCtx, stopChecks := context.WithCancel(ctx)
	defer stopChecks()

	var (
		inflight  chan checkResult
		checkedAt time.Time
		queued    *time.Time
	)
	startCheck := func(at time.Time) {
		res.Polls++
		checkedAt = at
		ch := make(chan checkResult, 1)
		go func() {
			ok, err := cond.Detector(checkCtx)
			ch <- checkResult{ok: ok, err: err}
		}()
		inflight = ch
	}

	cancelled := func() (Result, error) {
		res.Outcome = Cancelled
		res.Elapsed = g.clock.Since(start)
		res.Cause = context.Cause(ctx)
		return res, nil
	}

	timedOut := func() (Result, error) {
		res.Outcome = TimedOut
		res.Elapsed = cond.Timeout
		return res, nil
	}

	if ctx.Err() != nil {
		return cancelled()
	}
	startCheck(start)

	for {
		select {
		case <-ctx.Done():
			return cancelled()

		case <-deadlineTimer.C():
			return timedOut()

		case r := <-inflight:
			inflight = nil
			if r.err != nil {
				res.LastErr = r.err
				if ctx.Err() != nil || isCancellation(r.err) {
					return cancelled()
				}
			} else if r.ok {
				res.Outcome = Satisfied
				res.Elapsed = checkedAt.Sub(start)
				return res, nil
			}
			if queued != nil {
				at := *queued
				queued = nil
				startCheck(at)
			}

		case at := <-poll.C():
			if !at.Before(deadline) {
				return timedOut()
			}
			if inflight != nil {
				queued = &at
				continue
			}
			startCheck(at)

		case at := <-heartbeat.C():
			if cond.Heartbeat != nil && at.Before(deadline) {
				cond.Heartbeat(at.Sub(start), deadline.Sub(at))
			}
		}
	}
}

type checkResult struct {
	ok  bool
	err error
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || provisioning.IsCancelled(err)
}
