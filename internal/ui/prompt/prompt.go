// Package prompt settles duplicate identity conflicts on a plain terminal
// when the dashboard is not in use.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/imamik/nexus/internal/conflict"
)

// Choices offered for a conflict.
const (
	ChoiceRetry = "retry"
	ChoiceSkip  = "skip"
)

// AskFunc asks the operator about one conflict.
type AskFunc func(ctx context.Context, req conflict.Request) (conflict.Decision, error)

// ResolveFunc delivers a decision, typically run.Coordinator.ResolveConflict.
type ResolveFunc func(id string, d conflict.Decision) (bool, error)

// Answer holds the raw form values.
type Answer struct {
	Choice string
	Value  string
}

// Decision converts the form values into a broker decision.
func (a Answer) Decision() conflict.Decision {
	if a.Choice == ChoiceSkip {
		return conflict.Skip()
	}
	return conflict.RetryWith(strings.TrimSpace(a.Value))
}

// ValidateAlternate rejects alternates the broker would refuse for req.
func ValidateAlternate(req conflict.Request) func(string) error {
	return func(s string) error {
		return conflict.RetryWith(strings.TrimSpace(s)).Validate(req)
	}
}

// Ask shows the conflict form on the terminal.
func Ask(ctx context.Context, req conflict.Request) (conflict.Decision, error) {
	answer := Answer{Choice: ChoiceRetry}

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("%s: %s already exists", req.Vendor, req.ProposedValue)).
				Description(describe(req)).
				Options(
					huh.NewOption("Retry with an alternate value", ChoiceRetry),
					huh.NewOption("Skip this vendor", ChoiceSkip),
				).
				Value(&answer.Choice),
		).Title("Duplicate Identity"),
		huh.NewGroup(
			huh.NewInput().
				Title("Alternate value").
				Placeholder(req.ProposedValue).
				Value(&answer.Value).
				Validate(ValidateAlternate(req)),
		).WithHideFunc(func() bool { return answer.Choice != ChoiceRetry }),
	).RunWithContext(ctx)
	if err != nil {
		return conflict.Decision{}, err
	}

	return answer.Decision(), nil
}

func describe(req conflict.Request) string {
	desc := fmt.Sprintf("The vendor reported a %s.", strings.ReplaceAll(string(req.Kind), "_", " "))
	if req.Deadline != nil {
		desc += fmt.Sprintf(" The vendor is skipped if nothing is chosen by %s.", req.Deadline.Format("15:04:05"))
	}
	return desc
}

// settleCheckInterval is how often an open prompt checks whether its request
// was settled elsewhere.
const settleCheckInterval = 500 * time.Millisecond

// Resolver turns published conflict requests into operator prompts, one at
// a time.
type Resolver struct {
	ask     AskFunc
	resolve ResolveFunc
	isOpen  func(id string) bool
	clock   clock.WithTicker
	log     logr.Logger
	queue   chan conflict.Request
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOpenCheck closes a prompt once isOpen reports its request is no longer
// pending, e.g. after a timeout or a run cancellation.
func WithOpenCheck(isOpen func(id string) bool) Option {
	return func(r *Resolver) {
		r.isOpen = isOpen
	}
}

// WithClock sets the clock driving the open check.
func WithClock(clk clock.WithTicker) Option {
	return func(r *Resolver) {
		r.clock = clk
	}
}

// NewResolver creates a Resolver using ask for prompts and resolve for
// decisions. A nil ask uses the terminal form.
func NewResolver(ask AskFunc, resolve ResolveFunc, log logr.Logger, opts ...Option) *Resolver {
	if ask == nil {
		ask = Ask
	}
	r := &Resolver{
		ask:     ask,
		resolve: resolve,
		clock:   clock.RealClock{},
		log:     log,
		queue:   make(chan conflict.Request, 16),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish queues req. It never blocks; a request that does not fit is left
// to its timeout.
func (r *Resolver) Publish(req conflict.Request) {
	select {
	case r.queue <- req:
	default:
		r.log.Info("conflict prompt queue full, leaving request to its timeout", "vendor", req.Vendor, "request", req.ID)
	}
}

// Run prompts for queued requests until ctx is done.
func (r *Resolver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.queue:
			r.handle(ctx, req)
		}
	}
}

func (r *Resolver) handle(ctx context.Context, req conflict.Request) {
	reqCtx, settled := context.WithCancel(ctx)
	defer settled()
	if r.isOpen != nil {
		ticker := r.clock.NewTicker(settleCheckInterval)
		go r.watch(reqCtx, ticker, settled, req.ID)
	}

	d, err := r.ask(reqCtx, req)
	switch {
	case ctx.Err() != nil:
		return
	case reqCtx.Err() != nil:
		r.log.Info("conflict settled before the prompt was answered", "vendor", req.Vendor)
		return
	case errors.Is(err, huh.ErrUserAborted):
		d = conflict.Skip()
	case err != nil:
		r.log.Error(err, "conflict prompt failed", "vendor", req.Vendor)
		return
	}

	ok, err := r.resolve(req.ID, d)
	switch {
	case err != nil:
		r.log.Error(err, "conflict decision rejected", "vendor", req.Vendor)
	case !ok:
		r.log.Info("conflict was already settled", "vendor", req.Vendor)
	}
}

// watch cancels the prompt for id once the request leaves the pending set.
func (r *Resolver) watch(ctx context.Context, ticker clock.Ticker, settled context.CancelFunc, id string) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !r.isOpen(id) {
				settled()
				return
			}
		}
	}
}
