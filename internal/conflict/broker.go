package conflict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/imamik/nexus/internal/provisioning"
)

var (
	// ErrUnknownRequest is returned when resolving an id the broker never issued.
	ErrUnknownRequest = errors.New("unknown conflict request")
	// ErrAlreadyOpen is returned when a vendor already has an open request.
	ErrAlreadyOpen = errors.New("conflict request already open for vendor")
)

// Action is the kind of resolution recorded for a request.
type Action string

const (
	ActionRetryWith Action = "retry_with"
	ActionSkip      Action = "skip"
	ActionTimedOut  Action = "timed_out"
	ActionCancelled Action = "cancelled"
)

// Decision is what the operator chose.
type Decision struct {
	Action Action
	Value  string
}

// RetryWith resubmits with an alternate identity value.
func RetryWith(value string) Decision {
	return Decision{Action: ActionRetryWith, Value: value}
}

// Skip abandons the vendor.
func Skip() Decision {
	return Decision{Action: ActionSkip}
}

// Validate checks that an operator decision can be applied to req.
func (d Decision) Validate(req Request) error {
	switch d.Action {
	case ActionSkip:
		return nil
	case ActionRetryWith:
		if d.Value == "" {
			return fmt.Errorf("retry requires an alternate value")
		}
		if d.Value == req.ProposedValue {
			return fmt.Errorf("alternate value must differ from %q", req.ProposedValue)
		}
		return nil
	default:
		return fmt.Errorf("unsupported decision %q", d.Action)
	}
}

// Resolution is the effective outcome of a request.
type Resolution struct {
	Decision
	// Cause is the context cause for ActionCancelled.
	Cause      error
	ResolvedAt time.Time
}

// Request is an open question about a duplicate identity.
type Request struct {
	ID            string                    `json:"id"`
	Vendor        string                    `json:"vendor"`
	Kind          provisioning.ConflictKind `json:"kind"`
	ProposedValue string                    `json:"proposed_value"`
	CreatedAt     time.Time                 `json:"created_at"`
	// Deadline is nil when the request has no timeout.
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Publisher is notified of each opened request. It must not block.
type Publisher func(Request)

// Broker tracks open requests and routes decisions to them.
type Broker struct {
	clock   clock.Clock
	publish Publisher
	newID   func() string

	mu       sync.Mutex
	pending  map[string]*Pending
	byVendor map[string]string
	resolved map[string]struct{}
}

// Option configures a Broker.
type Option func(*Broker)

// WithClock sets the clock used for request timeouts.
func WithClock(clk clock.Clock) Option {
	return func(b *Broker) {
		b.clock = clk
	}
}

// WithPublisher registers the decision surface notified of new requests.
func WithPublisher(p Publisher) Option {
	return func(b *Broker) {
		b.publish = p
	}
}

// NewBroker creates an empty broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		clock:    clock.RealClock{},
		newID:    uuid.NewString,
		pending:  make(map[string]*Pending),
		byVendor: make(map[string]string),
		resolved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Pending is the handle a task blocks on.
type Pending struct {
	Request

	broker *Broker
	timer  clock.Timer
	once   sync.Once
	done   chan struct{}
	res    Resolution
}

// resolve writes the slot. Only the first call has any effect.
func (p *Pending) resolve(r Resolution) bool {
	won := false
	p.once.Do(func() {
		p.res = r
		won = true
		close(p.done)
	})
	return won
}

// Open registers a request for vendor. A zero timeout means no cap.
func (b *Broker) Open(vendor string, kind provisioning.ConflictKind, proposed string, timeout time.Duration) (*Pending, error) {
	b.mu.Lock()
	if id, ok := b.byVendor[vendor]; ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (%s)", ErrAlreadyOpen, vendor, id)
	}

	now := b.clock.Now()
	p := &Pending{
		Request: Request{
			ID:            b.newID(),
			Vendor:        vendor,
			Kind:          kind,
			ProposedValue: proposed,
			CreatedAt:     now,
		},
		broker: b,
		done:   make(chan struct{}),
	}
	if timeout > 0 {
		deadline := now.Add(timeout)
		p.Deadline = &deadline
		p.timer = b.clock.NewTimer(timeout)
	}
	b.pending[p.ID] = p
	b.byVendor[vendor] = p.ID
	b.mu.Unlock()

	if b.publish != nil {
		b.publish(p.Request)
	}
	return p, nil
}

// Wait blocks until the request is resolved, times out or ctx is done, and
// returns the first resolution recorded.
func (p *Pending) Wait(ctx context.Context) Resolution {
	defer p.broker.close(p)

	var expired <-chan time.Time
	if p.timer != nil {
		defer p.timer.Stop()
		expired = p.timer.C()
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		p.resolve(Resolution{
			Decision:   Decision{Action: ActionCancelled},
			Cause:      context.Cause(ctx),
			ResolvedAt: p.broker.clock.Now(),
		})
	case <-expired:
		p.resolve(Resolution{
			Decision:   Decision{Action: ActionTimedOut},
			ResolvedAt: p.broker.clock.Now(),
		})
	}
	<-p.done
	return p.res
}

// Request opens a request and waits for it.
func (b *Broker) Request(ctx context.Context, vendor string, kind provisioning.ConflictKind, proposed string, timeout time.Duration) (Resolution, error) {
	p, err := b.Open(vendor, kind, proposed, timeout)
	if err != nil {
		return Resolution{}, err
	}
	return p.Wait(ctx), nil
}

// Resolve records an operator decision. It reports whether this call was the
// effective resolution; resolving an already-resolved request is a no-op.
func (b *Broker) Resolve(id string, d Decision) (bool, error) {
	b.mu.Lock()
	p, ok := b.pending[id]
	_, done := b.resolved[id]
	b.mu.Unlock()

	if !ok {
		if done {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	if err := d.Validate(p.Request); err != nil {
		return false, err
	}
	return p.resolve(Resolution{Decision: d, ResolvedAt: b.clock.Now()}), nil
}

// Pending returns the open requests ordered by creation time.
func (b *Broker) Pending() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Request, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.Request)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CancelAll resolves every open request as cancelled with cause.
func (b *Broker) CancelAll(cause error) {
	b.mu.Lock()
	open := make([]*Pending, 0, len(b.pending))
	for _, p := range b.pending {
		open = append(open, p)
	}
	b.mu.Unlock()

	now := b.clock.Now()
	for _, p := range open {
		p.resolve(Resolution{Decision: Decision{Action: ActionCancelled}, Cause: cause, ResolvedAt: now})
	}
}

func (b *Broker) close(p *Pending) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, p.ID)
	if b.byVendor[p.Vendor] == p.ID {
		delete(b.byVendor, p.Vendor)
	}
	b.resolved[p.ID] = struct{}{}
}
