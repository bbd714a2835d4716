// Package simulated provides a dry-run vendor driver scripted from the
// vendor's simulate block in nexus.yaml. It never touches a real portal.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/imamik/nexus/internal/config"
	"github.com/imamik/nexus/internal/portal"
	"github.com/imamik/nexus/internal/provisioning"
)

// DriverName is the registry name of the simulated driver.
const DriverName = "simulated"

var errPortalTimeout = errors.New("portal did not respond")

// Driver is a portal.Driver that follows a config.SimulateConfig script.
type Driver struct {
	vendorID string
	script   config.SimulateConfig
	clock    clock.Clock

	mu               sync.Mutex
	logins           int
	loggedIn         bool
	submitted        bool
	challenge        provisioning.ChallengeKind
	challengeStarted time.Time
	existing         map[string]bool
	created          map[string]bool
}

// checkingDriver adds the optional duplicate pre-check.
type checkingDriver struct {
	*Driver
}

// New creates a driver for cfg. Vendors without a simulate block get an
// empty script, which creates every account on the first try.
func New(cfg config.VendorConfig, clk clock.Clock) portal.Driver {
	d := &Driver{
		vendorID: cfg.ID,
		clock:    clk,
		existing: make(map[string]bool),
		created:  make(map[string]bool),
	}
	if cfg.Simulate != nil {
		d.script = *cfg.Simulate
	}
	for _, id := range d.script.ExistingIdentities {
		d.existing[strings.ToLower(id)] = true
	}
	if d.script.PreCheck {
		return &checkingDriver{d}
	}
	return d
}

// Factory returns a portal.Factory producing simulated drivers on clk.
func Factory(clk clock.Clock) portal.Factory {
	return func(_ context.Context, cfg config.VendorConfig) (portal.Driver, error) {
		return New(cfg, clk), nil
	}
}

// Register adds the simulated driver to r.
func Register(r *portal.Registry, clk clock.Clock) error {
	return r.Register(DriverName, Factory(clk))
}

func (d *Driver) pause(ctx context.Context) error {
	if d.script.StepDelay <= 0 {
		return ctx.Err()
	}
	t := d.clock.NewTimer(d.script.StepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C():
		return nil
	}
}

func (d *Driver) Login(ctx context.Context, creds portal.Credentials) error {
	if err := d.pause(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logins++
	if d.logins <= d.script.TransientLoginFailures {
		return provisioning.Transient("login", errPortalTimeout)
	}
	if d.script.RejectLogin || creds.LoginEmail == "" || creds.LoginPassword == "" {
		return &provisioning.AuthError{Vendor: d.vendorID, Admin: true}
	}
	d.loggedIn = true
	if kind := provisioning.ChallengeKind(d.script.Challenge); kind != "" {
		d.challenge = kind
		d.challengeStarted = d.clock.Now()
	}
	return nil
}

func (d *Driver) Submit(ctx context.Context, req portal.SubmitRequest) (portal.SubmitResult, error) {
	if err := d.pause(ctx); err != nil {
		return portal.SubmitResult{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loggedIn {
		return portal.SubmitResult{}, fmt.Errorf("%s: submit before login", d.vendorID)
	}
	if d.script.RejectSubmit != "" {
		return portal.SubmitResult{}, &provisioning.ValidationError{Field: string(req.IdentityKind), Message: d.script.RejectSubmit}
	}
	d.submitted = true

	key := strings.ToLower(req.Identity)
	if d.existing[key] {
		return portal.SubmitResult{
			Outcome:   portal.OutcomeDuplicate,
			Duplicate: req.IdentityKind.ConflictKind(),
		}, nil
	}
	d.created[key] = true
	return portal.SubmitResult{Outcome: portal.OutcomeCreated}, nil
}

func (d *Driver) VerifyCreated(ctx context.Context, identity string) (bool, error) {
	if err := d.pause(ctx); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.script.VerifyFails {
		return false, nil
	}
	return d.created[strings.ToLower(identity)], nil
}

func (d *Driver) ChallengePresent(ctx context.Context) (provisioning.ChallengeKind, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.challenge == "" || d.submitted {
		return "", false, nil
	}
	return d.challenge, !d.resolvedLocked(), nil
}

func (d *Driver) ChallengeResolved(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolvedLocked(), nil
}

func (d *Driver) resolvedLocked() bool {
	if d.challenge == "" {
		return true
	}
	return d.clock.Since(d.challengeStarted) >= d.script.ChallengeDelay
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loggedIn = false
	return nil
}

func (c *checkingDriver) CheckDuplicate(ctx context.Context, identity string) (bool, error) {
	if err := c.pause(ctx); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.existing[strings.ToLower(identity)], nil
}
