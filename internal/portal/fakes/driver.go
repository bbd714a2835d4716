// Package fakes provides in-memory vendor drivers and credential providers for tests.
package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/imamik/nexus/internal/config"
	"github.com/imamik/nexus/internal/portal"
	"github.com/imamik/nexus/internal/provisioning"
)

// FakeDriver is a scripted portal.Driver that records every call.
type FakeDriver struct {
	mu sync.Mutex

	// LoginErrs are returned by successive Login calls; nil once exhausted.
	LoginErrs []error
	// Existing identities are reported as duplicates.
	Existing map[string]bool
	// DuplicateKind is reported for existing identities.
	DuplicateKind provisioning.ConflictKind
	// SubmitErr is returned by every Submit call when set.
	SubmitErr error
	// LoginChallenge is reported by ChallengePresent before the first submit.
	LoginChallenge provisioning.ChallengeKind
	// SubmitChallenge is attached to every submit result.
	SubmitChallenge provisioning.ChallengeKind
	// Resolved answers ChallengeResolved. Nil means resolved.
	Resolved func(ctx context.Context) (bool, error)
	// VerifyFails hides created accounts from VerifyCreated.
	VerifyFails bool
	// VerifyErrs are returned by successive VerifyCreated calls.
	VerifyErrs []error
	// BlockSubmit makes Submit wait for ctx to end.
	BlockSubmit bool

	Calls     []string
	Submitted []portal.SubmitRequest
	Creds     []portal.Credentials
	Created   []string
	Closed    bool
	submits   int
}

// NewFakeDriver creates a driver that accepts every submission.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Existing:      make(map[string]bool),
		DuplicateKind: provisioning.ConflictDuplicateEmail,
	}
}

func (f *FakeDriver) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *FakeDriver) Login(ctx context.Context, creds portal.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("login")
	f.Creds = append(f.Creds, creds)
	if len(f.LoginErrs) > 0 {
		err := f.LoginErrs[0]
		f.LoginErrs = f.LoginErrs[1:]
		return err
	}
	return nil
}

func (f *FakeDriver) CheckDuplicate(ctx context.Context, identity string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("check_duplicate:" + identity)
	return f.Existing[identity], nil
}

func (f *FakeDriver) Submit(ctx context.Context, req portal.SubmitRequest) (portal.SubmitResult, error) {
	f.mu.Lock()
	f.record("submit:" + req.Identity)
	f.Submitted = append(f.Submitted, req)
	f.submits++
	block := f.BlockSubmit
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return portal.SubmitResult{}, provisioning.Transient("submit", context.Cause(ctx))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return portal.SubmitResult{}, f.SubmitErr
	}
	res := portal.SubmitResult{Challenge: f.SubmitChallenge}
	if f.Existing[req.Identity] {
		res.Outcome = portal.OutcomeDuplicate
		res.Duplicate = f.DuplicateKind
		return res, nil
	}
	res.Outcome = portal.OutcomeCreated
	f.Created = append(f.Created, req.Identity)
	return res, nil
}

func (f *FakeDriver) VerifyCreated(ctx context.Context, identity string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("verify:" + identity)
	if len(f.VerifyErrs) > 0 {
		err := f.VerifyErrs[0]
		f.VerifyErrs = f.VerifyErrs[1:]
		if err != nil {
			return false, err
		}
	}
	if f.VerifyFails {
		return false, nil
	}
	for _, c := range f.Created {
		if c == identity {
			return true, nil
		}
	}
	return false, nil
}

func (f *FakeDriver) ChallengePresent(ctx context.Context) (provisioning.ChallengeKind, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("challenge_present")
	if f.submits == 0 && f.LoginChallenge != "" {
		return f.LoginChallenge, true, nil
	}
	return "", false, nil
}

func (f *FakeDriver) ChallengeResolved(ctx context.Context) (bool, error) {
	f.mu.Lock()
	resolved := f.Resolved
	f.record("challenge_resolved")
	f.mu.Unlock()
	if resolved == nil {
		return true, nil
	}
	return resolved(ctx)
}

func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("close")
	f.Closed = true
	return nil
}

// CallLog returns a copy of the recorded calls.
func (f *FakeDriver) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// IsClosed reports whether Close was called.
func (f *FakeDriver) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}

// FakeFactory hands out pre-registered drivers by vendor id and records
// which vendors were opened.
type FakeFactory struct {
	mu      sync.Mutex
	Drivers map[string]*FakeDriver
	Opened  []string
	OpenErr map[string]error
	// NoPrecheck hides CheckDuplicate for these vendors so duplicates
	// surface from Submit.
	NoPrecheck map[string]bool
}

// plainDriver exposes only the portal.Driver methods.
type plainDriver struct {
	portal.Driver
}

// NewFakeFactory creates a factory with no drivers.
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{
		Drivers:    make(map[string]*FakeDriver),
		OpenErr:    make(map[string]error),
		NoPrecheck: make(map[string]bool),
	}
}

// Driver returns the driver for vendorID, creating a default one if needed.
func (f *FakeFactory) Driver(vendorID string) *FakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Drivers[vendorID]
	if !ok {
		d = NewFakeDriver()
		f.Drivers[vendorID] = d
	}
	return d
}

// Factory returns a portal.Factory backed by f.
func (f *FakeFactory) Factory() portal.Factory {
	return func(ctx context.Context, cfg config.VendorConfig) (portal.Driver, error) {
		f.mu.Lock()
		f.Opened = append(f.Opened, cfg.ID)
		err := f.OpenErr[cfg.ID]
		plain := f.NoPrecheck[cfg.ID]
		f.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if plain {
			return plainDriver{f.Driver(cfg.ID)}, nil
		}
		return f.Driver(cfg.ID), nil
	}
}

// OpenedVendors returns the vendor ids opened so far.
func (f *FakeFactory) OpenedVendors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Opened...)
}

// StaticCredentials is a CredentialProvider over a fixed map that counts lookups.
type StaticCredentials struct {
	mu      sync.Mutex
	Creds   map[string]portal.Credentials
	Lookups map[string]int
}

// NewStaticCredentials returns a provider that knows every vendor in ids.
func NewStaticCredentials(ids ...string) *StaticCredentials {
	s := &StaticCredentials{
		Creds:   make(map[string]portal.Credentials),
		Lookups: make(map[string]int),
	}
	for _, id := range ids {
		s.Creds[id] = portal.Credentials{
			LoginEmail:    "admin@" + id + ".example",
			LoginPassword: "pw-" + id,
		}
	}
	return s
}

func (s *StaticCredentials) Credentials(ctx context.Context, vendorID string) (portal.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups[vendorID]++
	c, ok := s.Creds[vendorID]
	if !ok {
		return portal.Credentials{}, fmt.Errorf("%s: %w", vendorID, provisioning.ErrCredentialNotFound)
	}
	return c, nil
}

// LookupCount returns how often vendorID was looked up.
func (s *StaticCredentials) LookupCount(vendorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Lookups[vendorID]
}
