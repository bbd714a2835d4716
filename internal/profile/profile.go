// Package profile looks up user profiles in a YAML directory export.
package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imamik/nexus/internal/provisioning"
)

// ErrNotFound is returned when no profile matches an identity.
var ErrNotFound = errors.New("user profile not found")

// Provider returns the profile of the user a run provisions.
type Provider interface {
	Profile(ctx context.Context, identity string) (provisioning.UserProfile, error)
}

// document is the layout of profiles.yaml.
type document struct {
	Users []provisioning.UserProfile `yaml:"users"`
}

// Directory is a Provider over a profiles.yaml file. The file is read on
// every lookup so edits to the export are picked up without a restart.
type Directory struct {
	path string
}

// NewDirectory creates a Directory reading path.
func NewDirectory(path string) *Directory {
	return &Directory{path: path}
}

// Profile implements Provider. identity matches the user principal name,
// mail address or id, case-insensitively.
func (d *Directory) Profile(ctx context.Context, identity string) (provisioning.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return provisioning.UserProfile{}, err
	}
	// #nosec G304
	data, err := os.ReadFile(d.path)
	if err != nil {
		return provisioning.UserProfile{}, fmt.Errorf("failed to read profiles file: %w", err)
	}
	users, err := Parse(data)
	if err != nil {
		return provisioning.UserProfile{}, err
	}
	return Find(users, identity)
}

// Parse decodes a profiles document.
func Parse(data []byte) ([]provisioning.UserProfile, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	return doc.Users, nil
}

// Find returns the profile in users matching identity.
func Find(users []provisioning.UserProfile, identity string) (provisioning.UserProfile, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return provisioning.UserProfile{}, fmt.Errorf("identity is required")
	}
	for _, u := range users {
		for _, candidate := range []string{u.UserPrincipalName, u.Email, u.ID} {
			if candidate != "" && strings.EqualFold(candidate, identity) {
				return u, validate(u)
			}
		}
	}
	return provisioning.UserProfile{}, fmt.Errorf("%w: %s", ErrNotFound, identity)
}

func validate(u provisioning.UserProfile) error {
	if u.Email == "" {
		return fmt.Errorf("profile %s has no email", u.DisplayName)
	}
	return nil
}
