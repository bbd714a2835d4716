package portal

import (
	"fmt"
	"strings"
)

// Credential secret types. Secrets are addressed as "{vendor}-{type}".
const (
	SecretLoginEmail      = "login-email"
	SecretLoginPassword   = "login-password"
	SecretLoginURL        = "login-url"
	SecretNewUserPassword = "newuser-password"
)

// SecretTypes lists every secret type a credential set is built from.
var SecretTypes = []string{SecretLoginEmail, SecretLoginPassword, SecretLoginURL, SecretNewUserPassword}

// SecretName returns the storage name of a vendor secret.
func SecretName(vendorID, secretType string) string {
	return vendorID + "-" + secretType
}

// Credentials is the admin login for one vendor plus an optional preset
// password for new accounts.
type Credentials struct {
	LoginEmail      string
	LoginPassword   string
	LoginURL        string
	NewUserPassword string
}

// FromSecrets builds credentials from a lookup keyed by secret type.
// LoginEmail and LoginPassword are required.
func FromSecrets(vendorID string, lookup func(secretType string) (string, bool)) (Credentials, error) {
	var c Credentials
	var missing []string

	for _, st := range SecretTypes {
		v, ok := lookup(st)
		if !ok {
			if st == SecretLoginEmail || st == SecretLoginPassword {
				missing = append(missing, SecretName(vendorID, st))
			}
			continue
		}
		switch st {
		case SecretLoginEmail:
			c.LoginEmail = v
		case SecretLoginPassword:
			c.LoginPassword = v
		case SecretLoginURL:
			c.LoginURL = v
		case SecretNewUserPassword:
			c.NewUserPassword = v
		}
	}

	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return c, nil
}

// String never includes secret values.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{login=%s, password=%s, url=%s}", maskEmail(c.LoginEmail), redact(c.LoginPassword), c.LoginURL)
}

// MarshalLog implements logr.Marshaler.
func (c Credentials) MarshalLog() any {
	return c.String()
}

func redact(s string) string {
	if s == "" {
		return "<unset>"
	}
	return "[REDACTED]"
}

func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return redact(email)
	}
	return local[:1] + "***@" + domain
}
