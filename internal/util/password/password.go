// Package password generates temporary account passwords from per-vendor rules.
package password

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// Character classes exclude visually ambiguous characters (I, O, l, o, 0, 1).
const (
	Upper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	Lower   = "abcdefghijkmnpqrstuvwxyz"
	Digits  = "23456789"
	Special = "!@#$%^&*-_=+"
)

// Rules describe the complexity a vendor requires of a new account password.
type Rules struct {
	Length     int    `yaml:"length" json:"length"`
	MinUpper   int    `yaml:"min_upper" json:"min_upper"`
	MinLower   int    `yaml:"min_lower" json:"min_lower"`
	MinDigits  int    `yaml:"min_digits" json:"min_digits"`
	MinSpecial int    `yaml:"min_special" json:"min_special"`
	Special    string `yaml:"special" json:"special,omitempty"`
	Exclude    string `yaml:"exclude" json:"exclude,omitempty"`
}

// DefaultRules returns the rules applied when a vendor configures none.
func DefaultRules() Rules {
	return Rules{
		Length:     16,
		MinUpper:   2,
		MinLower:   2,
		MinDigits:  2,
		MinSpecial: 2,
	}
}

// Validate checks that the minimums fit into Length and every required class
// still has characters left after exclusions.
func (r Rules) Validate() error {
	if r.Length <= 0 {
		return fmt.Errorf("password length must be positive, got %d", r.Length)
	}
	required := r.MinUpper + r.MinLower + r.MinDigits + r.MinSpecial
	if r.Length < required {
		return fmt.Errorf("password length %d too short for requirements (min: %d)", r.Length, required)
	}
	for _, c := range r.classes() {
		if c.min > 0 && c.chars == "" {
			return fmt.Errorf("no %s characters left after exclusions", c.name)
		}
	}
	if r.alphabet() == "" {
		return fmt.Errorf("no characters left after exclusions")
	}
	return nil
}

type class struct {
	name  string
	chars string
	min   int
}

func (r Rules) classes() []class {
	special := Special
	if r.Special != "" {
		special = r.Special
	}
	return []class{
		{"uppercase", r.strip(Upper), r.MinUpper},
		{"lowercase", r.strip(Lower), r.MinLower},
		{"digit", r.strip(Digits), r.MinDigits},
		{"special", r.strip(special), r.MinSpecial},
	}
}

func (r Rules) alphabet() string {
	var b strings.Builder
	for _, c := range r.classes() {
		b.WriteString(c.chars)
	}
	return b.String()
}

func (r Rules) strip(set string) string {
	if r.Exclude == "" {
		return set
	}
	return strings.Map(func(c rune) rune {
		if strings.ContainsRune(r.Exclude, c) {
			return -1
		}
		return c
	}, set)
}

// Generate returns a password satisfying r, using crypto/rand.
func Generate(r Rules) (string, error) {
	return GenerateFrom(rand.Reader, r)
}

// GenerateFrom is Generate with an explicit entropy source.
func GenerateFrom(rnd io.Reader, r Rules) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}

	out := make([]byte, 0, r.Length)
	for _, c := range r.classes() {
		for i := 0; i < c.min; i++ {
			ch, err := pick(rnd, c.chars)
			if err != nil {
				return "", err
			}
			out = append(out, ch)
		}
	}

	all := r.alphabet()
	for len(out) < r.Length {
		ch, err := pick(rnd, all)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}

	// Fisher-Yates so the required characters are not clustered at the front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rnd, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("failed to shuffle password: %w", err)
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(rnd io.Reader, set string) (byte, error) {
	n, err := rand.Int(rnd, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("failed to read random data: %w", err)
	}
	return set[n.Int64()], nil
}
