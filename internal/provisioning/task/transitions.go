package task

import (
	"fmt"

	"github.com/imamik/nexus/internal/provisioning"
)

var allowedTransitions = map[provisioning.Status]map[provisioning.Status]struct{}{
	provisioning.StatusPending: {
		provisioning.StatusRunning: {},
		provisioning.StatusSkipped: {},
	},
	provisioning.StatusRunning: {
		provisioning.StatusAwaitingInput: {},
		provisioning.StatusSucceeded:     {},
		provisioning.StatusFailed:        {},
		provisioning.StatusSkipped:       {},
	},
	provisioning.StatusAwaitingInput: {
		provisioning.StatusRunning: {},
		provisioning.StatusFailed:  {},
		provisioning.StatusSkipped: {},
	},
}

// ValidateTransition reports whether a task may move from one status to another.
// Terminal states have no outgoing transitions.
func ValidateTransition(from, to provisioning.Status) error {
	next, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("invalid transition %s -> %s: %s is terminal", from, to, from)
	}
	if _, ok := next[to]; !ok {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	return nil
}
