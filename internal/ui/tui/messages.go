// Package tui provides a Bubble Tea-based terminal dashboard for provisioning runs.
package tui

import (
	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/provisioning/report"
)

// SnapshotMsg carries the latest state of one vendor task.
type SnapshotMsg struct {
	Snapshot provisioning.Snapshot
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg carries an error.
type ErrMsg struct{ Err error }

// DoneMsg signals that the run is complete.
type DoneMsg struct {
	Report report.RunReport
}
