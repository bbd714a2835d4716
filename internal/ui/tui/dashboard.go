package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/provisioning/report"
)

// RunDashboard shows a started run until it completes. updates is the
// snapshot stream returned by Start; it is drained to the end even if the
// operator leaves the dashboard early.
func RunDashboard(
	ctx context.Context,
	ctrl Controller,
	updates <-chan provisioning.Snapshot,
	runID, user string,
) (report.RunReport, error) {
	m := NewRunModel(ctrl, runID, user, ctrl.Snapshots())

	p := tea.NewProgram(m, tea.WithAltScreen())

	// Forward snapshots in a background goroutine
	go func() {
		for snap := range updates {
			p.Send(SnapshotMsg{Snapshot: snap})
		}

		rep, err := ctrl.Wait(ctx)
		if err != nil {
			p.Send(ErrMsg{Err: err})
			return
		}
		p.Send(DoneMsg{Report: rep})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return report.RunReport{}, fmt.Errorf("TUI error: %w", err)
	}

	fm := finalModel.(Model)
	if fm.Err != nil {
		return report.RunReport{}, fm.Err
	}
	if fm.Report != nil {
		return *fm.Report, nil
	}
	// Left before completion; the run was cancelled on the way out.
	return ctrl.Wait(ctx)
}
