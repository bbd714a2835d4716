package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/provisioning/run"
	"github.com/imamik/nexus/internal/ui/benchmarks"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	// Header
	renderHeader(&b, m)

	// Progress bar
	renderProgressBar(&b, m)

	// Vendors
	renderTasks(&b, m)

	// Open prompt or challenge wait
	renderPending(&b, m)

	// Warnings and errors
	renderIssues(&b, m)

	// Footer
	renderFooter(&b, m)

	return b.String()
}

// RenderOnce renders a finished or stored run without starting a program.
func RenderOnce(runID, user string, tasks []provisioning.Snapshot) string {
	m := NewRunModel(nil, runID, user, tasks)
	m.Done = true
	m.State = run.StateCompleted
	return renderView(m)
}

func renderHeader(b *strings.Builder, m Model) {
	title := fmt.Sprintf("nexus: %s", m.User)
	if m.RunID != "" {
		title += fmt.Sprintf(" (run %s)", shortID(m.RunID))
	}
	b.WriteString(titleStyle.Render(title))

	status := " "
	switch {
	case m.Err != nil:
		status += failedStyle.Render(fmt.Sprintf("Error: %v", m.Err))
	case m.Done:
		status += readyStyle.Render("Completed")
	case m.State == run.StatePaused:
		status += warningStyle.Render("Paused")
	case m.State == run.StateCancelling:
		status += failedStyle.Render("Cancelling")
	default:
		if active := m.activeTask(); active != nil {
			status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") + warningStyle.Render(active.DisplayName)
		} else {
			status += dimStyle.Render("Starting...")
		}
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := benchmarks.Progress(m.Tasks)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = m.Width - 30
		if barWidth < 10 {
			barWidth = 10
		}
	}
	filled := int(float64(barWidth) * progress)
	if filled > barWidth {
		filled = barWidth
	}

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))

	pct := int(progress * 100)
	eta := ""
	if m.EstimatedRemaining > 0 && !m.Done {
		eta = fmt.Sprintf(" ETA %s", formatDuration(m.EstimatedRemaining))
	}
	if m.PerformanceScale != 0 && m.PerformanceScale != 1.0 && !m.Done {
		eta += fmt.Sprintf("  speed x%.2f", m.PerformanceScale)
	}

	fmt.Fprintf(b, "  %s %d%%%s\n", bar, pct, eta)
}

func renderTasks(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Vendors"))
	b.WriteString("\n")

	for _, t := range m.Tasks {
		icon, style := taskIcon(t.Status, m.SpinnerFrame)

		name := t.DisplayName
		if name == "" {
			name = t.VendorID
		}

		detail := ""
		switch {
		case t.Status == provisioning.StatusSkipped && t.Reason != "":
			detail = string(t.Reason)
		case t.Status == provisioning.StatusFailed && t.ErrorKind != "":
			detail = string(t.ErrorKind)
		case !t.Status.IsTerminal() && t.Step != "":
			detail = t.Step
		}

		dur := ""
		switch {
		case t.EndedAt != nil:
			dur = formatDuration(t.Duration())
		case t.StartedAt != nil:
			dur = formatDuration(time.Since(*t.StartedAt))
		}

		bar := ""
		if t.Status != provisioning.StatusPending {
			bar = taskMiniBar(float64(t.Progress)/100) + " "
		}

		fmt.Fprintf(b, "    %s %-20s %-15s %s%-22s %s\n",
			style(icon), style(name), style(string(t.Status)), bar, dimStyle.Render(detail), dimStyle.Render(dur))
	}
}

func renderPending(b *strings.Builder, m Model) {
	for _, t := range m.Tasks {
		p := t.Pending
		if p == nil {
			continue
		}

		left := ""
		if p.Deadline != nil {
			if d := time.Until(*p.Deadline); d > 0 {
				left = fmt.Sprintf(" (%s left)", formatDuration(d))
			}
		}

		var body strings.Builder
		switch p.Kind {
		case provisioning.PendingConflict:
			b.WriteString(sectionStyle.Render("  Action Required"))
			b.WriteString("\n")
			fmt.Fprintf(&body, "%s: %s %s already exists%s\n",
				activeStyle.Render(t.DisplayName), conflictLabel(p.Conflict), warningStyle.Render(p.ProposedValue), left)
			if m.editing == p.ID {
				body.WriteString(m.input.View())
				body.WriteString("\n")
				body.WriteString(dimStyle.Render("enter: retry with value  esc: back"))
			} else {
				body.WriteString(dimStyle.Render("a: enter alternate  s: skip vendor"))
			}
			b.WriteString(promptStyle.Render(body.String()))
			b.WriteString("\n")
		case provisioning.PendingWait:
			b.WriteString(sectionStyle.Render("  Waiting"))
			b.WriteString("\n")
			fmt.Fprintf(b, "    %s complete the %s challenge on %s%s\n",
				warningStyle.Render(warnMark), p.Challenge, t.DisplayName, dimStyle.Render(left))
		}
	}
}

func renderIssues(b *strings.Builder, m Model) {
	type issue struct {
		vendor, msg string
		failed      bool
	}
	var issues []issue
	for _, t := range m.Tasks {
		for _, w := range t.Warnings {
			issues = append(issues, issue{vendor: t.VendorID, msg: w})
		}
		for _, e := range t.Errors {
			issues = append(issues, issue{vendor: t.VendorID, msg: e, failed: true})
		}
	}
	if len(issues) == 0 {
		return
	}

	b.WriteString(sectionStyle.Render("  Recent Issues"))
	b.WriteString("\n")

	// Show last 3 issues
	start := 0
	if len(issues) > 3 {
		start = len(issues) - 3
	}
	for _, is := range issues[start:] {
		icon := warningStyle.Render(warnMark)
		if is.failed {
			icon = failedStyle.Render(crossMark)
		}
		fmt.Fprintf(b, "    %s [%s] %s\n", icon, is.vendor, dimStyle.Render(is.msg))
	}
}

func renderFooter(b *strings.Builder, m Model) {
	elapsed := formatDuration(time.Since(m.StartTime))
	parts := []string{fmt.Sprintf("elapsed: %s", elapsed)}
	if m.Notice != "" {
		parts = append(parts, m.Notice)
	}
	keys := "p: pause  r: resume  c: cancel  q: quit"
	if m.Done {
		keys = "q: quit"
	}
	parts = append(parts, keys)
	b.WriteString(footerStyle.Render("  " + strings.Join(parts, "  |  ")))
	b.WriteString("\n")
}

// Helper functions

func (m Model) activeTask() *provisioning.Snapshot {
	for i := range m.Tasks {
		s := m.Tasks[i].Status
		if s == provisioning.StatusRunning || s == provisioning.StatusAwaitingInput {
			return &m.Tasks[i]
		}
	}
	return nil
}

func taskIcon(status provisioning.Status, frame int) (string, styleFunc) {
	switch status {
	case provisioning.StatusSucceeded:
		return checkMark, sf(readyStyle)
	case provisioning.StatusFailed:
		return crossMark, sf(failedStyle)
	case provisioning.StatusSkipped:
		return skipMark, sf(dimStyle)
	case provisioning.StatusAwaitingInput:
		return warnMark, sf(warningStyle)
	case provisioning.StatusRunning:
		return currentSpinner(frame), sf(activeStyle)
	default:
		return pending, sf(dimStyle)
	}
}

func conflictLabel(k provisioning.ConflictKind) string {
	if k == provisioning.ConflictDuplicateUsername {
		return "username"
	}
	return "email"
}

func currentSpinner(frame int) string {
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

func taskMiniBar(progress float64) string {
	const width = 10
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * width)
	return progressBarFull.Render(strings.Repeat("█", filled)) + progressBarEmpty.Render(strings.Repeat("░", width-filled))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
