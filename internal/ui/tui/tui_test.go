package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/nexus/internal/conflict"
	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/provisioning/report"
	"github.com/imamik/nexus/internal/provisioning/run"
)

type fakeController struct {
	state     run.State
	calls     []string
	decisions map[string]conflict.Decision
	pauseErr  error
}

func newFakeController() *fakeController {
	return &fakeController{state: run.StateRunning, decisions: map[string]conflict.Decision{}}
}

func (f *fakeController) Pause() error {
	f.calls = append(f.calls, "pause")
	if f.pauseErr != nil {
		return f.pauseErr
	}
	f.state = run.StatePaused
	return nil
}

func (f *fakeController) Resume() error {
	f.calls = append(f.calls, "resume")
	f.state = run.StateRunning
	return nil
}

func (f *fakeController) Cancel() error {
	f.calls = append(f.calls, "cancel")
	f.state = run.StateCancelling
	return nil
}

func (f *fakeController) ResolveConflict(id string, d conflict.Decision) (bool, error) {
	f.calls = append(f.calls, "resolve")
	f.decisions[id] = d
	return true, nil
}

func (f *fakeController) State() run.State { return f.state }

func (f *fakeController) Snapshots() []provisioning.Snapshot { return nil }

func (f *fakeController) Wait(context.Context) (report.RunReport, error) {
	return report.RunReport{}, nil
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func tasks() []provisioning.Snapshot {
	return []provisioning.Snapshot{
		{VendorID: "acme", DisplayName: "Acme", Status: provisioning.StatusPending},
		{VendorID: "globex", DisplayName: "Globex", Status: provisioning.StatusPending},
	}
}

func conflictSnapshot() provisioning.Snapshot {
	started := time.Now().Add(-10 * time.Second)
	return provisioning.Snapshot{
		VendorID:    "acme",
		DisplayName: "Acme",
		Status:      provisioning.StatusAwaitingInput,
		Progress:    60,
		StartedAt:   &started,
		Seq:         4,
		Pending: &provisioning.PendingRequest{
			ID:            "req-1",
			Kind:          provisioning.PendingConflict,
			Conflict:      provisioning.ConflictDuplicateEmail,
			ProposedValue: "jane@x.com",
		},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{3600 * time.Second, "1h0m"},
		{3661 * time.Second, "1h1m"},
	}
	for _, tt := range tests {
		got := formatDuration(tt.d)
		if got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestModelUpdateTask(t *testing.T) {
	m := NewRunModel(newFakeController(), "run-1", "jdoe", tasks())

	m = update(t, m, SnapshotMsg{Snapshot: provisioning.Snapshot{VendorID: "acme", Status: provisioning.StatusRunning, Seq: 2}})
	if m.Tasks[0].Status != provisioning.StatusRunning {
		t.Errorf("expected acme running, got %v", m.Tasks[0].Status)
	}

	// A late, older snapshot must not overwrite a newer one
	m = update(t, m, SnapshotMsg{Snapshot: provisioning.Snapshot{VendorID: "acme", Status: provisioning.StatusPending, Seq: 1}})
	if m.Tasks[0].Status != provisioning.StatusRunning {
		t.Errorf("expected stale snapshot to be ignored, got %v", m.Tasks[0].Status)
	}

	m = update(t, m, SnapshotMsg{Snapshot: provisioning.Snapshot{VendorID: "initech", Status: provisioning.StatusPending}})
	if len(m.Tasks) != 3 || m.Tasks[2].VendorID != "initech" {
		t.Errorf("expected unknown vendor to be appended, got %d tasks", len(m.Tasks))
	}
}

func TestModelControls(t *testing.T) {
	ctrl := newFakeController()
	m := NewRunModel(ctrl, "run-1", "jdoe", tasks())

	m = update(t, m, key("p"))
	if m.State != run.StatePaused {
		t.Errorf("expected paused, got %v", m.State)
	}
	m = update(t, m, key("r"))
	if m.State != run.StateRunning {
		t.Errorf("expected running, got %v", m.State)
	}
	m = update(t, m, key("c"))
	if m.State != run.StateCancelling {
		t.Errorf("expected cancelling, got %v", m.State)
	}

	want := []string{"pause", "resume", "cancel"}
	if strings.Join(ctrl.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", ctrl.calls, want)
	}
}

func TestModelControlError(t *testing.T) {
	ctrl := newFakeController()
	ctrl.pauseErr = errors.New("run is not running")
	m := NewRunModel(ctrl, "run-1", "jdoe", tasks())

	m = update(t, m, key("p"))
	if m.Notice != "run is not running" {
		t.Errorf("expected error notice, got %q", m.Notice)
	}
}

func TestModelQuitCancelsFirst(t *testing.T) {
	ctrl := newFakeController()
	m := NewRunModel(ctrl, "run-1", "jdoe", tasks())

	next, cmd := m.Update(key("q"))
	m = next.(Model)
	if cmd != nil {
		t.Error("expected dashboard to stay open until the run completes")
	}
	if len(ctrl.calls) != 1 || ctrl.calls[0] != "cancel" {
		t.Errorf("expected cancel, got %v", ctrl.calls)
	}

	_, cmd = m.Update(DoneMsg{})
	if cmd == nil {
		t.Error("expected quit once the run is done")
	}
}

func TestModelConflictSkip(t *testing.T) {
	ctrl := newFakeController()
	m := NewRunModel(ctrl, "run-1", "jdoe", tasks())
	m = update(t, m, SnapshotMsg{Snapshot: conflictSnapshot()})

	m = update(t, m, key("s"))
	if d, ok := ctrl.decisions["req-1"]; !ok || d.Action != conflict.ActionSkip {
		t.Errorf("expected skip decision, got %+v", ctrl.decisions)
	}
	if m.Notice != "vendor skipped" {
		t.Errorf("unexpected notice %q", m.Notice)
	}
}

func TestModelConflictAlternate(t *testing.T) {
	ctrl := newFakeController()
	m := NewRunModel(ctrl, "run-1", "jdoe", tasks())
	m = update(t, m, SnapshotMsg{Snapshot: conflictSnapshot()})

	m = update(t, m, key("a"))
	if m.editing != "req-1" {
		t.Fatalf("expected prompt for req-1, got %q", m.editing)
	}
	if m.input.Value() != "jane@x.com" {
		t.Errorf("expected proposed value prefilled, got %q", m.input.Value())
	}

	// Keys go to the input while editing, not to the run controls
	m.input.SetValue("jane2@x.com")
	m = update(t, m, key("p"))
	if len(ctrl.calls) != 0 {
		t.Errorf("expected no controller calls while editing, got %v", ctrl.calls)
	}

	m.input.SetValue("jane2@x.com")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	d := ctrl.decisions["req-1"]
	if d.Action != conflict.ActionRetryWith || d.Value != "jane2@x.com" {
		t.Errorf("expected retry with jane2@x.com, got %+v", d)
	}
	if m.editing != "" {
		t.Error("expected prompt to close after submit")
	}
}

func TestModelConflictEmptyValue(t *testing.T) {
	ctrl := newFakeController()
	m := NewRunModel(ctrl, "run-1", "jdoe", tasks())
	m = update(t, m, SnapshotMsg{Snapshot: conflictSnapshot()})

	m = update(t, m, key("a"))
	m.input.SetValue("  ")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(ctrl.decisions) != 0 {
		t.Errorf("expected no decision, got %+v", ctrl.decisions)
	}
	if m.editing != "req-1" {
		t.Error("expected prompt to stay open")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.editing != "" {
		t.Error("expected esc to close the prompt")
	}
}

func TestModelPromptClosesWhenSettled(t *testing.T) {
	m := NewRunModel(newFakeController(), "run-1", "jdoe", tasks())
	m = update(t, m, SnapshotMsg{Snapshot: conflictSnapshot()})
	m = update(t, m, key("a"))

	settled := conflictSnapshot()
	settled.Pending = nil
	settled.Status = provisioning.StatusSkipped
	settled.Seq = 5
	m = update(t, m, SnapshotMsg{Snapshot: settled})
	if m.editing != "" {
		t.Error("expected prompt to close when the conflict timed out")
	}
}

func TestRenderView_Header(t *testing.T) {
	m := NewRunModel(newFakeController(), "0123456789abcdef", "jdoe@corp.example", tasks())

	output := renderView(m)

	if !strings.Contains(output, "jdoe@corp.example") {
		t.Error("expected user in output")
	}
	if !strings.Contains(output, "01234567") || strings.Contains(output, "0123456789abcdef") {
		t.Error("expected short run id in output")
	}
}

func TestRenderView_Tasks(t *testing.T) {
	end := time.Now()
	start := end.Add(-45 * time.Second)
	m := NewRunModel(newFakeController(), "run-1", "jdoe", []provisioning.Snapshot{
		{VendorID: "acme", DisplayName: "Acme", Status: provisioning.StatusSucceeded, Progress: 100, StartedAt: &start, EndedAt: &end},
		{VendorID: "globex", DisplayName: "Globex", Status: provisioning.StatusSkipped, Reason: provisioning.ReasonDuplicateSkipped},
		{VendorID: "initech", DisplayName: "Initech", Status: provisioning.StatusFailed, ErrorKind: provisioning.KindAuth,
			Errors: []string{"initech: admin login rejected"}},
	})

	output := renderView(m)

	for _, want := range []string{"Acme", "45s", "duplicate_skipped", "AuthError", "Recent Issues", "admin login rejected"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestRenderView_ConflictPrompt(t *testing.T) {
	m := NewRunModel(newFakeController(), "run-1", "jdoe", tasks())
	m = update(t, m, SnapshotMsg{Snapshot: conflictSnapshot()})

	output := renderView(m)
	if !strings.Contains(output, "Action Required") || !strings.Contains(output, "jane@x.com") {
		t.Error("expected conflict prompt in output")
	}
	if !strings.Contains(output, "s: skip vendor") {
		t.Error("expected prompt keys in output")
	}
}

func TestRenderView_ChallengeWait(t *testing.T) {
	deadline := time.Now().Add(4 * time.Minute)
	m := NewRunModel(newFakeController(), "run-1", "jdoe", []provisioning.Snapshot{{
		VendorID:    "acme",
		DisplayName: "Acme",
		Status:      provisioning.StatusAwaitingInput,
		Pending: &provisioning.PendingRequest{
			ID:        "wait-1",
			Kind:      provisioning.PendingWait,
			Challenge: provisioning.ChallengeMFA,
			Deadline:  &deadline,
		},
	}})

	output := renderView(m)
	if !strings.Contains(output, "complete the mfa challenge on Acme") {
		t.Errorf("expected challenge wait in output, got:\n%s", output)
	}
	if !strings.Contains(output, "left") {
		t.Error("expected remaining time in output")
	}
}

func TestRenderView_ProgressBar(t *testing.T) {
	m := NewRunModel(newFakeController(), "run-1", "jdoe", []provisioning.Snapshot{
		{VendorID: "acme", Status: provisioning.StatusSucceeded},
		{VendorID: "globex", Status: provisioning.StatusRunning},
	})

	output := renderView(m)

	if !strings.Contains(output, "░") || !strings.Contains(output, "█") {
		t.Error("expected progress bar in output")
	}
	if !strings.Contains(output, "50%") {
		t.Error("expected 50% in output")
	}
}

func TestRenderOnce(t *testing.T) {
	output := RenderOnce("run-1", "jdoe", []provisioning.Snapshot{
		{VendorID: "acme", DisplayName: "Acme", Status: provisioning.StatusSucceeded},
	})
	if !strings.Contains(output, "Completed") {
		t.Error("expected completed header")
	}
	if !strings.Contains(output, "q: quit") || strings.Contains(output, "p: pause") {
		t.Error("expected finished footer")
	}
}

func TestTaskIcon(t *testing.T) {
	tests := []struct {
		status provisioning.Status
		icon   string
	}{
		{provisioning.StatusSucceeded, checkMark},
		{provisioning.StatusFailed, crossMark},
		{provisioning.StatusSkipped, skipMark},
		{provisioning.StatusAwaitingInput, warnMark},
		{provisioning.StatusPending, pending},
		{provisioning.StatusRunning, spinnerFrames[1]},
	}
	for _, tt := range tests {
		icon, _ := taskIcon(tt.status, 1)
		if icon != tt.icon {
			t.Errorf("taskIcon(%v) = %q, want %q", tt.status, icon, tt.icon)
		}
	}
}
