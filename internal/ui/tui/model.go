package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/nexus/internal/conflict"
	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/provisioning/report"
	"github.com/imamik/nexus/internal/provisioning/run"
	"github.com/imamik/nexus/internal/ui/benchmarks"
)

// Controller is the part of the run coordinator the dashboard drives.
type Controller interface {
	Pause() error
	Resume() error
	Cancel() error
	ResolveConflict(id string, d conflict.Decision) (bool, error)
	State() run.State
	Snapshots() []provisioning.Snapshot
	Wait(ctx context.Context) (report.RunReport, error)
}

// Model is the Bubble Tea model for the run dashboard.
type Model struct {
	// Run info
	RunID string
	User  string
	State run.State

	// Latest snapshot per vendor, in run order
	Tasks []provisioning.Snapshot
	index map[string]int

	// ETA
	EstimatedRemaining time.Duration
	PerformanceScale   float64
	StartTime          time.Time

	// Animation
	SpinnerFrame int

	// UI state
	Width    int
	Height   int
	Err      error
	Done     bool
	Report   *report.RunReport
	Notice   string
	quitting bool

	// Conflict prompt
	ctrl    Controller
	input   textinput.Model
	editing string
}

// NewRunModel creates a dashboard model for a started run.
func NewRunModel(ctrl Controller, runID, user string, tasks []provisioning.Snapshot) Model {
	input := textinput.New()
	input.Prompt = "alternate: "
	input.CharLimit = 254

	m := Model{
		RunID:            runID,
		User:             user,
		State:            run.StateRunning,
		StartTime:        time.Now(),
		PerformanceScale: 1.0,
		index:            make(map[string]int, len(tasks)),
		ctrl:             ctrl,
		input:            input,
	}
	for _, t := range tasks {
		m.updateTask(t)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing != "" {
			return m.updatePrompt(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case SnapshotMsg:
		m.updateTask(msg.Snapshot)
		if m.editing != "" && m.pendingConflict() == nil {
			m.stopEditing()
		}

	case TickMsg:
		m.SpinnerFrame++
		if m.ctrl != nil {
			m.State = m.ctrl.State()
		}
		m.updateETA()
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		rep := msg.Report
		m.Report = &rep
		m.Done = true
		m.State = run.StateCompleted
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.Done || m.quitting || m.ctrl == nil {
			return m, tea.Quit
		}
		// Cancel first; the dashboard exits once the run reports completion.
		m.quitting = true
		m.control("cancelling run", m.ctrl.Cancel)
	}
	if m.ctrl == nil {
		return m, nil
	}

	switch msg.String() {
	case "p":
		m.control("run paused before next vendor", m.ctrl.Pause)
	case "r":
		m.control("run resumed", m.ctrl.Resume)
	case "c":
		m.control("cancelling run", m.ctrl.Cancel)
	case "a":
		if req := m.pendingConflict(); req != nil {
			m.editing = req.ID
			m.input.SetValue(req.ProposedValue)
			m.input.CursorEnd()
			return m, m.input.Focus()
		}
	case "s":
		if req := m.pendingConflict(); req != nil {
			m.resolve(req.ID, conflict.Skip())
		}
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		if value == "" {
			m.Notice = "enter an alternate value or press esc"
			return m, nil
		}
		m.resolve(m.editing, conflict.RetryWith(value))
		m.stopEditing()
		return m, nil
	case tea.KeyEsc:
		m.stopEditing()
		return m, nil
	case tea.KeyCtrlC:
		m.stopEditing()
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) control(notice string, fn func() error) {
	if err := fn(); err != nil {
		m.Notice = err.Error()
		return
	}
	m.Notice = notice
	m.State = m.ctrl.State()
}

func (m *Model) resolve(id string, d conflict.Decision) {
	ok, err := m.ctrl.ResolveConflict(id, d)
	switch {
	case err != nil:
		m.Notice = err.Error()
	case !ok:
		m.Notice = "conflict was already settled"
	case d.Action == conflict.ActionSkip:
		m.Notice = "vendor skipped"
	default:
		m.Notice = fmt.Sprintf("retrying with %s", d.Value)
	}
}

func (m *Model) stopEditing() {
	m.editing = ""
	m.input.Blur()
	m.input.Reset()
}

// pendingConflict returns the open duplicate prompt, if any.
func (m Model) pendingConflict() *provisioning.PendingRequest {
	for _, t := range m.Tasks {
		if t.Pending != nil && t.Pending.Kind == provisioning.PendingConflict {
			return t.Pending
		}
	}
	return nil
}

func (m *Model) updateTask(s provisioning.Snapshot) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	idx, ok := m.index[s.VendorID]
	if !ok {
		m.index[s.VendorID] = len(m.Tasks)
		m.Tasks = append(m.Tasks, s)
		return
	}
	// Snapshots may be delivered late; never go back to an older one.
	if s.Seq < m.Tasks[idx].Seq {
		return
	}
	m.Tasks[idx] = s
}

func (m *Model) updateETA() {
	now := time.Now()
	m.PerformanceScale = benchmarks.PerformanceScale(m.Tasks, now)
	m.EstimatedRemaining = benchmarks.EstimateRemainingWithScale(m.Tasks, now, m.PerformanceScale)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
