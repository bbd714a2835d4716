package report

import (
	"sort"
	"time"

	"github.com/imamik/nexus/internal/provisioning"
)

// RunReport is the immutable end-of-run summary.
type RunReport struct {
	RunID     string                   `json:"run_id"`
	User      provisioning.UserProfile `json:"user"`
	StartedAt *time.Time               `json:"started_at,omitempty"`
	EndedAt   *time.Time               `json:"ended_at,omitempty"`

	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	// SkippedByReason tells duplicates, cancellations and aborts apart.
	SkippedByReason map[provisioning.Reason]int `json:"skipped_by_reason,omitempty"`
	// FailedByKind counts failures per error kind.
	FailedByKind map[provisioning.ErrorKind]int `json:"failed_by_kind,omitempty"`

	Tasks []TaskResult `json:"tasks"`
}

// TaskResult is one vendor's final snapshot plus its derived duration.
type TaskResult struct {
	provisioning.Snapshot
	Duration string `json:"duration,omitempty"`
}

// Summarize builds the report for snaps. It is a pure function of its inputs.
// A snapshot that is not terminal is counted as failed so the totals always
// add up to the number of tasks.
func Summarize(runID string, user provisioning.UserProfile, snaps []provisioning.Snapshot) RunReport {
	r := RunReport{
		RunID:           runID,
		User:            user,
		SkippedByReason: make(map[provisioning.Reason]int),
		FailedByKind:    make(map[provisioning.ErrorKind]int),
		Tasks:           make([]TaskResult, 0, len(snaps)),
	}

	for _, s := range snaps {
		s = clone(s)
		switch s.Status {
		case provisioning.StatusSucceeded:
			r.Succeeded++
		case provisioning.StatusSkipped:
			r.Skipped++
			r.SkippedByReason[s.Reason]++
		case provisioning.StatusFailed:
			r.Failed++
			r.FailedByKind[s.ErrorKind]++
		default:
			r.Failed++
			r.FailedByKind[provisioning.KindDriver]++
			s.Errors = append(s.Errors, "task did not reach a terminal state: "+string(s.Status))
		}

		if s.StartedAt != nil && (r.StartedAt == nil || s.StartedAt.Before(*r.StartedAt)) {
			t := *s.StartedAt
			r.StartedAt = &t
		}
		if s.EndedAt != nil && (r.EndedAt == nil || s.EndedAt.After(*r.EndedAt)) {
			t := *s.EndedAt
			r.EndedAt = &t
		}

		tr := TaskResult{Snapshot: s}
		if d := s.Duration(); d > 0 {
			tr.Duration = d.Round(time.Millisecond).String()
		}
		r.Tasks = append(r.Tasks, tr)
	}
	return r
}

// Total returns the number of tasks in the run.
func (r RunReport) Total() int { return len(r.Tasks) }

// Consistent reports whether every task is counted exactly once.
func (r RunReport) Consistent() bool {
	return r.Succeeded+r.Failed+r.Skipped == r.Total()
}

// Duration is the wall time from the first task start to the last task end.
func (r RunReport) Duration() time.Duration {
	if r.StartedAt == nil || r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(*r.StartedAt)
}

// Task returns the result for vendorID.
func (r RunReport) Task(vendorID string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.VendorID == vendorID {
			return t, true
		}
	}
	return TaskResult{}, false
}

// Reasons returns the skip reasons present in the report, sorted.
func (r RunReport) Reasons() []provisioning.Reason {
	out := make([]provisioning.Reason, 0, len(r.SkippedByReason))
	for reason := range r.SkippedByReason {
		out = append(out, reason)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func clone(s provisioning.Snapshot) provisioning.Snapshot {
	s.Messages = append([]string{}, s.Messages...)
	s.Warnings = append([]string{}, s.Warnings...)
	s.Errors = append([]string{}, s.Errors...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		s.EndedAt = &t
	}
	s.Pending = nil
	return s
}
