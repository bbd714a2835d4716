package benchmarks

import (
	"testing"
	"time"

	"github.com/imamik/nexus/internal/provisioning"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func pendingTasks(n int) []provisioning.Snapshot {
	out := make([]provisioning.Snapshot, n)
	for i := range out {
		out[i] = provisioning.Snapshot{Status: provisioning.StatusPending}
	}
	return out
}

func TestEstimateRemaining_NoHistory(t *testing.T) {
	remaining := EstimateRemaining(pendingTasks(3), now)

	// 3 * 90s
	expected := 270 * time.Second
	if remaining != expected {
		t.Errorf("expected %v, got %v", expected, remaining)
	}
}

func TestEstimateRemaining_InFlight(t *testing.T) {
	snaps := append([]provisioning.Snapshot{
		{Status: provisioning.StatusRunning, StartedAt: at(30 * time.Second)},
	}, pendingTasks(1)...)

	// (90-30) + 90 = 150s
	expected := 150 * time.Second
	if remaining := EstimateRemaining(snaps, now); remaining != expected {
		t.Errorf("expected %v, got %v", expected, remaining)
	}
}

func TestEstimateRemaining_SlowHistory(t *testing.T) {
	end := now.Add(-time.Minute)
	snaps := append([]provisioning.Snapshot{
		{Status: provisioning.StatusSucceeded, StartedAt: at(4 * time.Minute), EndedAt: &end},
	}, pendingTasks(2)...)

	// Finished task took 180s against 90s => scale 2: 2 * 180s
	expected := 360 * time.Second
	if remaining := EstimateRemaining(snaps, now); remaining != expected {
		t.Errorf("expected %v, got %v", expected, remaining)
	}
}

func TestEstimateRemaining_Overrun(t *testing.T) {
	snaps := append([]provisioning.Snapshot{
		{Status: provisioning.StatusAwaitingInput, StartedAt: at(180 * time.Second)},
	}, pendingTasks(1)...)

	// Overrun scales future predictions: 180s/90s = 2x
	// max(0, 180-180)=0 + 90*2 = 180s
	expected := 180 * time.Second
	if remaining := EstimateRemaining(snaps, now); remaining != expected {
		t.Errorf("expected %v, got %v", expected, remaining)
	}
}

func TestPerformanceScale(t *testing.T) {
	fast := now.Add(-50 * time.Second)
	snaps := []provisioning.Snapshot{
		{Status: provisioning.StatusSucceeded, StartedAt: at(60 * time.Second), EndedAt: &fast},
	}
	// 10s against 90s clamps at the lower bound
	if scale := PerformanceScale(snaps, now); scale != minScale {
		t.Errorf("expected %v, got %v", minScale, scale)
	}

	snaps = []provisioning.Snapshot{
		{Status: provisioning.StatusRunning, StartedAt: at(time.Hour)},
	}
	if scale := PerformanceScale(snaps, now); scale != maxScale {
		t.Errorf("expected %v, got %v", maxScale, scale)
	}

	if scale := PerformanceScale(pendingTasks(2), now); scale != 1.0 {
		t.Errorf("expected 1.0, got %v", scale)
	}
}

func TestProgress(t *testing.T) {
	if p := Progress(nil); p != 0 {
		t.Errorf("expected 0, got %v", p)
	}
	snaps := []provisioning.Snapshot{
		{Status: provisioning.StatusSucceeded},
		{Status: provisioning.StatusSkipped},
		{Status: provisioning.StatusRunning},
		{Status: provisioning.StatusPending},
	}
	if p := Progress(snaps); p != 0.5 {
		t.Errorf("expected 0.5, got %v", p)
	}
}
