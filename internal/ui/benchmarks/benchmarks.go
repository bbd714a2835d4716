// Package benchmarks provides timing estimates for vendor provisioning runs.
package benchmarks

import (
	"time"

	"github.com/imamik/nexus/internal/provisioning"
)

// DefaultTaskDuration is the median duration of one vendor task without an
// interactive challenge.
const DefaultTaskDuration = 90 * time.Second

// Scale bounds keep a single slow or instant vendor from distorting the ETA.
const (
	minScale = 0.5
	maxScale = 3.0
)

// EstimateRemaining calculates the estimated time remaining for a run from
// the latest snapshot of each of its tasks.
func EstimateRemaining(snaps []provisioning.Snapshot, now time.Time) time.Duration {
	return EstimateRemainingWithScale(snaps, now, PerformanceScale(snaps, now))
}

// EstimateRemainingWithScale calculates ETA while applying a performance scale factor.
func EstimateRemainingWithScale(snaps []provisioning.Snapshot, now time.Time, scale float64) time.Duration {
	expected := time.Duration(float64(DefaultTaskDuration) * scale)

	var remaining time.Duration
	for _, s := range snaps {
		switch {
		case s.Status.IsTerminal():
		case s.StartedAt == nil:
			remaining += expected
		default:
			// In-flight task: max(0, expected - elapsed)
			if elapsed := now.Sub(*s.StartedAt); expected > elapsed {
				remaining += expected - elapsed
			}
		}
	}
	return remaining
}

// PerformanceScale derives a speed multiplier from observed-vs-expected durations.
// Example: two finished tasks took 3m each => scale=2.0 (future ETAs are doubled).
func PerformanceScale(snaps []provisioning.Snapshot, now time.Time) float64 {
	var expectedTotal, actualTotal time.Duration

	for _, s := range snaps {
		if s.StartedAt == nil {
			continue
		}
		if s.EndedAt != nil {
			expectedTotal += DefaultTaskDuration
			actualTotal += s.EndedAt.Sub(*s.StartedAt)
			continue
		}
		// An overrunning in-flight task is folded in immediately so the ETA adapts quickly.
		if elapsed := now.Sub(*s.StartedAt); elapsed > DefaultTaskDuration {
			expectedTotal += DefaultTaskDuration
			actualTotal += elapsed
		}
	}

	if expectedTotal == 0 || actualTotal == 0 {
		return 1.0
	}

	scale := float64(actualTotal) / float64(expectedTotal)
	if scale < minScale {
		return minScale
	}
	if scale > maxScale {
		return maxScale
	}
	return scale
}

// Progress returns the fraction of tasks that are terminal, in [0, 1].
func Progress(snaps []provisioning.Snapshot) float64 {
	if len(snaps) == 0 {
		return 0
	}
	done := 0
	for _, s := range snaps {
		if s.Status.IsTerminal() {
			done++
		}
	}
	return float64(done) / float64(len(snaps))
}
