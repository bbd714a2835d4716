package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/provisioning/report"
)

var jane = provisioning.UserProfile{DisplayName: "Jane Doe", Email: "jane@x.com"}

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func pending(runID string, ids ...string) []provisioning.Snapshot {
	var out []provisioning.Snapshot
	for _, id := range ids {
		out = append(out, provisioning.Snapshot{RunID: runID, VendorID: id, Status: provisioning.StatusPending})
	}
	return out
}

func TestStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.BeginRun(ctx, "run-1", jane, start, pending("run-1", "globex", "acme")))

	running := provisioning.Snapshot{RunID: "run-1", VendorID: "globex", Status: provisioning.StatusRunning, Progress: 30, Seq: 3}
	require.NoError(t, store.RecordSnapshot(ctx, running))

	stale := running
	stale.Progress, stale.Seq = 5, 1
	require.NoError(t, store.RecordSnapshot(ctx, stale))

	run, snaps, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, run.State)
	assert.Equal(t, start, run.StartedAt)
	assert.Nil(t, run.FinishedAt)
	require.Len(t, snaps, 2)
	assert.Equal(t, "globex", snaps[0].VendorID, "request order is kept")
	assert.Equal(t, 30, snaps[0].Progress, "older snapshots never overwrite newer ones")

	end := start.Add(5 * time.Minute)
	rep := report.Summarize("run-1", jane, []provisioning.Snapshot{
		{RunID: "run-1", VendorID: "globex", Status: provisioning.StatusSucceeded, Progress: 100, Seq: 9},
		{RunID: "run-1", VendorID: "acme", Status: provisioning.StatusSkipped, Reason: provisioning.ReasonCancelled, Seq: 2},
	})
	require.NoError(t, store.FinishRun(ctx, rep, "reports/run-1.json", end))

	run, snaps, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StateFinished, run.State)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, end, *run.FinishedAt)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, "reports/run-1.json", run.ReportPath)
	assert.Equal(t, "Jane Doe", run.UserName)
	assert.Equal(t, provisioning.StatusSucceeded, snaps[0].Status)
	assert.Equal(t, provisioning.ReasonCancelled, snaps[1].Reason)
}

func TestStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, store.BeginRun(ctx, id, jane, base.Add(time.Duration(i)*time.Hour), pending(id, "acme")))
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-c", runs[0].ID, "newest first")

	runs, err = store.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, _, err := store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.FinishRun(ctx, report.Summarize("missing", jane, nil), "", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DuplicateRunRejected(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now()

	require.NoError(t, store.BeginRun(ctx, "run-1", jane, now, pending("run-1", "acme")))
	assert.Error(t, store.BeginRun(ctx, "run-1", jane, now, nil))
}

func TestNew_InMemory(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.BeginRun(context.Background(), "run-1", jane, time.Now(), nil))
	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
