package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/nexus/internal/provisioning"
)

var (
	t0   = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	user = provisioning.UserProfile{DisplayName: "Jane Doe", Email: "jane@x.com"}
)

func at(d time.Duration) *time.Time {
	v := t0.Add(d)
	return &v
}

func sampleSnapshots() []provisioning.Snapshot {
	return []provisioning.Snapshot{
		{VendorID: "acme", Status: provisioning.StatusSucceeded, Identity: "jane2@x.com", StartedAt: at(0), EndedAt: at(90 * time.Second),
			Warnings: []string{"alternate email used: jane2@x.com"}},
		{VendorID: "globex", Status: provisioning.StatusFailed, ErrorKind: provisioning.KindChallengeTimeout, StartedAt: at(2 * time.Minute), EndedAt: at(7 * time.Minute),
			Errors: []string{"mfa challenge not completed within 5m0s"}},
		{VendorID: "initech", Status: provisioning.StatusSkipped, Reason: provisioning.ReasonDuplicateSkipped, StartedAt: at(8 * time.Minute), EndedAt: at(9 * time.Minute)},
		{VendorID: "hooli", Status: provisioning.StatusSkipped, Reason: provisioning.ReasonCancelled, EndedAt: at(10 * time.Minute)},
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	r := Summarize("run-1", user, sampleSnapshots())

	assert.Equal(t, 1, r.Succeeded)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 2, r.Skipped)
	assert.Equal(t, 4, r.Total())
	assert.True(t, r.Consistent())
	assert.Equal(t, 1, r.SkippedByReason[provisioning.ReasonDuplicateSkipped])
	assert.Equal(t, 1, r.SkippedByReason[provisioning.ReasonCancelled])
	assert.Equal(t, 1, r.FailedByKind[provisioning.KindChallengeTimeout])
	assert.Equal(t, []provisioning.Reason{provisioning.ReasonCancelled, provisioning.ReasonDuplicateSkipped}, r.Reasons())

	assert.Equal(t, t0, *r.StartedAt)
	assert.Equal(t, t0.Add(10*time.Minute), *r.EndedAt)
	assert.Equal(t, 10*time.Minute, r.Duration())

	acme, ok := r.Task("acme")
	require.True(t, ok)
	assert.Equal(t, "1m30s", acme.Duration)
	hooli, _ := r.Task("hooli")
	assert.Empty(t, hooli.Duration, "never-started tasks have no duration")
}

func TestSummarize_CountsAlwaysAddUp(t *testing.T) {
	t.Parallel()

	statuses := []provisioning.Status{
		provisioning.StatusSucceeded, provisioning.StatusFailed, provisioning.StatusSkipped,
		provisioning.StatusPending, provisioning.StatusRunning, provisioning.StatusAwaitingInput,
	}
	var snaps []provisioning.Snapshot
	for i := 0; i < 30; i++ {
		snaps = append(snaps, provisioning.Snapshot{VendorID: "v", Status: statuses[i%len(statuses)]})
		r := Summarize("run", user, snaps)
		assert.True(t, r.Consistent(), "len=%d", len(snaps))
		assert.Equal(t, len(snaps), r.Succeeded+r.Failed+r.Skipped)
	}

	r := Summarize("run", user, nil)
	assert.True(t, r.Consistent())
	assert.Zero(t, r.Total())
	assert.Nil(t, r.StartedAt)
}

func TestSummarize_DoesNotAliasInput(t *testing.T) {
	t.Parallel()

	snaps := sampleSnapshots()
	r := Summarize("run-1", user, snaps)

	snaps[0].Warnings[0] = "mutated"
	*snaps[0].StartedAt = t0.Add(time.Hour)

	assert.Equal(t, "alternate email used: jane2@x.com", r.Tasks[0].Warnings[0])
	assert.Equal(t, t0, *r.Tasks[0].StartedAt)
}

func TestSave(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "reports")

	r := Summarize("run-1", user, sampleSnapshots())
	p, err := Save(dir, r)
	require.NoError(t, err)
	assert.Equal(t, "nexus-20260504T080000Z-run-1.json", filepath.Base(p))

	data, err := os.ReadFile(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.EqualValues(t, 2, decoded["skipped"])
	tasks := decoded["tasks"].([]any)
	require.Len(t, tasks, 4)
	assert.Equal(t, "acme", tasks[0].(map[string]any)["vendor_id"])
	assert.Equal(t, "1m30s", tasks[0].(map[string]any)["duration"])
}

type fakeStore struct {
	bucket, key string
	data        []byte
	err         error
}

func (f *fakeStore) PutObject(_ context.Context, bucket, key string, data []byte) error {
	f.bucket, f.key, f.data = bucket, key, data
	return f.err
}

func TestUpload(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	r := Summarize("run-1", user, sampleSnapshots())
	key, err := Upload(context.Background(), store, "audit", "reports/", r)
	require.NoError(t, err)
	assert.Equal(t, "reports/nexus-20260504T080000Z-run-1.json", key)
	assert.Equal(t, "audit", store.bucket)
	assert.Contains(t, string(store.data), `"run_id": "run-1"`)

	store.err = errors.New("access denied")
	_, err = Upload(context.Background(), store, "audit", "reports", r)
	assert.ErrorContains(t, err, "failed to upload report")
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, Summarize("run-1", user, sampleSnapshots())))

	out := buf.String()
	assert.Contains(t, out, "Run run-1 for Jane Doe <jane@x.com>")
	assert.Contains(t, out, "Succeeded: 1  Failed: 1  Skipped: 2")
	assert.Contains(t, out, "ChallengeTimeoutError: mfa challenge not completed within 5m0s")
	assert.Contains(t, out, "duplicate_skipped")
	assert.Contains(t, out, "warning: acme: alternate email used: jane2@x.com")
}
