// Package runstore persists run history and task snapshots in SQLite.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/imamik/nexus/internal/provisioning"
	"github.com/imamik/nexus/internal/provisioning/report"
)

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run states.
const (
	StateRunning  = "running"
	StateFinished = "finished"
)

const timeLayout = time.RFC3339Nano

// Store provides SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID         string
	UserName   string
	UserEmail  string
	State      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Succeeded  int
	Failed     int
	Skipped    int
	ReportPath string
}

// New opens (and migrates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases and write ordering consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records a new run with its initial snapshots.
func (s *Store) BeginRun(ctx context.Context, runID string, user provisioning.UserProfile, startedAt time.Time, snaps []provisioning.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, user_name, user_email, state, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, user.DisplayName, user.Email, StateRunning, startedAt.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i, snap := range snaps {
		if err := upsertTask(ctx, tx, i, snap); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordSnapshot stores snap unless a newer snapshot of the task is stored.
func (s *Store) RecordSnapshot(ctx context.Context, snap provisioning.Snapshot) error {
	return upsertTask(ctx, s.db, 0, snap)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// upsertTask only uses position when the row is inserted.
func upsertTask(ctx context.Context, db execer, position int, snap provisioning.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO tasks (run_id, position, vendor_id, status, reason, error_kind, identity, progress, seq, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, vendor_id) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			error_kind = excluded.error_kind,
			identity = excluded.identity,
			progress = excluded.progress,
			seq = excluded.seq,
			snapshot = excluded.snapshot
		WHERE excluded.seq >= tasks.seq
	`,
		snap.RunID,
		position,
		snap.VendorID,
		string(snap.Status),
		string(snap.Reason),
		string(snap.ErrorKind),
		snap.Identity,
		snap.Progress,
		int64(snap.Seq),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("recording snapshot for %s: %w", snap.VendorID, err)
	}
	return nil
}

// FinishRun stores the final report counts and task snapshots.
func (s *Store) FinishRun(ctx context.Context, rep report.RunReport, reportPath string, finishedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET state = ?, finished_at = ?, succeeded = ?, failed = ?, skipped = ?, report_path = ?
		WHERE id = ?
	`, StateFinished, finishedAt.UTC().Format(timeLayout), rep.Succeeded, rep.Failed, rep.Skipped, reportPath, rep.RunID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, rep.RunID)
	}

	for i, t := range rep.Tasks {
		if err := upsertTask(ctx, tx, i, t.Snapshot); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs first. A limit of zero lists all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT id, user_name, user_email, state, started_at, finished_at, succeeded, failed, skipped, report_path
		FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a run and its task snapshots in request order.
func (s *Store) GetRun(ctx context.Context, runID string) (RunSummary, []provisioning.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_name, user_email, state, started_at, finished_at, succeeded, failed, skipped, report_path
		FROM runs WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return RunSummary{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT snapshot FROM tasks WHERE run_id = ? ORDER BY position, vendor_id`, runID)
	if err != nil {
		return RunSummary{}, nil, err
	}
	defer rows.Close()

	var snaps []provisioning.Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return RunSummary{}, nil, err
		}
		var snap provisioning.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return RunSummary{}, nil, fmt.Errorf("decoding snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return run, snaps, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunSummary, error) {
	var (
		r                           RunSummary
		name, email, finished, path sql.NullString
		started                     string
	)
	if err := row.Scan(&r.ID, &name, &email, &r.State, &started, &finished, &r.Succeeded, &r.Failed, &r.Skipped, &path); err != nil {
		return RunSummary{}, err
	}
	r.UserName = name.String
	r.UserEmail = email.String
	r.ReportPath = path.String

	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return RunSummary{}, fmt.Errorf("parsing started_at: %w", err)
	}
	r.StartedAt = t
	if finished.Valid && finished.String != "" {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return RunSummary{}, fmt.Errorf("parsing finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return r, nil
}
