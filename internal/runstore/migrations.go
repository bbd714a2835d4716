package runstore

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    user_name TEXT,
    user_email TEXT,
    state TEXT NOT NULL DEFAULT 'running',
    started_at TEXT NOT NULL,
    finished_at TEXT,
    succeeded INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    report_path TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS tasks (
    run_id TEXT NOT NULL REFERENCES runs(id),
    position INTEGER NOT NULL,
    vendor_id TEXT NOT NULL,
    status TEXT NOT NULL,
    reason TEXT,
    error_kind TEXT,
    identity TEXT,
    progress INTEGER DEFAULT 0,
    seq INTEGER DEFAULT 0,
    snapshot TEXT NOT NULL,
    PRIMARY KEY (run_id, vendor_id)
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`
