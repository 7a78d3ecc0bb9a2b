package state

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentmesh/agentmesh/internal/core"
)

// History records finished runs in a local sqlite database so past
// outcomes survive across invocations.
type History struct {
	db *sql.DB
}

const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	steps        INTEGER NOT NULL,
	succeeded    INTEGER NOT NULL,
	blocked      INTEGER NOT NULL,
	success_rate REAL NOT NULL,
	started_at   TEXT NOT NULL,
	completed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, core.ErrState("HISTORY_OPEN", "cannot open history database").WithCause(err)
	}
	// sqlite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, core.ErrState("HISTORY_SCHEMA", "cannot initialize history schema").WithCause(err)
	}
	return &History{db: db}, nil
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}

// RunRecord is one row of run history.
type RunRecord struct {
	RunID       string
	Status      core.RunStatus
	Steps       int
	Succeeded   int
	Blocked     int
	SuccessRate float64
	StartedAt   time.Time
	CompletedAt time.Time
}

// Record inserts a finished run. Re-recording a run id replaces the row.
func (h *History) Record(ctx context.Context, summary *core.RunSummary) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(run_id, status, steps, succeeded, blocked, success_rate, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		string(summary.Status),
		len(summary.Tasks),
		summary.Succeeded,
		summary.Blocked,
		summary.SuccessRate,
		summary.StartedAt.UTC().Format(time.RFC3339Nano),
		summary.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return core.ErrState("HISTORY_WRITE", "cannot record run "+summary.RunID).WithCause(err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (h *History) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT run_id, status, steps, succeeded, blocked, success_rate, started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, core.ErrState("HISTORY_READ", "cannot list runs").WithCause(err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns one run by id.
func (h *History) Get(ctx context.Context, runID string) (*RunRecord, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT run_id, status, steps, succeeded, blocked, success_rate, started_at, completed_at
		FROM runs WHERE run_id = ?`, runID)

	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("run", runID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var status, started, completed string
	if err := row.Scan(&rec.RunID, &status, &rec.Steps, &rec.Succeeded, &rec.Blocked, &rec.SuccessRate, &started, &completed); err != nil {
		return rec, err
	}
	rec.Status = core.RunStatus(status)
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	rec.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed)
	return rec, nil
}
