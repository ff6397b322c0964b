// File: internal/runlog/journal.go
// Brief: SQLite journal of deploy runs, set phases, and stage outcomes.

package runlog

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	_ "modernc.org/sqlite"
)

const journalRelPath = ".setctl/runs.sqlite"

// Journal persists the progress of deploy runs so past runs can be listed
// and inspected after the fact.
type Journal struct {
	db    *sql.DB
	path  string
	runID string
}

// Open creates or opens the journal under the user's home directory. An
// explicit path overrides the default location.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, journalRelPath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db, path: path}
	if err := j.initSchema(ctx); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) initSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS setctl_runs (
  run_id TEXT PRIMARY KEY,
  namespace TEXT NOT NULL,
  sets_json TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at_ns INTEGER NOT NULL,
  updated_at_ns INTEGER NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS setctl_set_phases (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  set_name TEXT NOT NULL,
  phase TEXT NOT NULL,
  error TEXT NOT NULL,
  ts_ns INTEGER NOT NULL,
  FOREIGN KEY (run_id) REFERENCES setctl_runs(run_id) ON DELETE CASCADE
);`,
		`
CREATE TABLE IF NOT EXISTS setctl_stage_outcomes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  set_name TEXT NOT NULL,
  stage TEXT NOT NULL,
  error TEXT NOT NULL,
  ts_ns INTEGER NOT NULL,
  FOREIGN KEY (run_id) REFERENCES setctl_runs(run_id) ON DELETE CASCADE
);`,
		`CREATE INDEX IF NOT EXISTS idx_setctl_set_phases_run ON setctl_set_phases(run_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_setctl_stage_outcomes_run ON setctl_stage_outcomes(run_id, id);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// StartRun records a new run and makes it the journal's current run.
func (j *Journal) StartRun(ctx context.Context, namespace string, sets []string) (string, error) {
	setsJSON, err := json.Marshal(sets)
	if err != nil {
		return "", err
	}
	runID := newRunID()
	now := time.Now().UTC().UnixNano()
	_, err = j.db.ExecContext(ctx, `
INSERT INTO setctl_runs (run_id, namespace, sets_json, status, created_at_ns, updated_at_ns)
VALUES (?, ?, ?, ?, ?, ?)
`, runID, namespace, string(setsJSON), "running", now, now)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	j.runID = runID
	return runID, nil
}

// FinishRun closes out the current run with a final status.
func (j *Journal) FinishRun(ctx context.Context, runErr error) {
	if j == nil || j.runID == "" {
		return
	}
	status := "succeeded"
	if runErr != nil {
		status = "failed"
	}
	_, _ = j.db.ExecContext(ctx, `UPDATE setctl_runs SET status = ?, updated_at_ns = ? WHERE run_id = ?`,
		status, time.Now().UTC().UnixNano(), j.runID)
}

// SetPhase records a service set entering a phase, or failing in it.
func (j *Journal) SetPhase(ctx context.Context, set, phase string, err error) {
	if j == nil || j.runID == "" {
		return
	}
	_, _ = j.db.ExecContext(ctx, `
INSERT INTO setctl_set_phases (run_id, set_name, phase, error, ts_ns)
VALUES (?, ?, ?, ?, ?)
`, j.runID, set, phase, errString(err), time.Now().UTC().UnixNano())
	j.touch(ctx)
}

// StageOutcome records a finished stage.
func (j *Journal) StageOutcome(ctx context.Context, set, stage string, err error) {
	if j == nil || j.runID == "" {
		return
	}
	_, _ = j.db.ExecContext(ctx, `
INSERT INTO setctl_stage_outcomes (run_id, set_name, stage, error, ts_ns)
VALUES (?, ?, ?, ?, ?)
`, j.runID, set, stage, errString(err), time.Now().UTC().UnixNano())
	j.touch(ctx)
}

func (j *Journal) touch(ctx context.Context) {
	_, _ = j.db.ExecContext(ctx, `UPDATE setctl_runs SET updated_at_ns = ? WHERE run_id = ?`,
		time.Now().UTC().UnixNano(), j.runID)
}

// RunEntry is one row of the run index.
type RunEntry struct {
	RunID     string
	Namespace string
	Sets      []string
	Status    string
	StartedAt time.Time
	UpdatedAt time.Time
}

// ListRuns returns the most recent runs, newest first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT run_id, namespace, sets_json, status, created_at_ns, updated_at_ns
FROM setctl_runs
ORDER BY created_at_ns DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var e RunEntry
		var setsJSON string
		var created, updated int64
		if err := rows.Scan(&e.RunID, &e.Namespace, &setsJSON, &e.Status, &created, &updated); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(setsJSON), &e.Sets)
		e.StartedAt = time.Unix(0, created).UTC()
		e.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func newRunID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return time.Now().UTC().Format("20060102-150405") + "-" + hex.EncodeToString(buf)
}
