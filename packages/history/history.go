// Package history keeps an on-disk record of runs in a SQLite database.
// The notification policy reads it to detect recoveries.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/apiregress/packages/core/runner"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	started_at  TEXT NOT NULL,
	collection  TEXT NOT NULL,
	source      TEXT NOT NULL,
	total       INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	errored     INTEGER NOT NULL,
	no_result   INTEGER NOT NULL,
	fatal       TEXT NOT NULL,
	succeeded   INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS case_results (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	case_id        TEXT NOT NULL,
	label          TEXT NOT NULL,
	classification TEXT NOT NULL,
	actual_status  INTEGER NOT NULL,
	detail         TEXT NOT NULL,
	duration_ms    INTEGER NOT NULL,
	PRIMARY KEY (run_id, case_id)
);
`

// Run is one recorded run
type Run struct {
	ID         string
	StartedAt  time.Time
	Collection string
	Source     string
	Total      int
	Passed     int
	Failed     int
	Errored    int
	NoResult   int
	Fatal      string
	Succeeded  bool
	Duration   time.Duration
}

// CaseResult is the recorded outcome of one case in a run
type CaseResult struct {
	CaseID         string
	Label          string
	Classification string
	ActualStatus   int
	Detail         string
	Duration       time.Duration
}

// Store represents a history database
type Store struct {
	db           *sql.DB
	path         string
	queryTimeout time.Duration
}

// Open opens or creates the history database at path. The sqlite:// and
// sqlite: prefixes are accepted.
func Open(path string) (*Store, error) {
	path = dataSource(path)
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers on the file.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	return &Store{
		db:           db,
		path:         path,
		queryTimeout: 30 * time.Second,
	}, nil
}

// dataSource strips the sqlite scheme prefixes from a connection string
func dataSource(connStr string) string {
	connStr = strings.TrimSpace(connStr)
	if strings.HasPrefix(connStr, "sqlite://") {
		return strings.TrimPrefix(connStr, "sqlite://")
	}
	return strings.TrimPrefix(connStr, "sqlite:")
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores a run and its per-case results in one transaction and
// returns the generated run id. runErr is the error that aborted the run.
func (s *Store) RecordRun(ctx context.Context, res *runner.Result, runErr error) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	run := Run{ID: uuid.NewString(), StartedAt: time.Now()}
	if runErr != nil {
		run.Fatal = runErr.Error()
	}
	if res != nil {
		c := res.Counts()
		run.Collection = res.CollectionName
		run.Source = res.Source
		run.Total = c.Total
		run.Passed = c.Passed
		run.Failed = c.Failed
		run.Errored = c.Errored
		run.NoResult = c.NoResult
		run.Duration = res.Duration
		if !res.StartedAt.IsZero() {
			run.StartedAt = res.StartedAt
		}
		run.Succeeded = runErr == nil && c.OK()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, started_at, collection, source, total, passed, failed, errored, no_result, fatal, succeeded, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), run.Collection, run.Source,
		run.Total, run.Passed, run.Failed, run.Errored, run.NoResult,
		run.Fatal, run.Succeeded, run.Duration.Milliseconds())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	if res != nil && res.Run != nil {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO case_results
			(run_id, case_id, label, classification, actual_status, detail, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("failed to prepare case insert: %w", err)
		}
		defer stmt.Close()

		for _, tc := range res.Cases {
			r, ok := res.Run.Result(tc.ID)
			if !ok {
				continue
			}
			if _, err := stmt.ExecContext(ctx, run.ID, tc.ID, tc.DisplayName(), string(r.Classification),
				r.ActualStatus, r.Detail, r.Duration.Milliseconds()); err != nil {
				return "", fmt.Errorf("failed to insert case %s: %w", tc.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// LastRunSucceeded reports whether the most recent recorded run succeeded.
// found is false when no run was recorded yet.
func (s *Store) LastRunSucceeded(ctx context.Context) (succeeded bool, found bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	err = s.db.QueryRowContext(ctx, `SELECT succeeded FROM runs ORDER BY seq DESC LIMIT 1`).Scan(&succeeded)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("query failed: %w", err)
	}
	return succeeded, true, nil
}

// Runs returns up to limit runs, newest first
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at, collection, source, total, passed, failed,
		errored, no_result, fatal, succeeded, duration_ms FROM runs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			startedAt string
			ms        int64
		)
		if err := rows.Scan(&r.ID, &startedAt, &r.Collection, &r.Source, &r.Total, &r.Passed, &r.Failed,
			&r.Errored, &r.NoResult, &r.Fatal, &r.Succeeded, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Cases returns the recorded case results of a run in insertion order
func (s *Store) Cases(ctx context.Context, runID string) ([]CaseResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT case_id, label, classification, actual_status, detail, duration_ms
		FROM case_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []CaseResult
	for rows.Next() {
		var (
			c  CaseResult
			ms int64
		)
		if err := rows.Scan(&c.CaseID, &c.Label, &c.Classification, &c.ActualStatus, &c.Detail, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		c.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
