package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS intake_runs (
	id            TEXT PRIMARY KEY,
	filename      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'submitted',
	job_id        TEXT NOT NULL DEFAULT '',
	fallback_used INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	registered_id TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_intake_runs_status ON intake_runs(status);
CREATE INDEX IF NOT EXISTS idx_intake_runs_created_at ON intake_runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, filename string) (*IntakeRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO intake_runs (id, filename, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, filename, string(RunStatusSubmitted), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &IntakeRun{
		ID:        id,
		Filename:  filename,
		Status:    RunStatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, runID string, status RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE intake_runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) SetJobID(ctx context.Context, runID, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE intake_runs SET job_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		jobID, string(RunStatusPolling), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set job id %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) MarkFallback(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE intake_runs SET fallback_used = 1, status = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusFallback), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark fallback %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) SetError(ctx context.Context, runID string, status RunStatus, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE intake_runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set error %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) SetRegistered(ctx context.Context, runID, registeredID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE intake_runs SET registered_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		registeredID, string(RunStatusRegistered), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set registered %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*IntakeRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, status, job_id, fallback_used, error, registered_id, created_at, updated_at
		 FROM intake_runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]IntakeRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, status, job_id, fallback_used, error, registered_id, created_at, updated_at
		 FROM intake_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []IntakeRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*IntakeRun, error) {
	var run IntakeRun
	var status string
	var fallback int
	if err := row.Scan(&run.ID, &run.Filename, &status, &run.JobID, &fallback,
		&run.Error, &run.RegisteredID, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.FallbackUsed = fallback != 0
	return &run, nil
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}
