package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one finished pipeline pass over an item. Runs outlive queue resets
// and survive reset-failed, so the history answers "what happened to this
// identity" even after the live records are gone.
type Run struct {
	ID           int64
	RequestID    string
	Identity     string
	Batch        string
	Status       string
	ErrorMessage string
	Frames       int
	BytesIn      int64
	BytesOut     int64
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists run history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database in dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("history directory is required")
	}
	dbPath := filepath.Join(dir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun appends a finished run.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.Identity == "" {
		return errors.New("run identity is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (
            request_id, identity, batch, status, error_message,
            frames, bytes_in, bytes_out, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RequestID,
		run.Identity,
		nullableString(run.Batch),
		run.Status,
		nullableString(run.ErrorMessage),
		run.Frames,
		run.BytesIn,
		run.BytesOut,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the most recently finished runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY finished_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ForIdentity returns every recorded run for one identity, newest first.
func (s *Store) ForIdentity(ctx context.Context, identity string) ([]Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+` FROM runs WHERE identity = ? ORDER BY finished_at DESC, id DESC`,
		identity,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs by identity: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

const runColumns = "id, request_id, identity, batch, status, error_message, frames, bytes_in, bytes_out, started_at, finished_at"

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var (
			run         Run
			batch       sql.NullString
			errMessage  sql.NullString
			startedRaw  string
			finishedRaw string
		)
		if err := rows.Scan(
			&run.ID,
			&run.RequestID,
			&run.Identity,
			&batch,
			&run.Status,
			&errMessage,
			&run.Frames,
			&run.BytesIn,
			&run.BytesOut,
			&startedRaw,
			&finishedRaw,
		); err != nil {
			return nil, err
		}
		run.Batch = batch.String
		run.ErrorMessage = errMessage.String
		if started, err := time.Parse(time.RFC3339Nano, startedRaw); err == nil {
			run.StartedAt = started
		}
		if finished, err := time.Parse(time.RFC3339Nano, finishedRaw); err == nil {
			run.FinishedAt = finished
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
