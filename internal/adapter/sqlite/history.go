// Package sqlite stores pipeline run history in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/mapviz/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	pipeline    TEXT NOT NULL,
	triggered_by TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	dataset     TEXT NOT NULL DEFAULT '',
	fetched     INTEGER NOT NULL DEFAULT 0,
	artifact    TEXT NOT NULL DEFAULT '',
	items       INTEGER NOT NULL DEFAULT 0,
	matched     INTEGER NOT NULL DEFAULT 0,
	unmatched   INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_pipeline_started ON runs(pipeline, started_at);
`

const runColumns = `id, pipeline, triggered_by, status, started_at, finished_at, dataset, fetched, artifact, items, matched, unmatched, error`

// History records pipeline runs. Safe for concurrent use.
type History struct {
	db *sql.DB
}

// Open opens or creates the history database at path. Use ":memory:" for a
// throwaway database.
func Open(path string) (*History, error) {
	if path == "" {
		return nil, errors.New("history database path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

// CheckReadiness pings the database.
func (h *History) CheckReadiness(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// RecordRun inserts a run, replacing an earlier record with the same ID.
func (h *History) RecordRun(ctx context.Context, run domain.Run) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline, run.Trigger, string(run.Status),
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
		run.Dataset, run.Fetched, run.Artifact,
		run.Items, run.Matched, run.Unmatched, run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. An empty pipeline name
// returns runs of every pipeline.
func (h *History) Recent(ctx context.Context, pipeline string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if pipeline != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipeline)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LastSuccess returns the most recent successful run of a pipeline.
func (h *History) LastSuccess(ctx context.Context, pipeline string) (domain.Run, bool, error) {
	row := h.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE pipeline = ? AND status = ? ORDER BY started_at DESC LIMIT 1`,
		pipeline, string(domain.RunSuccess),
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, false, nil
	}
	if err != nil {
		return domain.Run{}, false, err
	}
	return run, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (domain.Run, error) {
	var (
		run               domain.Run
		status            string
		started, finished int64
	)
	err := s.Scan(&run.ID, &run.Pipeline, &run.Trigger, &status, &started, &finished,
		&run.Dataset, &run.Fetched, &run.Artifact, &run.Items, &run.Matched, &run.Unmatched, &run.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Run{}, err
		}
		return domain.Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	run.StartedAt = time.Unix(0, started).UTC()
	run.FinishedAt = time.Unix(0, finished).UTC()
	return run, nil
}
