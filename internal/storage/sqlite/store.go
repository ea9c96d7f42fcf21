// Package sqlite keeps a local history of runs and their page results in an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/techscan/internal/crawler"
)

// Store writes run history to a SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

var _ crawler.ResultStore = (*Store)(nil)

// Open opens or creates the database at path, enabling WAL and creating the
// schema when missing.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("results.sqlite_path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, path: path}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *Store) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		workers INTEGER NOT NULL,
		urls INTEGER NOT NULL,
		captured INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		result_path TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS page_results (
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		technologies TEXT NOT NULL,
		capture_object TEXT NOT NULL DEFAULT '',
		capture_bytes INTEGER NOT NULL DEFAULT 0,
		capture_sha256 TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_page_results_url ON page_results(url);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Name identifies the sink in logs and metrics.
func (*Store) Name() string { return "sqlite" }

// Write implements the dispatcher sink contract.
func (s *Store) Write(ctx context.Context, summary crawler.RunSummary, results crawler.AggregateResult) error {
	return s.SaveRun(ctx, summary, results)
}

// SaveRun records the run and its page results in one transaction.
func (s *Store) SaveRun(ctx context.Context, summary crawler.RunSummary, results crawler.AggregateResult) (err error) {
	if summary.RunID == "" {
		return errors.New("run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, started_at, finished_at, duration_ms, workers, urls, captured, failed, result_path)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		summary.StartedAt.UTC().Format(time.RFC3339Nano),
		summary.FinishedAt.UTC().Format(time.RFC3339Nano),
		summary.Duration.Milliseconds(),
		summary.Workers,
		summary.URLs,
		summary.Captured,
		summary.Failed,
		summary.ResultPath,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO page_results (run_id, position, url, technologies, capture_object, capture_bytes, capture_sha256, status_code)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare page insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range results {
		techs := r.Technologies
		if techs == nil {
			techs = []string{}
		}
		techsJSON, mErr := json.Marshal(techs)
		if mErr != nil {
			return fmt.Errorf("serialize technologies: %w", mErr)
		}
		if _, err = stmt.ExecContext(ctx,
			summary.RunID,
			i,
			r.URL,
			string(techsJSON),
			r.Capture.Object,
			r.Capture.Bytes,
			r.Capture.SHA256,
			r.Capture.StatusCode,
		); err != nil {
			return fmt.Errorf("insert page result %s: %w", r.URL, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunRecord is a stored run summary.
type RunRecord struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Workers  int
	URLs     int
	Captured int
	Failed   int
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT run_id, started_at, duration_ms, workers, urls, captured, failed
	FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		var (
			rec        RunRecord
			started    string
			durationMS int64
		)
		if err := rows.Scan(&rec.RunID, &started, &durationMS, &rec.Workers, &rec.URLs, &rec.Captured, &rec.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Started, _ = time.Parse(time.RFC3339Nano, started)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// PageResults returns the stored results of a run in their original order.
func (s *Store) PageResults(ctx context.Context, runID string) (crawler.AggregateResult, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT url, technologies, capture_object, capture_bytes, capture_sha256, status_code
	FROM page_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query page results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := crawler.AggregateResult{}
	for rows.Next() {
		var (
			r         crawler.PageResult
			techsJSON string
		)
		if err := rows.Scan(&r.URL, &techsJSON, &r.Capture.Object, &r.Capture.Bytes, &r.Capture.SHA256, &r.Capture.StatusCode); err != nil {
			return nil, fmt.Errorf("scan page result: %w", err)
		}
		if err := json.Unmarshal([]byte(techsJSON), &r.Technologies); err != nil {
			return nil, fmt.Errorf("parse technologies for %s: %w", r.URL, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page results: %w", err)
	}
	return out, nil
}
