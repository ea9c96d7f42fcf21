// Package postgres persists run results in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/techscan/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN string
	// Table holds one row per page result; runs go to Table + "_runs".
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// ResultStore writes run summaries and page results.
type ResultStore struct {
	pool  pool
	table string
}

var _ crawler.ResultStore = (*ResultStore)(nil)

// New connects to Postgres and creates the tables when missing.
func New(ctx context.Context, cfg Config) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("results.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*ResultStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "page_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ResultStore{pool: p, table: table}, nil
}

func (s *ResultStore) runsTable() string { return s.table + "_runs" }

// Migrate creates the result tables if they do not exist.
func (s *ResultStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	run_id      UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	workers     INTEGER NOT NULL,
	urls        INTEGER NOT NULL,
	captured    INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	result_path TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS %[2]s (
	run_id         UUID NOT NULL REFERENCES %[1]s (run_id) ON DELETE CASCADE,
	position       INTEGER NOT NULL,
	url            TEXT NOT NULL,
	technologies   TEXT[] NOT NULL,
	capture_object TEXT NOT NULL DEFAULT '',
	capture_uri    TEXT NOT NULL DEFAULT '',
	capture_bytes  BIGINT NOT NULL DEFAULT 0,
	capture_sha256 TEXT NOT NULL DEFAULT '',
	status_code    INTEGER NOT NULL DEFAULT 0,
	captured_at    TIMESTAMPTZ,
	PRIMARY KEY (run_id, position)
);`, s.runsTable(), s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create result tables: %w", err)
	}
	return nil
}

// Name identifies the sink in logs and metrics.
func (*ResultStore) Name() string { return "postgres" }

// Write implements the dispatcher sink contract.
func (s *ResultStore) Write(ctx context.Context, summary crawler.RunSummary, results crawler.AggregateResult) error {
	return s.SaveRun(ctx, summary, results)
}

// SaveRun inserts the run and its page rows in one transaction.
func (s *ResultStore) SaveRun(ctx context.Context, summary crawler.RunSummary, results crawler.AggregateResult) (err error) {
	if s == nil || s.pool == nil {
		return errors.New("result store is not configured")
	}
	if summary.RunID == "" {
		return errors.New("run id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	runQuery := fmt.Sprintf(`
INSERT INTO %s (run_id, started_at, finished_at, workers, urls, captured, failed, result_path)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, s.runsTable())
	if _, err = tx.Exec(ctx, runQuery,
		summary.RunID,
		summary.StartedAt,
		summary.FinishedAt,
		summary.Workers,
		summary.URLs,
		summary.Captured,
		summary.Failed,
		summary.ResultPath,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	pageQuery := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	position,
	url,
	technologies,
	capture_object,
	capture_uri,
	capture_bytes,
	capture_sha256,
	status_code,
	captured_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.table)
	for i, r := range results {
		techs := r.Technologies
		if techs == nil {
			techs = []string{}
		}
		var capturedAt *time.Time
		if !r.Capture.CapturedAt.IsZero() {
			ts := r.Capture.CapturedAt
			capturedAt = &ts
		}
		if _, err = tx.Exec(ctx, pageQuery,
			summary.RunID,
			i,
			r.URL,
			techs,
			r.Capture.Object,
			r.Capture.URI,
			r.Capture.Bytes,
			r.Capture.SHA256,
			r.Capture.StatusCode,
			capturedAt,
		); err != nil {
			return fmt.Errorf("insert page result %s: %w", r.URL, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
