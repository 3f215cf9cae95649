// Package postgres persists crawl batches and their per-URL outcomes.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
)

// DefaultTable holds one row per crawled URL; batches go to DefaultTable+"_batches".
const DefaultTable = "hreflang_results"

// Row status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and target table.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// Batch describes one completed crawl.
type Batch struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	ReportURI  string
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// ResultStore writes batches and results in one transaction per batch.
type ResultStore struct {
	pool  pool
	table string
}

// NewResultStore connects to Postgres using cfg.
func NewResultStore(ctx context.Context, cfg Config) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ResultStore{pool: p, table: table}, nil
}

// NewResultStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewResultStoreWithPool(p pool, table string) (*ResultStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ResultStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *ResultStore) batchTable() string {
	return s.table + "_batches"
}

// EnsureSchema creates both tables when they do not exist.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	batch_id    TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	report_uri  TEXT NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS %[2]s (
	batch_id  TEXT NOT NULL REFERENCES %[1]s (batch_id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	url       TEXT NOT NULL,
	status    TEXT NOT NULL,
	hreflangs JSONB,
	error     TEXT,
	PRIMARY KEY (batch_id, url)
)`, s.batchTable(), s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveBatch inserts the batch row and one row per recorded URL, in table order.
func (s *ResultStore) SaveBatch(ctx context.Context, batch Batch, table *crawler.ResultTable) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("result store is not configured")
	}
	if batch.ID == "" {
		return fmt.Errorf("batch id is required")
	}
	if table == nil {
		table = crawler.NewResultTable(nil)
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

	succeeded, failed := table.Counts()
	batchSQL := fmt.Sprintf(`INSERT INTO %s (batch_id, source, started_at, finished_at, report_uri, succeeded, failed)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, s.batchTable())
	if _, err = tx.Exec(ctx, batchSQL,
		batch.ID, batch.Source, batch.StartedAt, batch.FinishedAt, batch.ReportURI, succeeded, failed,
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	rowSQL := fmt.Sprintf(`INSERT INTO %s (batch_id, position, url, status, hreflangs, error)
VALUES ($1,$2,$3,$4,$5,$6)`, s.table)
	for i, url := range table.URLs() {
		outcome, _ := table.Get(url)
		status, links, errMsg, encErr := rowValues(outcome)
		if encErr != nil {
			err = fmt.Errorf("encode hreflangs for %s: %w", url, encErr)
			return err
		}
		if _, err = tx.Exec(ctx, rowSQL, batch.ID, i, url, status, links, errMsg); err != nil {
			return fmt.Errorf("insert result %s: %w", url, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func rowValues(o crawler.Outcome) (status string, links []byte, errMsg *string, err error) {
	if o.Failed() {
		msg := o.Err().Error()
		return StatusFailed, nil, &msg, nil
	}
	m := o.Hreflangs()
	if m == nil {
		m = crawler.HreflangMap{}
	}
	links, err = json.Marshal(m)
	if err != nil {
		return "", nil, nil, err
	}
	return StatusOK, links, nil, nil
}
