// Package postgres provides a Postgres-backed item store.
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

	"github.com/JakeFAU/item-crawler/internal/crawler"
)

const (
	defaultTable       = "items"
	uniqueViolationSQL = "23505"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for item rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ItemStore writes item rows into Postgres.
type ItemStore struct {
	pool  pool
	table string
}

var _ crawler.Store = (*ItemStore)(nil)

// New creates a Postgres-backed ItemStore using the provided config.
func New(ctx context.Context, cfg Config) (*ItemStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn: %w", crawler.ErrNotConfigured)
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
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &ItemStore{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*ItemStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ItemStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the item table when it does not exist.
func (s *ItemStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id   BIGINT PRIMARY KEY,
	json TEXT NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// LoadIDs returns every persisted id in ascending order.
func (s *ItemStore) LoadIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY id", s.table))
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect ids: %w", err)
	}
	return ids, nil
}

// FlushBatch inserts the batch with a single statement, which Postgres
// applies atomically.
func (s *ItemStore) FlushBatch(ctx context.Context, batch []crawler.Record) error {
	if len(batch) == 0 {
		return crawler.ErrEmptyBatch
	}
	ids := make([]int64, len(batch))
	docs := make([]string, len(batch))
	for i, rec := range batch {
		ids[i] = rec.ID
		docs[i] = rec.JSON
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (id, json) SELECT * FROM unnest($1::bigint[], $2::text[])", s.table)
	if _, err := s.pool.Exec(ctx, query, ids, docs); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationSQL {
			return fmt.Errorf("insert batch: %w: %s", crawler.ErrDuplicateID, pgErr.Detail)
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// Stats reports the row count and highest id, -1 when empty.
func (s *ItemStore) Stats(ctx context.Context) (crawler.StoreStats, error) {
	var stats crawler.StoreStats
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*), COALESCE(MAX(id), -1) FROM %s", s.table))
	if err := row.Scan(&stats.Items, &stats.HighestID); err != nil {
		return crawler.StoreStats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

// Close releases the underlying pool resources.
func (s *ItemStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
