// Package sqlite stores items in a single SQLite table using the pure-Go
// modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JakeFAU/item-crawler/internal/crawler"
)

const defaultTable = "items"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls where the database lives.
type Config struct {
	Path   string
	Table  string
	Logger *zap.Logger
}

// Store is a crawler.Store backed by SQLite. All writes go through one
// connection, so batches serialize without SQLITE_BUSY retries.
type Store struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

var _ crawler.Store = (*Store)(nil)
var _ crawler.Snapshotter = (*Store)(nil)

// Open creates or opens the database at cfg.Path and applies pragmas.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path: %w", crawler.ErrNotConfigured)
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("sqlite store opened", zap.String("path", cfg.Path), zap.String("table", table))
	return &Store{db: db, table: table, logger: logger}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

// EnsureSchema creates the item table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id   INTEGER PRIMARY KEY,
	json TEXT NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// LoadIDs returns every persisted id in ascending order.
func (s *Store) LoadIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY id", s.table))
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, 1024)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// FlushBatch inserts the batch in one transaction.
func (s *Store) FlushBatch(ctx context.Context, batch []crawler.Record) (err error) {
	if len(batch) == 0 {
		return crawler.ErrEmptyBatch
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (id, json) VALUES (?, ?)", s.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range batch {
		if _, err = stmt.ExecContext(ctx, rec.ID, rec.JSON); err != nil {
			if isConstraint(err) {
				return fmt.Errorf("insert item %d: %w", rec.ID, crawler.ErrDuplicateID)
			}
			return fmt.Errorf("insert item %d: %w", rec.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Stats reports the row count and highest id, -1 when empty.
func (s *Store) Stats(ctx context.Context) (crawler.StoreStats, error) {
	var stats crawler.StoreStats
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*), COALESCE(MAX(id), -1) FROM %s", s.table))
	if err := row.Scan(&stats.Items, &stats.HighestID); err != nil {
		return crawler.StoreStats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

// Snapshot writes a consistent copy of the database to w using VACUUM INTO.
func (s *Store) Snapshot(ctx context.Context, w io.Writer) error {
	dir, err := os.MkdirTemp("", "itemcrawler-snapshot-")
	if err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	defer os.RemoveAll(dir)

	target := filepath.Join(dir, "snapshot.db")
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}

	f, err := os.Open(target) // #nosec G304 -- path built from our own temp dir.
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy snapshot: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func isConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
