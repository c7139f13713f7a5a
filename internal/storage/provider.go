// Package storage selects the item store and backup blob store named by
// configuration.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/item-crawler/internal/config"
	"github.com/JakeFAU/item-crawler/internal/crawler"
	"github.com/JakeFAU/item-crawler/internal/storage/gcs"
	"github.com/JakeFAU/item-crawler/internal/storage/local"
	"github.com/JakeFAU/item-crawler/internal/storage/memory"
	"github.com/JakeFAU/item-crawler/internal/storage/postgres"
	"github.com/JakeFAU/item-crawler/internal/storage/sqlite"
)

// Open returns the item store for cfg.Driver. The caller must Close it.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (crawler.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case config.DriverSQLite, "":
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Path, Table: cfg.Table, Logger: logger})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.DSN, Table: cfg.Table, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		logger.Warn("memory store selected; items will not survive this process")
		return memory.NewItemStore(), nil
	default:
		return nil, fmt.Errorf("store driver %q is not supported", cfg.Driver)
	}
}

// BlobStore is a backup destination that may hold a client to release.
type BlobStore interface {
	crawler.BlobStore
	Close() error
}

// OpenBlobStore returns the backup destination for cfg.Provider, or nil when
// backups are disabled.
func OpenBlobStore(ctx context.Context, cfg config.BackupConfig) (BlobStore, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "gcs":
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, err
		}
		return nopCloser{store}, nil
	default:
		return nil, fmt.Errorf("backup provider %q is not supported", cfg.Provider)
	}
}

type nopCloser struct {
	crawler.BlobStore
}

func (nopCloser) Close() error { return nil }
