package crawler

import (
	"context"
	"io"
	"time"
)

// Source reads items from the remote, monotonically-numbered JSON API.
type Source interface {
	// MaxID returns the highest id the remote reports at call time.
	MaxID(ctx context.Context) (int64, error)
	// Item fetches a single item. Empty or null bodies yield a Tombstone.
	Item(ctx context.Context, id int64) (Item, error)
}

// Store is the durable, append-only item table keyed by id.
type Store interface {
	// EnsureSchema creates the item table if missing without touching rows.
	EnsureSchema(ctx context.Context) error
	// LoadIDs returns every persisted id in ascending order.
	LoadIDs(ctx context.Context) ([]int64, error)
	// FlushBatch inserts all records atomically: all become visible or none do.
	FlushBatch(ctx context.Context, batch []Record) error
	// Stats reports row count and highest id.
	Stats(ctx context.Context) (StoreStats, error)
	Close() error
}

// Snapshotter is implemented by stores that can write a consistent copy of
// themselves, used for backups.
type Snapshotter interface {
	Snapshot(ctx context.Context, w io.Writer) error
}

// Publisher pushes notifications about committed batches (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore uploads backup artifacts and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
