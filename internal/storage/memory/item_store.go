// Package memory provides in-memory stores for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/item-crawler/internal/crawler"
)

// ItemStore keeps items in a map. Nothing survives the process.
type ItemStore struct {
	mu    sync.RWMutex
	items map[int64]string
}

var _ crawler.Store = (*ItemStore)(nil)

// NewItemStore constructs an ItemStore, optionally pre-seeded.
func NewItemStore(seed ...crawler.Record) *ItemStore {
	s := &ItemStore{items: make(map[int64]string, len(seed))}
	for _, rec := range seed {
		s.items[rec.ID] = rec.JSON
	}
	return s
}

// EnsureSchema is a no-op.
func (s *ItemStore) EnsureSchema(context.Context) error {
	return nil
}

// LoadIDs returns every stored id in ascending order.
func (s *ItemStore) LoadIDs(context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// FlushBatch stores every record or, on any duplicate, none of them.
func (s *ItemStore) FlushBatch(_ context.Context, batch []crawler.Record) error {
	if len(batch) == 0 {
		return crawler.ErrEmptyBatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]struct{}, len(batch))
	for _, rec := range batch {
		if _, ok := s.items[rec.ID]; ok {
			return fmt.Errorf("insert item %d: %w", rec.ID, crawler.ErrDuplicateID)
		}
		if _, ok := seen[rec.ID]; ok {
			return fmt.Errorf("insert item %d: %w", rec.ID, crawler.ErrDuplicateID)
		}
		seen[rec.ID] = struct{}{}
	}
	for _, rec := range batch {
		s.items[rec.ID] = rec.JSON
	}
	return nil
}

// Stats reports the item count and highest id, -1 when empty.
func (s *ItemStore) Stats(context.Context) (crawler.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := crawler.StoreStats{Items: int64(len(s.items)), HighestID: -1}
	for id := range s.items {
		stats.HighestID = max(stats.HighestID, id)
	}
	return stats, nil
}

// Get returns the stored JSON for id.
func (s *ItemStore) Get(id int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	return v, ok
}

// Close is a no-op.
func (s *ItemStore) Close() error {
	return nil
}
