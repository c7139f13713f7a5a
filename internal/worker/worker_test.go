package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/item-crawler/internal/clock"
	"github.com/JakeFAU/item-crawler/internal/crawler"
	"github.com/JakeFAU/item-crawler/internal/gap"
	"github.com/JakeFAU/item-crawler/internal/progress"
	"github.com/JakeFAU/item-crawler/internal/publisher/memory"
	memstore "github.com/JakeFAU/item-crawler/internal/storage/memory"
)

var testRunID = uuid.MustParse("6f1c29a4-2f49-4a4c-9d6b-5a3f3c1d2e10")

func TestWorker_FetchesAllMissingIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewItemStore(crawler.Record{ID: 3, JSON: `{"id":3}`})
	src := newFakeSource()
	src.tombstones[42] = true
	ids := gap.New([]int64{3}, 42, gap.Config{})
	emitter := &recordingEmitter{}

	w := New(ids, src, store, nil, emitter, clock.System{}, Config{BatchSize: 10, RunID: testRunID}, zap.NewNop())
	stats, err := w.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(42), stats.Fetched)
	assert.Equal(t, int64(1), stats.Tombstones)
	assert.Equal(t, int64(42), stats.Persisted)
	assert.Equal(t, int64(5), stats.Batches)

	persisted, err := store.LoadIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 43)

	payload, ok := store.Get(42)
	require.True(t, ok)
	assert.Equal(t, `{"id":42,"deleted":true}`, payload)

	flushed := emitter.stage(progress.StageBatchFlushed)
	require.Len(t, flushed, 5)
	assert.Equal(t, 1, flushed[0].Tombstones, "id 42 is in the first descending batch")
	for _, evt := range flushed {
		assert.NoError(t, evt.Validate())
	}
}

func TestWorker_DropsFailedFetches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewItemStore()
	src := newFakeSource()
	src.failures[7] = errors.New("503 service unavailable")
	core, logs := observer.New(zap.ErrorLevel)
	emitter := &recordingEmitter{}

	w := New(gap.New(nil, 9, gap.Config{}), src, store, nil, emitter, clock.System{},
		Config{Index: 2, BatchSize: 100, RunID: testRunID}, zap.New(core))
	stats, err := w.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(9), stats.Persisted)
	persisted, err := store.LoadIDs(ctx)
	require.NoError(t, err)
	assert.NotContains(t, persisted, int64(7))

	entries := logs.FilterMessage("fetch failed; id dropped for this run").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ContextMap()["id"])
	assert.Equal(t, int64(2), entries[0].ContextMap()["index"])

	failed := emitter.stage(progress.StageFetchFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, int64(7), failed[0].ItemID)
	assert.Equal(t, 2, failed[0].Worker)
}

func TestWorker_UsesRequestedID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewItemStore()
	src := newFakeSource()
	src.override[5] = crawler.Item{ID: 999, Payload: []byte(`{"id":999}`)}

	w := New(gap.New([]int64{0, 1, 2, 3, 4}, 5, gap.Config{}), src, store, nil, nil, clock.System{},
		Config{BatchSize: 1, RunID: testRunID}, nil)
	_, err := w.Run(ctx)
	require.NoError(t, err)

	payload, ok := store.Get(5)
	require.True(t, ok)
	assert.Equal(t, `{"id":999}`, payload)
	_, ok = store.Get(999)
	assert.False(t, ok)
}

func TestWorker_FlushFailureContinuesDraining(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &failingStore{ItemStore: memstore.NewItemStore(), failOn: 1}
	emitter := &recordingEmitter{}

	w := New(gap.New(nil, 5, gap.Config{}), newFakeSource(), store, nil, emitter, clock.System{},
		Config{BatchSize: 2, RunID: testRunID}, nil)
	stats, err := w.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDisk)

	assert.Equal(t, int64(1), stats.FailedBatches)
	assert.Equal(t, int64(2), stats.Discarded)
	assert.Equal(t, int64(4), stats.Persisted)
	assert.Len(t, emitter.stage(progress.StageBatchFailed), 1)

	persisted, err := store.LoadIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3}, persisted, "first batch (5,4) was discarded")
}

func TestWorker_CancelFlushesOpenBatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	store := memstore.NewItemStore()
	src := newFakeSource()
	src.onFetch = func(id int64) {
		if id == 97 {
			cancel()
		}
	}

	w := New(gap.New(nil, 100, gap.Config{}), src, store, nil, nil, clock.System{},
		Config{BatchSize: 500, RunID: testRunID}, nil)
	stats, err := w.Run(ctx)
	require.NoError(t, err)

	persisted, err := store.LoadIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{97, 98, 99, 100}, persisted)
	assert.Equal(t, int64(4), stats.Persisted)
}

func TestWorker_NoFlushWhenNothingFetched(t *testing.T) {
	t.Parallel()

	store := &failingStore{ItemStore: memstore.NewItemStore(), failOn: -1}
	w := New(gap.New([]int64{0, 1, 2}, 2, gap.Config{}), newFakeSource(), store, nil, nil, clock.System{},
		Config{BatchSize: 10, RunID: testRunID}, nil)
	stats, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, store.calls)
	assert.Zero(t, stats.Batches)
}

func TestWorkers_ShareScannerDisjointly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &countingStore{seen: make(map[int64]int)}
	ids := gap.New([]int64{10, 20, 30}, 2000, gap.Config{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := New(ids, newFakeSource(), store, nil, nil, clock.System{},
				Config{Index: i, BatchSize: 7, RunID: testRunID}, nil)
			_, err := w.Run(ctx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.seen, 2001-3)
	for id, n := range store.seen {
		require.Equal(t, 1, n, "id %d flushed %d times", id, n)
	}
}

func TestBatchWriter_FlushesAtBatchSizeAndPublishes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewItemStore()
	pub := memory.New()
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	emitter := &recordingEmitter{}

	b := NewBatchWriter(store, pub, emitter, clk, BatchWriterConfig{
		Worker: 4, BatchSize: 3, RunID: testRunID, Topic: "batches",
	}, nil)

	for _, id := range []int64{9, 8} {
		require.NoError(t, b.Add(ctx, item(id)))
	}
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Items, "partial batch stays buffered")
	assert.Empty(t, pub.Messages())

	require.NoError(t, b.Add(ctx, crawler.Tombstone(7)))
	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Items)
	// The buffer was cleared by the size-triggered flush.
	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, int64(1), b.Stats().Batches)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "batches", msgs[0].Topic)
	assert.Equal(t, crawler.BatchCommitted{
		RunID: testRunID.String(), Worker: 4, Count: 3, FirstID: 9, LastID: 7,
	}, msgs[0].Payload)

	flushed := emitter.stage(progress.StageBatchFlushed)
	require.Len(t, flushed, 1)
	assert.Equal(t, 3, flushed[0].Count)
	assert.Equal(t, 1, flushed[0].Tombstones)
	assert.Equal(t, 4, flushed[0].Worker)
	assert.Equal(t, testRunID, flushed[0].RunUUID())
}

func TestBatchWriter_EmptyFlushIsNoop(t *testing.T) {
	t.Parallel()

	store := &failingStore{ItemStore: memstore.NewItemStore(), failOn: -1}
	b := NewBatchWriter(store, nil, nil, clock.System{}, BatchWriterConfig{BatchSize: 5, RunID: testRunID}, nil)
	require.NoError(t, b.Flush(context.Background()))
	assert.Zero(t, store.calls)
}

func TestBatchWriter_PublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("topic not found"))
	core, logs := observer.New(zap.WarnLevel)
	b := NewBatchWriter(memstore.NewItemStore(), pub, nil, clock.System{},
		BatchWriterConfig{BatchSize: 1, RunID: testRunID, Topic: "batches"}, zap.New(core))

	require.NoError(t, b.Add(context.Background(), item(1)))
	assert.Equal(t, int64(1), b.Stats().Persisted)
	assert.Equal(t, 1, logs.FilterMessage("batch notification failed").Len())
}

func TestBatchWriter_FlushIgnoresCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := memstore.NewItemStore()
	b := NewBatchWriter(store, nil, nil, clock.System{}, BatchWriterConfig{BatchSize: 10, RunID: testRunID}, nil)
	require.NoError(t, b.Add(ctx, item(1)))
	require.NoError(t, b.Flush(ctx))

	_, ok := store.Get(1)
	assert.True(t, ok)
}

func TestStatsAdd(t *testing.T) {
	t.Parallel()

	s := Stats{Fetched: 1, Dropped: 2}
	s.Add(Stats{Fetched: 3, Batches: 1, Persisted: 3, FailedBatches: 1, Discarded: 5, Tombstones: 1})
	assert.Equal(t, Stats{Fetched: 4, Dropped: 2, Batches: 1, Persisted: 3, FailedBatches: 1, Discarded: 5, Tombstones: 1}, s)
}

func item(id int64) crawler.Item {
	return crawler.Item{ID: id, Payload: []byte(fmt.Sprintf(`{"id":%d}`, id))}
}

type fakeSource struct {
	tombstones map[int64]bool
	failures   map[int64]error
	override   map[int64]crawler.Item
	onFetch    func(id int64)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tombstones: map[int64]bool{},
		failures:   map[int64]error{},
		override:   map[int64]crawler.Item{},
	}
}

func (f *fakeSource) MaxID(context.Context) (int64, error) {
	return 0, errors.New("not used")
}

func (f *fakeSource) Item(ctx context.Context, id int64) (crawler.Item, error) {
	if f.onFetch != nil {
		f.onFetch(id)
	}
	if err, ok := f.failures[id]; ok {
		return crawler.Item{}, err
	}
	if f.tombstones[id] {
		return crawler.Tombstone(id), nil
	}
	if it, ok := f.override[id]; ok {
		return it, nil
	}
	return item(id), nil
}

var errDisk = errors.New("disk full")

type failingStore struct {
	*memstore.ItemStore
	failOn int
	calls  int
}

func (s *failingStore) FlushBatch(ctx context.Context, batch []crawler.Record) error {
	s.calls++
	if s.calls == s.failOn {
		return errDisk
	}
	return s.ItemStore.FlushBatch(ctx, batch)
}

type countingStore struct {
	*memstore.ItemStore
	mu   sync.Mutex
	seen map[int64]int
}

func (s *countingStore) FlushBatch(_ context.Context, batch []crawler.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range batch {
		s.seen[rec.ID]++
	}
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stage(stage progress.Stage) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, evt := range r.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}
