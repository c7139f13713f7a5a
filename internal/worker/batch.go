package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/item-crawler/internal/crawler"
	"github.com/JakeFAU/item-crawler/internal/progress"
	"github.com/JakeFAU/item-crawler/internal/telemetry"
)

// BatchWriterConfig controls batching and notifications for one worker.
type BatchWriterConfig struct {
	Worker    int
	BatchSize int
	RunID     uuid.UUID
	// Topic receives a BatchCommitted message per flush when a publisher is set.
	Topic string
}

// BatchWriter buffers records privately for one worker and writes them to the
// store in atomic batches.
type BatchWriter struct {
	store     crawler.Store
	publisher crawler.Publisher
	emitter   progress.Emitter
	clock     crawler.Clock
	logger    *zap.Logger
	cfg       BatchWriterConfig

	buf        []crawler.Record
	tombstones int
	stats      Stats
}

// NewBatchWriter builds a BatchWriter. publisher and emitter may be nil.
func NewBatchWriter(
	store crawler.Store,
	publisher crawler.Publisher,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg BatchWriterConfig,
	logger *zap.Logger,
) *BatchWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchWriter{
		store:     store,
		publisher: publisher,
		emitter:   emitter,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
		buf:       make([]crawler.Record, 0, cfg.BatchSize),
	}
}

// Add appends item and flushes once the buffer reaches the batch size.
func (b *BatchWriter) Add(ctx context.Context, item crawler.Item) error {
	b.buf = append(b.buf, item.Record())
	if item.Tombstone {
		b.tombstones++
	}
	if len(b.buf) >= b.cfg.BatchSize {
		return b.Flush(ctx)
	}
	return nil
}

// Stats returns the writer's counters.
func (b *BatchWriter) Stats() Stats {
	return b.stats
}

// Flush writes the buffered records in one store call. An empty buffer is a
// no-op. The buffer is cleared whether or not the write succeeds; a failed
// batch's ids stay unpersisted and come back on the next run. Flushes ignore
// cancellation of ctx so a stopping run still persists what it fetched.
func (b *BatchWriter) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	batch := b.buf
	tombstones := b.tombstones
	defer b.reset()

	ctx, span := telemetry.Tracer().Start(ctx, "batch.flush", trace.WithAttributes(
		attribute.Int("worker", b.cfg.Worker),
		attribute.Int("batch.size", len(batch)),
		attribute.Int64("batch.first_id", batch[0].ID),
	))
	defer span.End()

	start := b.clock.Now()
	err := b.store.FlushBatch(ctx, batch)
	dur := b.clock.Now().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "flush failed")
		b.stats.FailedBatches++
		b.stats.Discarded += int64(len(batch))
		b.logger.Error("batch flush failed; discarding",
			zap.Int("count", len(batch)),
			zap.Int64("first_id", batch[0].ID),
			zap.Int64("last_id", batch[len(batch)-1].ID),
			zap.Error(err),
		)
		b.emit(progress.Event{Stage: progress.StageBatchFailed, Count: len(batch), Dur: dur, Note: err.Error()})
		return fmt.Errorf("worker %d flush %d records: %w", b.cfg.Worker, len(batch), err)
	}

	b.stats.Batches++
	b.stats.Persisted += int64(len(batch))
	b.emit(progress.Event{Stage: progress.StageBatchFlushed, Count: len(batch), Tombstones: tombstones, Dur: dur})
	b.notify(ctx, batch)
	return nil
}

func (b *BatchWriter) reset() {
	b.buf = b.buf[:0]
	b.tombstones = 0
}

func (b *BatchWriter) notify(ctx context.Context, batch []crawler.Record) {
	if b.publisher == nil || b.cfg.Topic == "" {
		return
	}
	msg := crawler.BatchCommitted{
		RunID:   b.cfg.RunID.String(),
		Worker:  b.cfg.Worker,
		Count:   len(batch),
		FirstID: batch[0].ID,
		LastID:  batch[len(batch)-1].ID,
	}
	if _, err := b.publisher.Publish(ctx, b.cfg.Topic, msg); err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Warn("batch notification failed", zap.String("topic", b.cfg.Topic), zap.Error(err))
	}
}

func (b *BatchWriter) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(b.cfg.RunID)
	evt.TS = b.clock.Now()
	evt.Worker = b.cfg.Worker
	b.emitter.Emit(evt)
}

// Stats counts what a worker did during one run.
type Stats struct {
	Fetched       int64 `json:"fetched"`
	Tombstones    int64 `json:"tombstones"`
	Dropped       int64 `json:"dropped"`
	Batches       int64 `json:"batches"`
	Persisted     int64 `json:"persisted"`
	FailedBatches int64 `json:"failed_batches"`
	Discarded     int64 `json:"discarded"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Fetched += o.Fetched
	s.Tombstones += o.Tombstones
	s.Dropped += o.Dropped
	s.Batches += o.Batches
	s.Persisted += o.Persisted
	s.FailedBatches += o.FailedBatches
	s.Discarded += o.Discarded
}

