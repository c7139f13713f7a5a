// Package worker implements the per-goroutine fetch loop and its batch
// writer.
package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/item-crawler/internal/crawler"
	"github.com/JakeFAU/item-crawler/internal/metrics"
	"github.com/JakeFAU/item-crawler/internal/progress"
)

// IDSource hands out ids to fetch; *gap.Scanner satisfies it. Next must be
// safe for concurrent use.
type IDSource interface {
	Next() (int64, bool)
}

// Config controls Worker behavior.
type Config struct {
	Index     int
	BatchSize int
	RunID     uuid.UUID
	Topic     string
}

// Worker pulls ids until the shared IDSource is exhausted, fetching each one
// and batching the results into the store.
type Worker struct {
	ids     IDSource
	source  crawler.Source
	writer  *BatchWriter
	emitter progress.Emitter
	clock   crawler.Clock
	cfg     Config
	logger  *zap.Logger
	stats   Stats
}

// New constructs a Worker. publisher and emitter may be nil.
func New(
	ids IDSource,
	source crawler.Source,
	store crawler.Store,
	publisher crawler.Publisher,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	logger = logger.Named("worker").With(zap.Int("index", cfg.Index))
	writer := NewBatchWriter(store, publisher, emitter, clock, BatchWriterConfig{
		Worker:    cfg.Index,
		BatchSize: cfg.BatchSize,
		RunID:     cfg.RunID,
		Topic:     cfg.Topic,
	}, logger)
	return &Worker{
		ids:     ids,
		source:  source,
		writer:  writer,
		emitter: emitter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run loops until the IDSource is exhausted or ctx is canceled, then flushes
// whatever is still buffered. It returns the worker's counters and any flush
// errors; fetch errors only drop the id for this run.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	var errs []error
	for ctx.Err() == nil {
		id, ok := w.ids.Next()
		if !ok {
			break
		}
		item, err := w.source.Item(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.drop(id, err)
			continue
		}
		// The requested id is authoritative, whatever the payload says.
		item.ID = id
		w.stats.Fetched++
		if item.Tombstone {
			w.stats.Tombstones++
		}
		if err := w.writer.Add(ctx, item); err != nil {
			errs = append(errs, err)
		}
	}

	if err := w.writer.Flush(ctx); err != nil {
		errs = append(errs, err)
	}

	stats := w.stats
	stats.Add(w.writer.Stats())
	w.logger.Debug("worker finished",
		zap.Int64("fetched", stats.Fetched),
		zap.Int64("dropped", stats.Dropped),
		zap.Int64("batches", stats.Batches),
	)
	return stats, errors.Join(errs...)
}

func (w *Worker) drop(id int64, err error) {
	w.stats.Dropped++
	w.logger.Error("fetch failed; id dropped for this run", zap.Int64("id", id), zap.Error(err))
	w.emitter.Emit(progress.Event{
		RunID:  progress.UUIDToBytes(w.cfg.RunID),
		TS:     w.clock.Now(),
		Stage:  progress.StageFetchFailed,
		Worker: w.cfg.Index,
		ItemID: id,
		Note:   err.Error(),
	})
}
