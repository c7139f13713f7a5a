// Package dispatcher fans a shared id scanner out to a pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/item-crawler/internal/crawler"
	"github.com/JakeFAU/item-crawler/internal/progress"
	"github.com/JakeFAU/item-crawler/internal/worker"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 50

// Config controls the pool.
type Config struct {
	Workers   int
	BatchSize int
	RunID     uuid.UUID
	Topic     string
}

// Pool runs a fixed number of workers over one IDSource.
type Pool struct {
	source    crawler.Source
	store     crawler.Store
	publisher crawler.Publisher
	emitter   progress.Emitter
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New creates a Pool. publisher and emitter may be nil.
func New(
	source crawler.Source,
	store crawler.Store,
	publisher crawler.Publisher,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		source:    source,
		store:     store,
		publisher: publisher,
		emitter:   emitter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run starts every worker on ids and blocks until all of them have drained
// the scanner and flushed. It returns the summed counters and the joined
// flush errors of all workers.
func (p *Pool) Run(ctx context.Context, ids worker.IDSource) (worker.Stats, error) {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total worker.Stats
		errs  []error
	)
	for i := 0; i < p.cfg.Workers; i++ {
		w := worker.New(ids, p.source, p.store, p.publisher, p.emitter, p.clock, worker.Config{
			Index:     i,
			BatchSize: p.cfg.BatchSize,
			RunID:     p.cfg.RunID,
			Topic:     p.cfg.Topic,
		}, p.logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := w.Run(ctx)
			mu.Lock()
			defer mu.Unlock()
			total.Add(stats)
			if err != nil {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	p.logger.Debug("worker pool drained",
		zap.Int("workers", p.cfg.Workers),
		zap.Int64("persisted", total.Persisted),
		zap.Int64("dropped", total.Dropped),
	)
	return total, errors.Join(errs...)
}
