// Package app wires configuration into the long-lived services of a crawl
// and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/item-crawler/internal/api"
	"github.com/JakeFAU/item-crawler/internal/backup"
	"github.com/JakeFAU/item-crawler/internal/clock"
	"github.com/JakeFAU/item-crawler/internal/config"
	"github.com/JakeFAU/item-crawler/internal/crawler"
	"github.com/JakeFAU/item-crawler/internal/dispatcher"
	"github.com/JakeFAU/item-crawler/internal/gap"
	runids "github.com/JakeFAU/item-crawler/internal/id/uuid"
	"github.com/JakeFAU/item-crawler/internal/metrics"
	"github.com/JakeFAU/item-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/item-crawler/internal/progress"
	"github.com/JakeFAU/item-crawler/internal/progress/sinks"
	memorypub "github.com/JakeFAU/item-crawler/internal/publisher/memory"
	"github.com/JakeFAU/item-crawler/internal/publisher/pubsub"
	collysource "github.com/JakeFAU/item-crawler/internal/source/colly"
	"github.com/JakeFAU/item-crawler/internal/storage"
	"github.com/JakeFAU/item-crawler/internal/telemetry"
	"github.com/JakeFAU/item-crawler/internal/worker"
)

// App holds the services shared by the crawl and status commands.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  crawler.Clock

	store     crawler.Store
	source    crawler.Source
	publisher crawler.Publisher
	blobs     crawler.BlobStore

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	promSink   *sinks.PrometheusSink
	snapshots  *sinks.SnapshotSink
	barOut     io.Writer

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Option customizes App construction, mainly for tests.
type Option func(*App)

// WithStore injects the item store instead of opening store.driver.
func WithStore(s crawler.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSource injects the remote source.
func WithSource(s crawler.Source) Option {
	return func(a *App) { a.source = s }
}

// WithPublisher injects the batch notification publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithBlobStore injects the backup destination.
func WithBlobStore(b crawler.BlobStore) Option {
	return func(a *App) { a.blobs = b }
}

// WithClock overrides the wall clock.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithRegistry registers run collectors on reg instead of the default
// Prometheus registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) {
		a.registerer = reg
		a.gatherer = reg
	}
}

// WithProgressOutput sets where the progress bar draws.
func WithProgressOutput(w io.Writer) Option {
	return func(a *App) { a.barOut = w }
}

// New builds an App from cfg. Anything not injected through opts is built
// from configuration. Close releases what New opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:        cfg,
		logger:     logger,
		clock:      clock.System{},
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(a)
	}
	metrics.Init()

	if err := a.init(ctx); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("cleanup after failed init", zap.Error(closeErr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	tp, err := telemetry.InitTracerProvider(ctx, "itemcrawler")
	if err != nil {
		return err
	}
	a.addCloser("tracer", func() error { return tp.Shutdown(context.Background()) })

	if a.store == nil {
		store, err := storage.Open(ctx, a.cfg.Store, a.logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		a.store = store
		a.addCloser("store", store.Close)
	}

	if a.source == nil {
		limiter := ratelimit.New(ratelimit.Config{RPS: a.cfg.Source.RequestsPerSecond, Burst: a.cfg.Source.Burst})
		src, err := collysource.New(collysource.Config{
			BaseURL:   a.cfg.Source.BaseURL,
			UserAgent: a.cfg.Source.UserAgent,
			Timeout:   a.cfg.SourceTimeout(),
			Limiter:   limiter,
		})
		if err != nil {
			return fmt.Errorf("build source: %w", err)
		}
		a.source = src
	}

	if a.publisher == nil {
		switch a.cfg.Publish.Provider {
		case "pubsub":
			pub, err := pubsub.Dial(ctx, a.cfg.Publish.ProjectID)
			if err != nil {
				return fmt.Errorf("init pubsub: %w", err)
			}
			a.publisher = pub
			a.addCloser("pubsub", pub.Close)
		case "memory":
			a.publisher = memorypub.New()
		}
	}

	if a.blobs == nil {
		blobs, err := storage.OpenBlobStore(ctx, a.cfg.Backup)
		if err != nil {
			return fmt.Errorf("open backup store: %w", err)
		}
		if blobs != nil {
			a.blobs = blobs
			a.addCloser("backup store", blobs.Close)
		}
	}

	promSink, err := sinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return err
	}
	a.promSink = promSink
	a.snapshots = sinks.NewSnapshotSink()
	return nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Snapshots exposes the latest run state.
func (a *App) Snapshots() *sinks.SnapshotSink {
	return a.snapshots
}

// Result summarizes one crawl run.
type Result struct {
	RunID          uuid.UUID    `json:"run_id"`
	MaxID          int64        `json:"max_id"`
	AlreadyPresent int64        `json:"already_present"`
	Stats          worker.Stats `json:"stats"`
	BackupURI      string       `json:"backup_uri,omitempty"`
}

// Crawl runs one resumable pass: load persisted ids, read the remote max id,
// drain the gap scanner with the worker pool and report progress until every
// batch has been flushed. Flush failures are returned joined; dropped ids
// are not errors.
func (a *App) Crawl(ctx context.Context) (Result, error) {
	runID, err := runids.New().NewRunID()
	if err != nil {
		return Result{}, err
	}
	result := Result{RunID: runID}
	logger := a.logger.With(zap.Stringer("run_id", runID))

	if err := a.store.EnsureSchema(ctx); err != nil {
		return result, fmt.Errorf("ensure schema: %w", err)
	}
	persisted, err := a.store.LoadIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("load persisted ids: %w", err)
	}
	maxID, err := a.source.MaxID(ctx)
	if err != nil {
		return result, fmt.Errorf("read remote max id: %w", err)
	}
	result.MaxID = maxID
	result.AlreadyPresent = int64(len(persisted))

	hubSinks := []progress.Sink{sinks.NewLogSink(logger), a.promSink, a.snapshots}
	if a.cfg.Crawl.ProgressBar {
		hubSinks = append(hubSinks, sinks.NewBarSink(a.barOut))
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, hubSinks...)
	defer func() {
		if err := hub.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("progress hub close", zap.Error(err))
		}
	}()

	stopServer := a.startServer(ctx)
	defer stopServer()

	runBytes := progress.UUIDToBytes(runID)
	meter := progress.NewMeter(progress.MeterConfig{
		RunID:             runBytes,
		ReportingInterval: a.cfg.Crawl.ReportingInterval,
		Clock:             a.clock,
		Emitter:           hub,
		Logger:            logger.Named("progress"),
	})
	scanner := gap.New(persisted, maxID, gap.Config{
		ReportingInterval: a.cfg.Crawl.ReportingInterval,
		Observer:          meter,
	})

	start := a.clock.Now()
	hub.Emit(progress.Event{
		RunID:       runBytes,
		TS:          start,
		Stage:       progress.StageRunStart,
		Worker:      -1,
		Observation: snapshotObservation(scanner.Processed(), maxID),
	})

	pool := dispatcher.New(a.source, a.store, a.publisher, hub, a.clock, dispatcher.Config{
		Workers:   a.cfg.Crawl.Workers,
		BatchSize: a.cfg.Crawl.BatchSize,
		RunID:     runID,
		Topic:     a.cfg.Publish.Topic,
	}, logger)
	stats, runErr := pool.Run(ctx, scanner)
	result.Stats = stats

	end := a.clock.Now()
	note := ""
	if ctx.Err() != nil {
		note = "interrupted"
	}
	hub.Emit(progress.Event{
		RunID:       runBytes,
		TS:          end,
		Stage:       progress.StageRunDone,
		Worker:      -1,
		Observation: snapshotObservation(scanner.Processed(), maxID),
		Dur:         end.Sub(start),
		Note:        note,
	})

	result.BackupURI = a.backup(ctx, logger)

	if ctx.Err() != nil {
		runErr = errors.Join(runErr, fmt.Errorf("crawl interrupted: %w", ctx.Err()))
	}
	return result, runErr
}

func snapshotObservation(processed, total int64) progress.Observation {
	obs := progress.Observation{Processed: processed, Total: total, Percent: 100, ETA: -1}
	if total > 0 {
		obs.Percent = float64(processed) / float64(total) * 100
	}
	return obs
}

// startServer runs the status API for the duration of a crawl when enabled.
func (a *App) startServer(ctx context.Context) func() {
	if !a.cfg.Server.Enabled {
		return func() {}
	}
	srvCtx, cancel := context.WithCancel(ctx)
	server := api.NewServer(a.snapshots, a.gatherer, a.logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(srvCtx, ":"+strconv.Itoa(a.cfg.Server.Port)); err != nil {
			a.logger.Error("status server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// backup uploads a store snapshot when a destination is configured. Failures
// are logged and never fail the run.
func (a *App) backup(ctx context.Context, logger *zap.Logger) string {
	if a.blobs == nil {
		return ""
	}
	snap, ok := a.store.(crawler.Snapshotter)
	if !ok {
		logger.Warn("backup configured but the store cannot snapshot", zap.String("driver", a.cfg.Store.Driver))
		return ""
	}
	art, err := backup.New(a.blobs, a.cfg.Backup.Prefix, a.clock, logger).Upload(context.WithoutCancel(ctx), snap)
	if err != nil {
		logger.Error("store backup failed", zap.Error(err))
		return ""
	}
	return art.URI
}

// Status describes how far the local store is behind the remote.
type Status struct {
	Items       int64 `json:"items"`
	HighestID   int64 `json:"highest_id"`
	RemoteMaxID int64 `json:"remote_max_id"`
	Missing     int64 `json:"missing"`
}

// Status reads store statistics and the current remote max id.
func (a *App) Status(ctx context.Context) (Status, error) {
	if err := a.store.EnsureSchema(ctx); err != nil {
		return Status{}, fmt.Errorf("ensure schema: %w", err)
	}
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("store stats: %w", err)
	}
	maxID, err := a.source.MaxID(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("read remote max id: %w", err)
	}
	return Status{
		Items:       stats.Items,
		HighestID:   stats.HighestID,
		RemoteMaxID: maxID,
		Missing:     max(maxID+1-stats.Items, 0),
	}, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	if a.promSink != nil {
		a.promSink.Unregister(a.registerer)
		a.promSink = nil
	}
	return errors.Join(errs...)
}
