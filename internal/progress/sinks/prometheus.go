package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/item-crawler/internal/progress"
)

// PrometheusSink exports run progress via Prometheus.
type PrometheusSink struct {
	itemsPersisted prometheus.Counter
	tombstones     prometheus.Counter
	batches        *prometheus.CounterVec
	flushDuration  prometheus.Histogram
	fetchFailures  prometheus.Counter
	runsCompleted  prometheus.Counter

	processed prometheus.Gauge
	maxID     prometheus.Gauge
	rate      prometheus.Gauge
	eta       prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		itemsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itemcrawler_items_persisted_total",
			Help: "Items committed to the store, tombstones included.",
		}),
		tombstones: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itemcrawler_tombstones_persisted_total",
			Help: "Tombstones committed for ids the remote had no content for.",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "itemcrawler_batches_total",
			Help: "Batch flushes partitioned by result.",
		}, []string{"result"}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "itemcrawler_batch_flush_duration_seconds",
			Help:    "Latency of committed batch flushes.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itemcrawler_fetch_failures_total",
			Help: "Ids dropped for the current run after a failed fetch.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itemcrawler_runs_completed_total",
			Help: "Crawl runs that drained the scanner.",
		}),
		processed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "itemcrawler_progress_processed",
			Help: "Ids processed (persisted before the run plus yielded) at the last report.",
		}),
		maxID: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "itemcrawler_progress_max_id",
			Help: "Remote max id fixed at run start.",
		}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "itemcrawler_progress_items_per_second",
			Help: "Throughput over the last reporting interval.",
		}),
		eta: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "itemcrawler_progress_eta_seconds",
			Help: "Estimated seconds remaining, -1 when unknown.",
		}),
	}
	for _, collector := range s.collectors() {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

func (s *PrometheusSink) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.itemsPersisted,
		s.tombstones,
		s.batches,
		s.flushDuration,
		s.fetchFailures,
		s.runsCompleted,
		s.processed,
		s.maxID,
		s.rate,
		s.eta,
	}
}

// Unregister removes the collectors from reg so a later sink can register.
func (s *PrometheusSink) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, collector := range s.collectors() {
		reg.Unregister(collector)
	}
}

// Consume updates the collectors. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageProgress:
		s.observe(evt.Observation)
	case progress.StageBatchFlushed:
		s.batches.WithLabelValues("ok").Inc()
		s.itemsPersisted.Add(float64(evt.Count))
		s.tombstones.Add(float64(evt.Tombstones))
		if evt.Dur > 0 {
			s.flushDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageBatchFailed:
		s.batches.WithLabelValues("error").Inc()
	case progress.StageFetchFailed:
		s.fetchFailures.Inc()
	case progress.StageRunDone:
		s.runsCompleted.Inc()
		s.processed.Set(float64(evt.Observation.Processed))
	}
}

func (s *PrometheusSink) observe(obs progress.Observation) {
	s.processed.Set(float64(obs.Processed))
	s.maxID.Set(float64(obs.Total))
	s.rate.Set(obs.Rate)
	if obs.ETA < 0 {
		s.eta.Set(-1)
		return
	}
	s.eta.Set(obs.ETA.Seconds())
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
