package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/item-crawler/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters, gauges and histograms track run events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), sampleRun()))

	require.InDelta(t, 700.0, testutil.ToFloat64(sink.itemsPersisted), 1e-9)
	require.InDelta(t, 3.0, testutil.ToFloat64(sink.tombstones), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.batches.WithLabelValues("ok")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.batches.WithLabelValues("error")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetchFailures), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted), 1e-9)
	require.InDelta(t, 2000.0, testutil.ToFloat64(sink.processed), 1e-9)
	require.InDelta(t, 1999.0, testutil.ToFloat64(sink.maxID), 1e-9)
	require.InDelta(t, 250.0, testutil.ToFloat64(sink.rate), 1e-9)
	require.InDelta(t, 4.0, testutil.ToFloat64(sink.eta), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.flushDuration, "itemcrawler_batch_flush_duration_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func sampleRun() []progress.Event {
	runID := progress.UUIDToBytes(uuid.MustParse("6f1c29a4-2f49-4a4c-9d6b-5a3f3c1d2e10"))
	start := time.Unix(1700000000, 0).UTC()
	return []progress.Event{
		{
			RunID:       runID,
			TS:          start,
			Stage:       progress.StageRunStart,
			Worker:      -1,
			Observation: progress.Observation{Processed: 1000, Total: 1999, ETA: -1},
		},
		{RunID: runID, TS: start.Add(time.Second), Stage: progress.StageBatchFlushed, Worker: 0, Count: 500, Tombstones: 2, Dur: 20 * time.Millisecond},
		{RunID: runID, TS: start.Add(2 * time.Second), Stage: progress.StageFetchFailed, Worker: 1, ItemID: 1500},
		{RunID: runID, TS: start.Add(3 * time.Second), Stage: progress.StageBatchFailed, Worker: 1, Count: 40, Note: "disk full"},
		{
			RunID:       runID,
			TS:          start.Add(4 * time.Second),
			Stage:       progress.StageProgress,
			Worker:      -1,
			Observation: progress.Observation{Processed: 1000 + 999, Total: 1999, Percent: 99.9, Rate: 250, ETA: 4 * time.Second},
		},
		{RunID: runID, TS: start.Add(5 * time.Second), Stage: progress.StageBatchFlushed, Worker: 1, Count: 200, Tombstones: 1},
		{
			RunID:       runID,
			TS:          start.Add(6 * time.Second),
			Stage:       progress.StageRunDone,
			Worker:      -1,
			Dur:         6 * time.Second,
			Observation: progress.Observation{Processed: 2000, Total: 1999},
		},
	}
}
