package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/item-crawler/internal/clock"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func TestMeterDerivesRateAndETA(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Unix(1700000000, 0).UTC())
	emitter := &recordingEmitter{}
	meter := NewMeter(MeterConfig{
		RunID:             [16]byte{1},
		ReportingInterval: 1000,
		Clock:             clk,
		Emitter:           emitter,
	})

	clk.Advance(2 * time.Second)
	meter.Observe(1000, 10000)

	require.Len(t, emitter.events, 1)
	evt := emitter.events[0]
	require.Equal(t, StageProgress, evt.Stage)
	require.Equal(t, -1, evt.Worker)
	obs := evt.Observation
	require.Equal(t, int64(1000), obs.Processed)
	require.InDelta(t, 10.0, obs.Percent, 1e-9)
	require.InDelta(t, 500.0, obs.Rate, 1e-9)
	require.Equal(t, 18*time.Second, obs.ETA)
	require.Equal(t, "1,000/10,000 | 10.00% | 500.00 items/s | ETA: 00:00:18", obs.Line())

	// The next sample is timed from the previous report, not from the start.
	clk.Advance(4 * time.Second)
	meter.Observe(2000, 10000)
	require.Len(t, emitter.events, 2)
	latest := emitter.events[1].Observation
	require.InDelta(t, 250.0, latest.Rate, 1e-9)
	require.Equal(t, 32*time.Second, latest.ETA)
}

func TestMeterWithoutElapsedTimeHasUnknownETA(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	meter := NewMeter(MeterConfig{RunID: [16]byte{1}, Clock: clock.NewManual(now)})

	obs := meter.Measure(1000, 0, now)
	require.Zero(t, obs.Rate)
	require.Equal(t, time.Duration(-1), obs.ETA)
	require.InDelta(t, 100.0, obs.Percent, 1e-9)
	require.Contains(t, obs.Line(), "ETA: --:--:--")
}

// droppingEmitter discards everything, like a Hub whose buffer is full.
type droppingEmitter struct{}

func (droppingEmitter) Emit(Event) {}

func TestMeterLogsEveryBoundaryEvenWhenEventsDrop(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	clk := clock.NewManual(time.Unix(1700000000, 0).UTC())
	meter := NewMeter(MeterConfig{
		RunID:             [16]byte{1},
		ReportingInterval: 1000,
		Clock:             clk,
		Emitter:           droppingEmitter{},
		Logger:            zap.New(core),
	})

	for processed := int64(1000); processed <= 3000; processed += 1000 {
		clk.Advance(2 * time.Second)
		meter.Observe(processed, 10000)
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, "1,000/10,000 | 10.00% | 500.00 items/s | ETA: 00:00:18", entries[0].Message)
	require.Equal(t, int64(3000), entries[2].ContextMap()["processed"])
}

func TestMeterProcessedBeyondTotal(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	meter := NewMeter(MeterConfig{RunID: [16]byte{1}, ReportingInterval: 10, Clock: clock.NewManual(start)})
	obs := meter.Measure(120, 100, start.Add(time.Second))
	require.Equal(t, time.Duration(0), obs.ETA)
	require.InDelta(t, 120.0, obs.Percent, 1e-9)
}

func TestFormatETA(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59999 * time.Millisecond, "00:00:59"},
		{61 * time.Second, "00:01:01"},
		{3725900 * time.Millisecond, "01:02:05"},
		{100*time.Hour + 59*time.Minute, "100:59:00"},
		{-time.Second, "--:--:--"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, FormatETA(tc.in), "FormatETA(%v)", tc.in)
	}
}
