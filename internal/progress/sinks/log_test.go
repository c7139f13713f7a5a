package sinks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSinkWritesMilestones(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), sampleRun()))
	require.NoError(t, sink.Close(context.Background()))

	// Progress lines come from the meter, not the sink.
	require.Zero(t, logs.FilterField(zap.Float64("items_per_second", 250)).Len())

	require.Equal(t, 1, logs.FilterMessage("crawl started").Len())
	require.Equal(t, 1, logs.FilterMessage("crawl finished").Len())
	require.Equal(t, 2, logs.FilterMessage("batch flushed").Len())
	require.Equal(t, 1, logs.FilterMessage("batch discarded").Len())
	require.Equal(t, 1, logs.FilterField(zap.Int64("id", 1500)).Len())
	require.Equal(t, "6f1c29a4-2f49-4a4c-9d6b-5a3f3c1d2e10",
		logs.FilterMessage("crawl started").All()[0].ContextMap()["run_id"])
}

func TestNewLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), sampleRun()))
}
