package sinks

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/item-crawler/internal/progress"
)

func TestBarSinkTracksProcessed(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sink := NewBarSink(&out)
	require.Equal(t, int64(-1), sink.current())

	events := sampleRun()
	// Everything up to the progress event, leaving the run open.
	require.NoError(t, sink.Consume(context.Background(), events[:5]))
	require.Equal(t, int64(1999), sink.current())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{events[6]}))
	require.Equal(t, int64(-1), sink.current())
	require.Contains(t, out.String(), "Crawling")
	require.NoError(t, sink.Close(context.Background()))
}
