package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotSinkFoldsRun(t *testing.T) {
	t.Parallel()

	sink := NewSnapshotSink()
	require.Empty(t, sink.Snapshot().RunID)

	require.NoError(t, sink.Consume(context.Background(), sampleRun()))
	snap := sink.Snapshot()

	require.Equal(t, "6f1c29a4-2f49-4a4c-9d6b-5a3f3c1d2e10", snap.RunID)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), snap.StartedAt)
	require.NotNil(t, snap.FinishedAt)
	require.Equal(t, int64(700), snap.Persisted)
	require.Equal(t, int64(3), snap.Tombstones)
	require.Equal(t, int64(2), snap.Batches)
	require.Equal(t, int64(1), snap.FailedBatches)
	require.Equal(t, int64(1), snap.Dropped)
	require.Equal(t, int64(2000), snap.Progress.Processed)

	// Returned snapshots are copies.
	*snap.FinishedAt = time.Time{}
	require.False(t, sink.Snapshot().FinishedAt.IsZero())
}
