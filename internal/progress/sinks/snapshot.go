package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/item-crawler/internal/progress"
)

// Snapshot is the latest known state of a run.
type Snapshot struct {
	RunID         string               `json:"run_id,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    *time.Time           `json:"finished_at,omitempty"`
	Progress      progress.Observation `json:"progress"`
	Persisted     int64                `json:"persisted"`
	Tombstones    int64                `json:"tombstones"`
	Batches       int64                `json:"batches"`
	FailedBatches int64                `json:"failed_batches"`
	Dropped       int64                `json:"dropped"`
}

// SnapshotSink keeps counters and the latest observation in memory so the
// status API can serve them.
type SnapshotSink struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewSnapshotSink returns an empty SnapshotSink.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{}
}

// Consume folds the batch into the snapshot.
func (s *SnapshotSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.snap = Snapshot{
				RunID:     evt.RunUUID().String(),
				StartedAt: evt.TS,
				Progress:  evt.Observation,
			}
		case progress.StageProgress:
			s.snap.Progress = evt.Observation
		case progress.StageBatchFlushed:
			s.snap.Batches++
			s.snap.Persisted += int64(evt.Count)
			s.snap.Tombstones += int64(evt.Tombstones)
		case progress.StageBatchFailed:
			s.snap.FailedBatches++
		case progress.StageFetchFailed:
			s.snap.Dropped++
		case progress.StageRunDone:
			finished := evt.TS
			s.snap.FinishedAt = &finished
			s.snap.Progress.Processed = evt.Observation.Processed
		}
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *SnapshotSink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	if s.snap.FinishedAt != nil {
		finished := *s.snap.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
