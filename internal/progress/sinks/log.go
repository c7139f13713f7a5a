package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/item-crawler/internal/progress"
)

// LogSink writes run milestones through zap. Progress lines are logged by
// progress.Meter itself.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logEvent(evt)
	}
	return nil
}

func (s *LogSink) logEvent(evt progress.Event) {
	runID := zap.Stringer("run_id", evt.RunUUID())
	obs := evt.Observation
	switch evt.Stage {
	case progress.StageRunStart:
		s.logger.Info("crawl started",
			runID,
			zap.Int64("max_id", obs.Total),
			zap.Int64("already_persisted", obs.Processed),
		)
	case progress.StageBatchFlushed:
		s.logger.Debug("batch flushed",
			runID,
			zap.Int("worker", evt.Worker),
			zap.Int("count", evt.Count),
			zap.Int("tombstones", evt.Tombstones),
			zap.Duration("dur", evt.Dur),
		)
	case progress.StageBatchFailed:
		s.logger.Warn("batch discarded",
			runID,
			zap.Int("worker", evt.Worker),
			zap.Int("count", evt.Count),
			zap.String("note", evt.Note),
		)
	case progress.StageFetchFailed:
		s.logger.Debug("item dropped for this run",
			runID,
			zap.Int("worker", evt.Worker),
			zap.Int64("id", evt.ItemID),
		)
	case progress.StageRunDone:
		s.logger.Info("crawl finished",
			runID,
			zap.Int64("processed", obs.Processed),
			zap.Int64("max_id", obs.Total),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
