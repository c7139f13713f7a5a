package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported run stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageProgress     Stage = "PROGRESS"
	StageBatchFlushed Stage = "BATCH_FLUSHED"
	StageBatchFailed  Stage = "BATCH_FAILED"
	StageFetchFailed  Stage = "FETCH_FAILED"
	StageRunDone      Stage = "RUN_DONE"
)

// Event captures a single milestone of a crawl run.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Worker is the index of the emitting worker, -1 for run-level events.
	Worker int
	// ItemID is the id that failed to fetch (FETCH_FAILED only).
	ItemID int64
	// Count is the number of records in a flushed or failed batch.
	Count int
	// Tombstones counts synthesized tombstones inside a flushed batch.
	Tombstones int
	// Observation carries throughput data for PROGRESS, RUN_START and RUN_DONE.
	Observation Observation
	// Dur is the flush latency or total run time.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageProgress, StageRunDone:
	case StageBatchFlushed, StageBatchFailed:
		if e.Count <= 0 {
			return errors.New("batch events require a positive count")
		}
	case StageFetchFailed:
		if e.ItemID < 0 {
			return errors.New("fetch failure requires an item id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
