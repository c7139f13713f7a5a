package crawler

import (
	"encoding/json"
	"fmt"
)

// Item is a single remote item as returned by the Source. Payload is the
// compact JSON body, or a tombstone when the remote had no content for ID.
type Item struct {
	ID        int64
	Payload   json.RawMessage
	Tombstone bool
}

// Record is one row handed to Store.FlushBatch.
type Record struct {
	ID   int64
	JSON string
}

// Record converts the item into its persisted form.
func (i Item) Record() Record {
	return Record{ID: i.ID, JSON: string(i.Payload)}
}

type tombstone struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

// Tombstone synthesizes the stand-in item stored for ids the remote returned
// no content for. The payload is always {"id":<id>,"deleted":true}.
func Tombstone(id int64) Item {
	payload, err := json.Marshal(tombstone{ID: id, Deleted: true})
	if err != nil {
		// Marshal of two scalar fields cannot fail.
		panic(fmt.Sprintf("marshal tombstone: %v", err))
	}
	return Item{ID: id, Payload: payload, Tombstone: true}
}

// StoreStats summarizes what a Store currently holds.
type StoreStats struct {
	Items     int64 `json:"items"`
	HighestID int64 `json:"highest_id"`
}

// BatchCommitted is published after a batch becomes durable.
type BatchCommitted struct {
	RunID   string `json:"run_id"`
	Worker  int    `json:"worker"`
	Count   int    `json:"count"`
	FirstID int64  `json:"first_id"`
	LastID  int64  `json:"last_id"`
}
