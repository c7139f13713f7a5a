package crawler

import "errors"

var (
	// ErrEmptyBatch is returned by stores when FlushBatch receives no records.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrDuplicateID means a batch tried to insert an id that already exists.
	// Workers draw ids from one scanner, so this signals a broken invariant.
	ErrDuplicateID = errors.New("duplicate item id")
	// ErrNotConfigured is returned when a component is used without its backend.
	ErrNotConfigured = errors.New("not configured")
)
