// Package crawler defines the item, record, and port types shared by the
// resumable item crawler: the remote Source, the durable Store, the batch
// Publisher, and the Clock used for progress timing.
package crawler
