// Package progress turns the gap scanner's processed counter into throughput
// and ETA observations, and fans run events (start, progress, batch flushes,
// dropped ids, completion) out to pluggable sinks through a non-blocking Hub.
// Nothing in this package affects scheduling or what gets persisted.
package progress
