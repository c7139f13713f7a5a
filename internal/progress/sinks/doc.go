// Package sinks implements concrete progress consumers: structured zap
// logging (the human-readable status lines), Prometheus collectors, a
// terminal progress bar, and an in-memory snapshot served over HTTP. Each sink
// satisfies progress.Sink and is safe for repeated Consume/Close cycles.
package sinks
