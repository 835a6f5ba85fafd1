// Package health implements the connection health monitor: an independent,
// UI-facing signal of transport connectivity quality. It polls the
// transport's connectivity flags on a timer and derives a coarse quality
// bucket from the time since the last confirmed heartbeat.
//
// The monitor owns no channel; it is a read-only oracle that never feeds
// back into any subscription manager.
package health
