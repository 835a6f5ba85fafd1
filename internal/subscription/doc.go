// Package subscription implements the channel subscription manager: it
// guarantees a single healthy transport channel per logical name, recovers
// from transient failures with bounded exponential backoff, and tears down
// safely.
//
// The manager drives a four-state machine (idle, connecting, connected,
// error). The connection timeout races the transport's own status callback;
// a monotonic generation counter invalidates whichever side loses, so a late
// callback can never resurrect a torn-down channel.
package subscription
