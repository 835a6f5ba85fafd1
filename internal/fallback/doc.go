// Package fallback implements the graceful degradation controller: it keeps
// data flowing when the realtime transport is persistently unavailable by
// switching to timed polling, and it periodically attempts to return to the
// realtime path with exponential backoff.
//
// Realtime failures are expected and recoverable; they surface only as a
// state transition, never as an error. The single hard failure is a data
// type with neither a working realtime path nor a polling strategy.
package fallback
