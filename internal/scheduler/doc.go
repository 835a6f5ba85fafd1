// Package scheduler arms a single deferred callback per instance using one
// of four flush strategies: debounce, idle-with-deadline, frame-aligned, or
// microtask. The coalescing queue uses it to decide when a pending batch is
// delivered.
//
// All timers go through a clock.Clock so tests can drive time with a mock.
package scheduler
