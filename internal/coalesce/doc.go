// Package coalesce implements the message coalescing queue: it decouples the
// arrival rate of raw transport events from the rate at which application
// state is updated, collapsing redundant updates along the way.
//
// A queue runs in one of two modes. With a key extractor configured it keeps
// only the most recent item per key (last write wins, insertion order
// preserved for delivery). Without one it is a bounded FIFO. In both modes a
// full queue drops the oldest unflushed item and reports it through the
// overflow callback; nothing is ever lost silently.
package coalesce
