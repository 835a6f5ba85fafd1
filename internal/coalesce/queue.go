package coalesce

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/breatheio/realtime/internal/scheduler"
)

// Errors
var ErrNoHandler = errors.New("batch handler is required")

// DefaultMaxSize bounds the pending collection when Options.MaxSize is zero.
const DefaultMaxSize = 1000

// Options configures a Queue.
type Options[T any] struct {
	// Handler receives each flushed item in insertion order. Required.
	Handler func(T)

	// Transform, when set, is applied to every item on Enqueue before it
	// is buffered.
	Transform func(T) T

	// KeyFunc enables dedupe mode: the queue keeps only the latest item
	// per key. Nil keeps every item in FIFO order.
	KeyFunc func(T) string

	// MaxSize bounds the pending collection. Zero means DefaultMaxSize.
	MaxSize int

	// OnOverflow receives items evicted because the queue was full.
	OnOverflow func(T)

	// Strategy decides when an automatic flush fires. Zero value is a
	// 100ms debounce.
	Strategy scheduler.Strategy

	// Logger records handler panics. Nil uses slog.Default().
	Logger *slog.Logger

	// Clock drives the flush schedule. Nil uses the real clock.
	Clock clock.Clock
}

// entry keeps a buffered item with its dedupe key.
type entry[T any] struct {
	key  string
	item T
}

// Queue buffers, deduplicates, and batches items for one consumer.
type Queue[T any] struct {
	opts  Options[T]
	sched *scheduler.Scheduler

	mu      sync.Mutex
	pending []entry[T]     // insertion order, shared by both modes
	index   map[string]int // key → position in pending (dedupe mode)
	closed  bool
}

// New creates a Queue for one consumer subscription.
func New[T any](opts Options[T]) (*Queue[T], error) {
	if opts.Handler == nil {
		return nil, ErrNoHandler
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	q := &Queue[T]{
		opts:  opts,
		sched: scheduler.New(opts.Strategy, opts.Clock),
	}
	if opts.KeyFunc != nil {
		q.index = make(map[string]int)
	}
	return q, nil
}

// Enqueue buffers one item and arms the flush schedule. In dedupe mode a
// newer item replaces the pending one for the same key; otherwise items are
// appended in arrival order.
func (q *Queue[T]) Enqueue(item T) {
	if q.opts.Transform != nil {
		item = q.opts.Transform(item)
	}

	var overflowed []T

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	if q.opts.KeyFunc != nil {
		key := q.opts.KeyFunc(item)
		if pos, ok := q.index[key]; ok {
			// Last write wins, original position kept.
			q.pending[pos].item = item
			q.mu.Unlock()
			q.sched.Schedule(q.flushScheduled)
			return
		}
		q.pending = append(q.pending, entry[T]{key: key, item: item})
		q.index[key] = len(q.pending) - 1
	} else {
		q.pending = append(q.pending, entry[T]{item: item})
	}

	for len(q.pending) > q.opts.MaxSize {
		overflowed = append(overflowed, q.evictOldestLocked())
	}
	q.mu.Unlock()

	for _, dropped := range overflowed {
		if q.opts.OnOverflow != nil {
			q.opts.OnOverflow(dropped)
		}
	}

	q.sched.Schedule(q.flushScheduled)
}

// Flush synchronously drains all pending items, invoking the handler once
// per item in insertion order. A panic in the handler is logged and does not
// stop delivery of the rest of the batch.
func (q *Queue[T]) Flush() {
	q.mu.Lock()
	// Disarm before draining, inside the critical section: an Enqueue
	// landing after the drain must find its own schedule still armed, or
	// its item would sit pending with no flush coming.
	q.sched.Cancel()
	batch := q.pending
	q.pending = nil
	if q.index != nil {
		q.index = make(map[string]int)
	}
	q.mu.Unlock()

	for _, e := range batch {
		q.deliver(e.item)
	}
}

// Cancel clears pending items and the armed flush without delivering
// anything. Used on consumer teardown; safe to call repeatedly.
func (q *Queue[T]) Cancel() {
	q.mu.Lock()
	q.pending = nil
	if q.index != nil {
		q.index = make(map[string]int)
	}
	q.closed = true
	q.mu.Unlock()

	q.sched.Destroy()
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// flushScheduled is the scheduler callback.
func (q *Queue[T]) flushScheduled() {
	q.Flush()
}

// evictOldestLocked removes the oldest unflushed entry and returns its item.
func (q *Queue[T]) evictOldestLocked() T {
	oldest := q.pending[0]
	q.pending = q.pending[1:]
	if q.index != nil {
		delete(q.index, oldest.key)
		for key, pos := range q.index {
			q.index[key] = pos - 1
		}
	}
	return oldest.item
}

// deliver invokes the handler for one item, containing any panic.
func (q *Queue[T]) deliver(item T) {
	defer func() {
		if r := recover(); r != nil {
			q.opts.Logger.Error("coalesce handler panicked", "panic", r)
		}
	}()
	q.opts.Handler(item)
}
