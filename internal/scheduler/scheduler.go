package scheduler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Kind selects when a scheduled callback fires.
type Kind int

const (
	// KindDebounce re-arms the delay on every Schedule call, so the
	// callback fires only after a quiet period.
	KindDebounce Kind = iota
	// KindIdle waits a short grace for more work but never fires later
	// than the configured deadline after the first Schedule call.
	KindIdle
	// KindFrame fires on the next frame boundary (~16ms).
	KindFrame
	// KindMicrotask fires on the soonest asynchronous turn.
	KindMicrotask
)

const (
	idleGrace     = 5 * time.Millisecond
	frameInterval = 16 * time.Millisecond
)

// Strategy describes a flush schedule.
type Strategy struct {
	Kind    Kind
	Delay   time.Duration // debounce delay
	Timeout time.Duration // idle hard deadline
}

// Debounce returns a strategy that fires d after the last Schedule call.
func Debounce(d time.Duration) Strategy {
	return Strategy{Kind: KindDebounce, Delay: d}
}

// Idle returns a strategy that fires after a short quiet period, bounded by
// timeout since the first Schedule call so bursts cannot starve it.
func Idle(timeout time.Duration) Strategy {
	return Strategy{Kind: KindIdle, Timeout: timeout}
}

// Frame returns a strategy aligned to the next frame boundary.
func Frame() Strategy {
	return Strategy{Kind: KindFrame}
}

// Microtask returns a strategy that fires on the next asynchronous turn.
func Microtask() Strategy {
	return Strategy{Kind: KindMicrotask}
}

// Scheduler arms at most one pending callback at a time.
type Scheduler struct {
	strategy Strategy
	clk      clock.Clock

	mu        sync.Mutex
	timer     *clock.Timer
	deadline  *clock.Timer // idle strategy only
	armed     bool
	destroyed bool
}

// New creates a Scheduler. A nil clk uses the real clock.
func New(strategy Strategy, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if strategy.Kind == KindDebounce && strategy.Delay <= 0 {
		strategy.Delay = 100 * time.Millisecond
	}
	if strategy.Kind == KindIdle && strategy.Timeout <= 0 {
		strategy.Timeout = time.Second
	}
	return &Scheduler{strategy: strategy, clk: clk}
}

// Schedule arms fn according to the strategy. While a callback is already
// armed, only the debounce and idle strategies adjust the pending timer;
// frame and microtask keep the earlier arm and the call is a no-op.
func (s *Scheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}

	switch s.strategy.Kind {
	case KindDebounce:
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = s.clk.AfterFunc(s.strategy.Delay, s.fireFunc(fn))

	case KindIdle:
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = s.clk.AfterFunc(idleGrace, s.fireFunc(fn))
		// Hard deadline armed once per burst so re-scheduling cannot
		// push delivery out forever.
		if !s.armed {
			s.deadline = s.clk.AfterFunc(s.strategy.Timeout, s.fireFunc(fn))
		}

	case KindFrame:
		if s.armed {
			return
		}
		s.timer = s.clk.AfterFunc(frameInterval, s.fireFunc(fn))

	case KindMicrotask:
		if s.armed {
			return
		}
		s.timer = s.clk.AfterFunc(0, s.fireFunc(fn))
	}

	s.armed = true
}

// fireFunc wraps fn so a single firing wins: the loser of the idle
// grace/deadline race and any callback arriving after Cancel or Destroy see
// armed == false and return.
func (s *Scheduler) fireFunc(fn func()) func() {
	return func() {
		s.mu.Lock()
		if !s.armed || s.destroyed {
			s.mu.Unlock()
			return
		}
		s.disarmLocked()
		s.mu.Unlock()

		fn()
	}
}

// Cancel drops any pending callback without running it. Safe to call when
// nothing is armed.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

// Destroy cancels any pending callback and refuses future Schedule calls.
// Idempotent.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
	s.destroyed = true
}

// Pending reports whether a callback is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
	s.armed = false
}
