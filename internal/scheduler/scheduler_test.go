package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestScheduler_DebounceCollapsesBurst(t *testing.T) {
	mock := clock.NewMock()
	s := New(Debounce(100*time.Millisecond), mock)

	var fired atomic.Int32
	fn := func() { fired.Add(1) }

	s.Schedule(fn)
	mock.Add(50 * time.Millisecond)
	s.Schedule(fn) // re-arms the window
	mock.Add(50 * time.Millisecond)

	if fired.Load() != 0 {
		t.Fatalf("fired %d times before debounce window elapsed", fired.Load())
	}

	mock.Add(50 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("fired = %d, want 1 after quiet period", fired.Load())
	}
}

func TestScheduler_IdleDeadlineBoundsStarvation(t *testing.T) {
	mock := clock.NewMock()
	s := New(Idle(200*time.Millisecond), mock)

	var fired atomic.Int32
	fn := func() { fired.Add(1) }

	// Keep re-scheduling more often than the idle grace: without the
	// deadline the callback would never run.
	for i := 0; i < 100; i++ {
		s.Schedule(fn)
		mock.Add(3 * time.Millisecond)
	}

	if fired.Load() != 1 {
		t.Errorf("fired = %d, want exactly 1 at the deadline", fired.Load())
	}
}

func TestScheduler_IdleFiresAfterQuietPeriod(t *testing.T) {
	mock := clock.NewMock()
	s := New(Idle(time.Second), mock)

	var fired atomic.Int32
	s.Schedule(func() { fired.Add(1) })

	mock.Add(10 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("fired = %d, want 1 after idle grace", fired.Load())
	}

	// The deadline timer must not fire a second time.
	mock.Add(2 * time.Second)
	if fired.Load() != 1 {
		t.Errorf("fired = %d, want still 1 after deadline passed", fired.Load())
	}
}

func TestScheduler_FrameSingleArm(t *testing.T) {
	mock := clock.NewMock()
	s := New(Frame(), mock)

	var fired atomic.Int32
	fn := func() { fired.Add(1) }

	s.Schedule(fn)
	s.Schedule(fn)
	s.Schedule(fn)

	mock.Add(frameInterval)
	if fired.Load() != 1 {
		t.Errorf("fired = %d, want 1 per frame regardless of schedule calls", fired.Load())
	}
}

func TestScheduler_MicrotaskFiresNextTurn(t *testing.T) {
	mock := clock.NewMock()
	s := New(Microtask(), mock)

	var fired atomic.Int32
	s.Schedule(func() { fired.Add(1) })

	if fired.Load() != 0 {
		t.Fatal("microtask ran synchronously inside Schedule")
	}
	mock.Add(time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("fired = %d, want 1", fired.Load())
	}
}

func TestScheduler_CancelDropsPending(t *testing.T) {
	mock := clock.NewMock()
	s := New(Debounce(50*time.Millisecond), mock)

	var fired atomic.Int32
	s.Schedule(func() { fired.Add(1) })

	if !s.Pending() {
		t.Fatal("Pending() = false after Schedule")
	}

	s.Cancel()
	s.Cancel() // idempotent

	mock.Add(time.Second)
	if fired.Load() != 0 {
		t.Errorf("fired = %d after Cancel, want 0", fired.Load())
	}
	if s.Pending() {
		t.Error("Pending() = true after Cancel")
	}
}

func TestScheduler_DestroyRefusesFutureWork(t *testing.T) {
	mock := clock.NewMock()
	s := New(Debounce(50*time.Millisecond), mock)

	var fired atomic.Int32
	s.Schedule(func() { fired.Add(1) })
	s.Destroy()
	s.Schedule(func() { fired.Add(1) })

	mock.Add(time.Second)
	if fired.Load() != 0 {
		t.Errorf("fired = %d after Destroy, want 0", fired.Load())
	}
}
