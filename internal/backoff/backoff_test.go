package backoff

import (
	"testing"
	"time"
)

func TestPolicy_DelayDoubles(t *testing.T) {
	p := Policy{Base: time.Second, Max: 60 * time.Second, MaxAttempts: 10}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}
	for attempt, w := range want {
		if got := p.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestPolicy_DelayCappedAtMax(t *testing.T) {
	p := Policy{Base: time.Second, Max: 5 * time.Second, MaxAttempts: 10}

	if got := p.Delay(3); got != 5*time.Second {
		t.Errorf("Delay(3) = %v, want 5s cap", got)
	}
	if got := p.Delay(60); got != 5*time.Second {
		t.Errorf("Delay(60) = %v, want 5s cap for huge attempt", got)
	}
}

func TestPolicy_NegativeAttempt(t *testing.T) {
	p := Policy{Base: time.Second, Max: 10 * time.Second, MaxAttempts: 3}

	if got := p.Delay(-5); got != time.Second {
		t.Errorf("Delay(-5) = %v, want base delay", got)
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	p := Policy{Base: time.Second, Max: time.Minute, MaxAttempts: 3}

	for attempt := 0; attempt < 3; attempt++ {
		if p.Exhausted(attempt) {
			t.Errorf("Exhausted(%d) = true, want false", attempt)
		}
	}
	if !p.Exhausted(3) {
		t.Error("Exhausted(3) = false, want true")
	}
}

func TestPolicy_ZeroValueUsesDefaults(t *testing.T) {
	var p Policy

	if got := p.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want default 1s", got)
	}
	if !p.Exhausted(5) {
		t.Error("Exhausted(5) = false, want true with default budget")
	}
}
