// Package backoff provides the exponential backoff policy shared by the
// subscription manager, the degradation controller, and the REST client.
package backoff

import "time"

// capExp bounds the exponent so the shift below never overflows before the
// Max cap applies.
const capExp = 16

// Policy describes bounded exponential backoff.
type Policy struct {
	Base        time.Duration // delay for attempt 0
	Max         time.Duration // cap on any single delay
	MaxAttempts int           // attempts before Exhausted reports true
}

// DefaultPolicy returns the policy used when callers leave fields zero.
func DefaultPolicy() Policy {
	return Policy{
		Base:        time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// normalized fills zero fields from DefaultPolicy.
func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Base <= 0 {
		p.Base = d.Base
	}
	if p.Max <= 0 {
		p.Max = d.Max
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Delay returns the wait before retry number attempt (0-based):
// Base * 2^attempt, capped at Max.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 0 {
		attempt = 0
	}
	if attempt > capExp {
		attempt = capExp
	}
	delay := p.Base << uint(attempt)
	if delay > p.Max || delay <= 0 {
		delay = p.Max
	}
	return delay
}

// Exhausted reports whether attempt has reached the retry budget.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.normalized().MaxAttempts
}
