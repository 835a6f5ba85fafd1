package fallback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/breatheio/realtime/internal/backoff"
	"github.com/breatheio/realtime/internal/subscription"
)

// State is the controller's view of how data is currently being delivered.
type State string

const (
	// StateConnecting means the realtime path is being established and no
	// data is flowing yet.
	StateConnecting State = "connecting"
	// StateConnected means realtime delivery is active and polling is off.
	StateConnected State = "connected"
	// StateFallback means realtime is unavailable and timed polling is
	// keeping data flowing.
	StateFallback State = "fallback"
	// StateFailed means realtime is dead and no polling strategy was
	// configured. No data is flowing.
	StateFailed State = "failed"
)

// ErrStarted is returned by Start when the controller is already running.
var ErrStarted = errors.New("fallback: controller already started")

// ErrNoSource is returned by Start when no realtime source has been bound.
var ErrNoSource = errors.New("fallback: no realtime source bound")

// PollFunc fetches one batch of data over the polling path. It is invoked
// on the poll interval while the controller is in StateFallback. Errors are
// logged and the ticker keeps running.
type PollFunc func(ctx context.Context) error

// RealtimeSource is the slice of the subscription manager the controller
// drives. Status flows back through ObserveStatus.
type RealtimeSource interface {
	Subscribe()
	Reconnect()
	Disconnect()
}

// Config controls polling cadence and the realtime retry budget.
type Config struct {
	// PollInterval is the cadence of PollFunc calls in fallback mode.
	// Defaults to 30s.
	PollInterval time.Duration

	// PollTimeout bounds each individual PollFunc call. Defaults to 10s.
	PollTimeout time.Duration

	// MaxRetries bounds how many times the controller re-attempts the
	// realtime path after the source reports it exhausted. Once spent the
	// controller stays in fallback mode. Defaults to 5.
	MaxRetries int

	// RetryBaseDelay and RetryMaxDelay shape the backoff between realtime
	// re-attempts. Default to 2s and 60s.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 60 * time.Second
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock substitutes the time source, used in tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clk = clk }
}

// WithOnState registers a callback invoked on every state transition.
// Transitions are delivered in order, one at a time.
func WithOnState(fn func(State)) Option {
	return func(c *Controller) { c.onState = fn }
}

// Controller composes a realtime subscription with a polling fallback and
// decides which path carries data at any moment.
type Controller struct {
	cfg     Config
	poll    PollFunc
	policy  backoff.Policy
	logger  *slog.Logger
	clk     clock.Clock
	onState func(State)

	mu         sync.Mutex
	rt         RealtimeSource
	state      State
	attempt    int
	started    bool
	stopping   bool
	pollStop   chan struct{}
	retryTimer *clock.Timer
	baseCtx    context.Context
	cancel     context.CancelFunc

	pendingState []State
	emitting     bool
}

// NewController builds a controller around poll. A nil poll is allowed: the
// controller then reports StateFailed instead of StateFallback when the
// realtime path degrades.
func NewController(cfg Config, poll PollFunc, opts ...Option) *Controller {
	cfg.applyDefaults()
	c := &Controller{
		cfg:    cfg,
		poll:   poll,
		logger: slog.Default(),
		clk:    clock.New(),
		state:  StateConnecting,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy = backoff.Policy{
		Base:        cfg.RetryBaseDelay,
		Max:         cfg.RetryMaxDelay,
		MaxAttempts: cfg.MaxRetries,
	}
	return c
}

// Bind attaches the realtime source. It must be called before Start; the
// source's status callback should be wired to ObserveStatus.
func (c *Controller) Bind(rt RealtimeSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rt = rt
}

// Start kicks off the realtime path. ctx bounds every PollFunc invocation
// made while degraded.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrStarted
	}
	if c.rt == nil {
		c.mu.Unlock()
		return ErrNoSource
	}
	c.started = true
	c.stopping = false
	c.baseCtx, c.cancel = context.WithCancel(ctx)
	c.setStateLocked(StateConnecting)
	rt := c.rt
	c.mu.Unlock()

	rt.Subscribe()
	return nil
}

// Stop tears everything down: polling, pending realtime retries, and the
// realtime subscription itself. Safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started || c.stopping {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	c.started = false
	c.stopPollingLocked()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	rt := c.rt
	c.mu.Unlock()

	rt.Disconnect()
}

// State reports the current delivery mode.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ObserveStatus consumes status transitions from the realtime source. Wire
// it as the subscription manager's status callback.
func (c *Controller) ObserveStatus(st subscription.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.stopping {
		return
	}

	switch st.State {
	case subscription.StateConnected:
		c.attempt = 0
		if c.retryTimer != nil {
			c.retryTimer.Stop()
			c.retryTimer = nil
		}
		c.stopPollingLocked()
		c.setStateLocked(StateConnected)

	case subscription.StateError:
		// Any realtime error degrades to polling so data keeps flowing
		// while the source works through its own retry budget. Only a
		// terminal error makes the controller schedule its own
		// re-attempt of the realtime path.
		c.degradeLocked()
		if errors.Is(st.Err, subscription.ErrRetriesExhausted) {
			c.scheduleRealtimeRetryLocked()
		}

	case subscription.StateIdle:
		// A clean close while we believed the connection healthy is an
		// unexpected loss. Idle reports caused by our own Reconnect
		// arrive while already degraded and are ignored.
		if c.state == StateConnected {
			c.degradeLocked()
			c.scheduleRealtimeRetryLocked()
		}
	}
}

// degradeLocked moves to fallback mode and starts the poll ticker, or to
// StateFailed when there is nothing to poll with.
func (c *Controller) degradeLocked() {
	if c.poll == nil {
		c.setStateLocked(StateFailed)
		return
	}
	c.setStateLocked(StateFallback)
	c.startPollingLocked()
}

func (c *Controller) startPollingLocked() {
	if c.pollStop != nil {
		return
	}
	stop := make(chan struct{})
	c.pollStop = stop
	ticker := c.clk.Ticker(c.cfg.PollInterval)
	go func() {
		defer ticker.Stop()
		c.runPoll()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.runPoll()
			}
		}
	}()
}

func (c *Controller) stopPollingLocked() {
	if c.pollStop == nil {
		return
	}
	close(c.pollStop)
	c.pollStop = nil
}

func (c *Controller) runPoll() {
	c.mu.Lock()
	base := c.baseCtx
	c.mu.Unlock()
	if base == nil {
		return
	}
	ctx, cancel := context.WithTimeout(base, c.cfg.PollTimeout)
	defer cancel()
	if err := c.poll(ctx); err != nil {
		c.logger.Error("fallback poll failed", "error", err)
	}
}

// scheduleRealtimeRetryLocked arms one re-attempt of the realtime path. Once
// the retry budget is spent the controller stays on polling permanently.
func (c *Controller) scheduleRealtimeRetryLocked() {
	if c.retryTimer != nil {
		return
	}
	if c.policy.Exhausted(c.attempt) {
		c.logger.Warn("realtime retry budget exhausted, staying on polling",
			"attempts", c.attempt)
		return
	}
	delay := c.policy.Delay(c.attempt)
	c.attempt++
	c.logger.Info("scheduling realtime re-attempt",
		"attempt", c.attempt, "delay", delay)
	c.retryTimer = c.clk.AfterFunc(delay, func() {
		c.mu.Lock()
		c.retryTimer = nil
		if !c.started || c.stopping || c.state == StateConnected {
			c.mu.Unlock()
			return
		}
		rt := c.rt
		c.mu.Unlock()
		rt.Reconnect()
	})
}

// setStateLocked records a transition and queues the callback. Callbacks run
// outside the lock, in order, never concurrently.
func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onState == nil {
		return
	}
	c.pendingState = append(c.pendingState, s)
	if c.emitting {
		return
	}
	c.emitting = true
	go c.drainState()
}

func (c *Controller) drainState() {
	for {
		c.mu.Lock()
		if len(c.pendingState) == 0 {
			c.emitting = false
			c.mu.Unlock()
			return
		}
		s := c.pendingState[0]
		c.pendingState = c.pendingState[1:]
		c.mu.Unlock()
		c.onState(s)
	}
}
