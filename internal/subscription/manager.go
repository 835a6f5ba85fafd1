package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/breatheio/realtime/internal/backoff"
	"github.com/breatheio/realtime/internal/transport"
)

// Errors
var (
	ErrNoChannel        = errors.New("channel name is required")
	ErrNoHandler        = errors.New("message handler is required")
	ErrNoTransport      = errors.New("transport is required")
	ErrBadFilter        = errors.New("filter predicate requires a table")
	ErrConnectTimeout   = errors.New("connection timeout")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// State is the manager's connection state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
)

// Status is a snapshot reported on every state transition.
type Status struct {
	State   State
	Attempt int   // retries consumed so far
	Err     error // last error, nil outside StateError
}

// Config configures a Manager.
type Config struct {
	Channel        string           // logical channel name, required
	Filter         transport.Filter // event filter for the channel binding
	Disabled       bool             // when set, Subscribe is a no-op until re-enabled by Reconnect
	MaxRetries     int              // retry budget before the error is terminal
	ConnectTimeout time.Duration    // how long a connect attempt may stay in connecting
	RetryBaseDelay time.Duration    // backoff base delay
	RetryMaxDelay  time.Duration    // backoff delay cap
}

// DefaultConfig returns sensible defaults for everything but Channel.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     5,
		ConnectTimeout: 10 * time.Second,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  30 * time.Second,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock sets the clock used for the connection-timeout and retry timers.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clk = clk }
}

// WithOnStatus registers a callback invoked on every state transition.
func WithOnStatus(fn func(Status)) Option {
	return func(m *Manager) { m.onStatus = fn }
}

// Manager owns the lifecycle of exactly one named channel.
type Manager struct {
	cfg       Config
	tr        transport.Transport
	onMessage func(transport.Envelope)
	onStatus  func(Status)
	policy    backoff.Policy
	logger    *slog.Logger
	clk       clock.Clock

	mu           sync.Mutex
	state        State
	err          error
	attempt      int
	generation   uint64 // bumped whenever earlier async callbacks must be ignored
	subscribing  bool
	sub          transport.Subscription
	connectTimer *clock.Timer
	retryTimer   *clock.Timer

	// Status callbacks are delivered in transition order by a single
	// drainer goroutine, so consumers never see reordered states.
	pendingStatus []Status
	emitting      bool
}

// NewManager validates the configuration and returns a Manager in StateIdle.
// Invalid configuration fails here, before any timer is armed.
func NewManager(cfg Config, tr transport.Transport, onMessage func(transport.Envelope), opts ...Option) (*Manager, error) {
	if cfg.Channel == "" {
		return nil, ErrNoChannel
	}
	if tr == nil {
		return nil, ErrNoTransport
	}
	if onMessage == nil {
		return nil, ErrNoHandler
	}
	if cfg.Filter.Predicate != "" && cfg.Filter.Table == "" {
		return nil, ErrBadFilter
	}

	def := DefaultConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}

	m := &Manager{
		cfg:       cfg,
		tr:        tr,
		onMessage: onMessage,
		policy: backoff.Policy{
			Base:        cfg.RetryBaseDelay,
			Max:         cfg.RetryMaxDelay,
			MaxAttempts: cfg.MaxRetries,
		},
		logger: slog.Default(),
		clk:    clock.New(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("channel", cfg.Channel)
	return m, nil
}

// Subscribe begins a connection attempt. Idempotent: while the manager is
// already connecting or connected, or a Subscribe is racing this one, the
// call is a no-op.
func (m *Manager) Subscribe() {
	m.mu.Lock()
	if m.cfg.Disabled || m.subscribing || m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.subscribing = true
	m.cancelTimersLocked()
	m.generation++
	gen := m.generation
	m.setStateLocked(StateConnecting, nil)

	ch := m.tr.Channel(m.cfg.Channel).On(m.cfg.Filter, func(env transport.Envelope) {
		m.deliver(gen, env)
	})

	// The timeout races the transport's status callback; whichever fires
	// first wins and the loser is suppressed by the generation check.
	m.connectTimer = m.clk.AfterFunc(m.cfg.ConnectTimeout, func() {
		m.handleChannelStatus(gen, transport.StatusTimedOut, ErrConnectTimeout)
	})
	m.mu.Unlock()

	sub, err := ch.Subscribe(func(status transport.ChannelStatus, serr error) {
		m.handleChannelStatus(gen, status, serr)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribing = false
	if gen != m.generation {
		// Disconnect or timeout won the race while Subscribe was in
		// flight; release whatever the transport handed back.
		if sub != nil {
			go sub.Unsubscribe(context.Background())
		}
		return
	}
	if err != nil {
		m.failLocked(err)
		return
	}
	m.sub = sub
}

// Reconnect resets the retry budget, tears down any existing channel, and
// immediately attempts to subscribe again. Used for user-initiated retry.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	m.cfg.Disabled = false
	m.teardownLocked()
	m.attempt = 0
	m.setStateLocked(StateIdle, nil)
	m.mu.Unlock()

	m.Subscribe()
}

// Disconnect tears down the channel and all timers and moves to StateIdle.
// Automatic reconnects are suppressed until Subscribe is called again. Safe
// to call repeatedly and from any state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()
	if m.state != StateIdle {
		m.setStateLocked(StateIdle, nil)
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the last error, nil outside StateError.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// IsConnected reports whether the channel is live.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Attempts returns the retries consumed since the last successful connect.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// deliver forwards a raw event to the consumer unless it belongs to a
// superseded subscription attempt.
func (m *Manager) deliver(gen uint64, env transport.Envelope) {
	m.mu.Lock()
	stale := gen != m.generation
	m.mu.Unlock()
	if stale {
		return
	}
	m.onMessage(env)
}

// handleChannelStatus reacts to transport status callbacks and to the
// connection-timeout timer, which reports itself as StatusTimedOut.
func (m *Manager) handleChannelStatus(gen uint64, status transport.ChannelStatus, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		// Late callback from a torn-down attempt: a success here must
		// not resurrect a connected state.
		return
	}

	switch status {
	case transport.StatusSubscribed:
		m.stopConnectTimerLocked()
		m.attempt = 0 // reset on success
		m.setStateLocked(StateConnected, nil)

	case transport.StatusChannelError, transport.StatusTimedOut:
		if err == nil {
			err = errors.New(string(status))
		}
		m.failLocked(err)

	case transport.StatusClosed:
		// Clean close from the transport side.
		m.teardownLocked()
		m.setStateLocked(StateIdle, nil)
	}
}

// failLocked handles one transient failure: release the channel, report
// StateError, and schedule a retry unless the budget is spent.
func (m *Manager) failLocked(err error) {
	m.stopConnectTimerLocked()
	m.releaseChannelLocked()

	// Invalidate any callback still in flight for the failed attempt.
	m.generation++

	if m.policy.Exhausted(m.attempt) {
		m.logger.Warn("subscription retries exhausted",
			"attempts", m.attempt,
			"error", err,
		)
		m.setStateLocked(StateError, errors.Join(ErrRetriesExhausted, err))
		return
	}

	delay := m.policy.Delay(m.attempt)
	m.attempt++
	m.setStateLocked(StateError, err)

	m.logger.Debug("scheduling subscription retry",
		"attempt", m.attempt,
		"delay", delay,
		"error", err,
	)

	gen := m.generation
	m.retryTimer = m.clk.AfterFunc(delay, func() {
		m.mu.Lock()
		stale := gen != m.generation || m.state != StateError
		if !stale {
			m.retryTimer = nil
		}
		m.mu.Unlock()
		if stale {
			return
		}
		m.Subscribe()
	})
}

// teardownLocked cancels timers, releases the channel, and invalidates
// outstanding callbacks. Idempotent.
func (m *Manager) teardownLocked() {
	m.cancelTimersLocked()
	m.releaseChannelLocked()
	m.generation++
	m.err = nil
}

func (m *Manager) releaseChannelLocked() {
	if m.sub == nil {
		return
	}
	sub := m.sub
	m.sub = nil
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sub.Unsubscribe(ctx); err != nil {
			m.logger.Debug("unsubscribe failed", "error", err)
		}
	}()
}

func (m *Manager) cancelTimersLocked() {
	m.stopConnectTimerLocked()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) stopConnectTimerLocked() {
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
}

// setStateLocked records a transition and queues it for the consumer.
func (m *Manager) setStateLocked(state State, err error) {
	m.state = state
	m.err = err

	if m.onStatus == nil {
		return
	}
	m.pendingStatus = append(m.pendingStatus, Status{State: state, Attempt: m.attempt, Err: err})
	if !m.emitting {
		m.emitting = true
		go m.drainStatus()
	}
}

// drainStatus delivers queued transitions outside the lock, in order.
func (m *Manager) drainStatus() {
	for {
		m.mu.Lock()
		if len(m.pendingStatus) == 0 {
			m.emitting = false
			m.mu.Unlock()
			return
		}
		status := m.pendingStatus[0]
		m.pendingStatus = m.pendingStatus[1:]
		m.mu.Unlock()

		m.onStatus(status)
	}
}
