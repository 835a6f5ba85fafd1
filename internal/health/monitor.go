package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/breatheio/realtime/internal/transport"
)

// Status is the transport connectivity state as seen by the monitor.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusConnecting   Status = "connecting"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Quality is the coarse, consumer-facing connectivity bucket.
type Quality string

const (
	QualityExcellent    Quality = "excellent"
	QualityGood         Quality = "good"
	QualityPoor         Quality = "poor"
	QualityDisconnected Quality = "disconnected"
)

// Quality bucket boundaries on time since the last heartbeat.
const (
	excellentWithin = 30 * time.Second
	goodWithin      = 60 * time.Second
	poorWithin      = 120 * time.Second
)

// Health is one observable snapshot of the monitor's state.
type Health struct {
	Status            Status
	Quality           Quality
	LastCheck         time.Time
	LastHeartbeat     time.Time
	ReconnectAttempts int
	Err               error
}

// IsHealthy reports whether the transport looked connected at the last check.
func (h Health) IsHealthy() bool {
	return h.Status == StatusConnected
}

// QualityFor derives the quality bucket from status and heartbeat age. It is
// a pure function: the bucket is recomputed on every snapshot, never stored.
func QualityFor(status Status, sinceHeartbeat time.Duration, heartbeatSeen bool) Quality {
	if !heartbeatSeen {
		return QualityDisconnected
	}

	if status == StatusConnected {
		switch {
		case sinceHeartbeat < excellentWithin:
			return QualityExcellent
		case sinceHeartbeat < goodWithin:
			return QualityGood
		case sinceHeartbeat < poorWithin:
			return QualityPoor
		default:
			return QualityDisconnected
		}
	}

	// Not connected right now, but a recent heartbeat means the outage is
	// fresh and data is only slightly stale.
	if sinceHeartbeat < poorWithin {
		return QualityPoor
	}
	return QualityDisconnected
}

// Config configures a Monitor.
type Config struct {
	CheckInterval  time.Duration // periodic sampling interval
	ReconnectDelay time.Duration // wait before re-checking after ManualReconnect
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  20 * time.Second,
		ReconnectDelay: 2 * time.Second,
	}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithClock sets the clock driving the check timer.
func WithClock(clk clock.Clock) Option {
	return func(m *Monitor) { m.clk = clk }
}

// WithOnChange registers a callback invoked whenever the snapshot changes.
func WithOnChange(fn func(Health)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// Monitor samples transport connectivity and exposes a quality signal.
type Monitor struct {
	cfg      Config
	tr       transport.Transport
	logger   *slog.Logger
	clk      clock.Clock
	onChange func(Health)

	mu            sync.Mutex
	status        Status
	lastCheck     time.Time
	lastHeartbeat time.Time
	attempts      int
	lastErr       error
	started       bool
	done          chan struct{}
}

// NewMonitor creates a Monitor over the given transport.
func NewMonitor(cfg Config, tr transport.Transport, opts ...Option) *Monitor {
	def := DefaultConfig()
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}

	m := &Monitor{
		cfg:    cfg,
		tr:     tr,
		logger: slog.Default(),
		clk:    clock.New(),
		status: StatusDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins periodic checks. The first check runs immediately.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	m.CheckNow()

	ticker := m.clk.Ticker(m.cfg.CheckInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.CheckNow()
			}
		}
	}()
}

// Stop halts periodic checks. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	close(m.done)
}

// CheckNow samples the transport immediately and returns the new snapshot.
func (m *Monitor) CheckNow() Health {
	connected := m.tr.IsConnected()
	connecting := m.tr.IsConnecting()
	now := m.clk.Now()

	m.mu.Lock()
	m.lastCheck = now
	switch {
	case connected:
		m.status = StatusConnected
		m.lastHeartbeat = now
		m.lastErr = nil
	case connecting:
		m.status = StatusConnecting
	default:
		if m.lastErr != nil {
			m.status = StatusError
		} else {
			m.status = StatusDisconnected
		}
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
	return snap
}

// ManualReconnect records a user-initiated retry: it bumps the attempt
// counter, flips the status to connecting, and re-checks after a short
// delay. It is independent of any channel's own retry budget.
func (m *Monitor) ManualReconnect() {
	m.mu.Lock()
	m.attempts++
	m.status = StatusConnecting
	m.lastCheck = m.clk.Now()
	done := m.done
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Debug("manual reconnect requested", "attempts", snap.ReconnectAttempts)
	m.notify(snap)

	m.clk.AfterFunc(m.cfg.ReconnectDelay, func() {
		if done != nil {
			select {
			case <-done:
				return // stopped before the timer fired
			default:
			}
		}
		m.CheckNow()
	})
}

// ReportError records a transport-level failure observed by a consumer, so
// the UI can show an error state the periodic check alone cannot see.
func (m *Monitor) ReportError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.status = StatusError
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

// ResetErrors clears accumulated error state without forcing a reconnect.
func (m *Monitor) ResetErrors() {
	m.mu.Lock()
	m.lastErr = nil
	m.attempts = 0
	if m.status == StatusError {
		m.status = StatusDisconnected
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

// Snapshot returns the current health with a freshly derived quality bucket.
func (m *Monitor) Snapshot() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// IsHealthy reports whether the last check saw a live connection.
func (m *Monitor) IsHealthy() bool {
	return m.Snapshot().IsHealthy()
}

func (m *Monitor) snapshotLocked() Health {
	heartbeatSeen := !m.lastHeartbeat.IsZero()
	var since time.Duration
	if heartbeatSeen {
		since = m.clk.Now().Sub(m.lastHeartbeat)
	}

	return Health{
		Status:            m.status,
		Quality:           QualityFor(m.status, since, heartbeatSeen),
		LastCheck:         m.lastCheck,
		LastHeartbeat:     m.lastHeartbeat,
		ReconnectAttempts: m.attempts,
		Err:               m.lastErr,
	}
}

func (m *Monitor) notify(snap Health) {
	if m.onChange != nil {
		m.onChange(snap)
	}
}
