package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
)

// SocketConfig configures a Socket.
type SocketConfig struct {
	URL               string        // WebSocket URL of the backend realtime endpoint
	APIKey            string        // bearer token, empty for no auth
	HeartbeatInterval time.Duration // how often to send a heartbeat frame
	HeartbeatTimeout  time.Duration // max silence before the socket is considered stale
	JoinTimeout       time.Duration // per-channel join reply deadline
	WriteTimeout      time.Duration // write deadline for outgoing frames
}

// DefaultSocketConfig returns sensible defaults.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		HeartbeatInterval: 20 * time.Second,
		HeartbeatTimeout:  60 * time.Second,
		JoinTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// wireMessage is the framing shared by every frame on the socket.
type wireMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

// Protocol events.
const (
	evtJoin      = "phx_join"
	evtLeave     = "phx_leave"
	evtReply     = "phx_reply"
	evtError     = "phx_error"
	evtClose     = "phx_close"
	evtHeartbeat = "heartbeat"
	evtChanges   = "postgres_changes"

	heartbeatTopic = "phoenix"
)

// replyPayload is the body of a phx_reply frame.
type replyPayload struct {
	Status   string          `json:"status"` // "ok" or "error"
	Response json.RawMessage `json:"response"`
}

// changePayload is the body of a postgres_changes frame.
type changePayload struct {
	Type      EventKind       `json:"type"`
	Table     string          `json:"table"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
}

// joinFilter is the wire form of one channel binding filter.
type joinFilter struct {
	Event     string `json:"event"`
	Schema    string `json:"schema,omitempty"`
	Table     string `json:"table,omitempty"`
	Predicate string `json:"filter,omitempty"`
}

// joinPayload is the body of a phx_join frame.
type joinPayload struct {
	Config struct {
		PostgresChanges []joinFilter `json:"postgres_changes"`
	} `json:"config"`
}

// Socket is the production Transport over a single WebSocket connection.
type Socket struct {
	cfg    SocketConfig
	logger *slog.Logger
	clk    clock.Clock

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	connecting bool
	closed     bool
	lastAck    time.Time
	done       chan struct{} // per-connection; closed when that connection ends

	chanMu   sync.Mutex
	channels map[string]*socketChannel

	ref atomic.Int64
}

// SocketOption configures a Socket.
type SocketOption func(*Socket)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SocketOption {
	return func(s *Socket) { s.logger = logger }
}

// WithClock sets the clock used for heartbeat and join timers.
func WithClock(clk clock.Clock) SocketOption {
	return func(s *Socket) { s.clk = clk }
}

// NewSocket creates a Socket. Connect must be called before channels can
// subscribe.
func NewSocket(cfg SocketConfig, opts ...SocketOption) *Socket {
	def := DefaultSocketConfig()
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	s := &Socket{
		cfg:      cfg,
		logger:   slog.Default(),
		clk:      clock.New(),
		channels: make(map[string]*socketChannel),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect establishes the WebSocket connection and starts the read and
// heartbeat loops.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	if s.connected || s.connecting {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	s.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)

	s.mu.Lock()
	s.connecting = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("dial realtime socket: %w", err)
	}
	s.conn = conn
	s.connected = true
	s.lastAck = s.clk.Now()
	// Both loops belong to this connection and exit when done closes, so
	// a reconnect never leaves a previous loop running alongside.
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go s.readLoop(conn, done)
	go s.heartbeatLoop(conn, done)

	s.logger.Debug("realtime socket connected", "url", s.cfg.URL)
	return nil
}

// Close tears the socket down. Idempotent.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	conn := s.conn
	if s.done != nil {
		closeDone(s.done)
	}
	s.mu.Unlock()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err := conn.Close()
		s.notifyAll(StatusClosed, nil)
		return err
	}

	s.notifyAll(StatusClosed, nil)
	return nil
}

// IsConnected reports whether the socket is up.
func (s *Socket) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// IsConnecting reports whether a dial is in flight.
func (s *Socket) IsConnecting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connecting
}

// Channel returns the handle for a named channel, creating it on first use.
func (s *Socket) Channel(name string) Channel {
	s.chanMu.Lock()
	defer s.chanMu.Unlock()

	if ch, ok := s.channels[name]; ok {
		return ch
	}
	ch := &socketChannel{sock: s, topic: name}
	s.channels[name] = ch
	return ch
}

// nextRef returns a unique frame reference.
func (s *Socket) nextRef() string {
	return strconv.FormatInt(s.ref.Add(1), 10)
}

// send writes one frame with the configured write deadline.
func (s *Socket) send(msg wireMessage) error {
	s.mu.RLock()
	connected := s.connected
	conn := s.conn
	s.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteJSON(msg)
}

// readLoop reads frames from one connection until it drops or done closes.
func (s *Socket) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		receivedAt := s.clk.Now()

		if err != nil {
			s.mu.Lock()
			s.connected = false
			// Stop this connection's heartbeat loop too. If done was
			// already closed the failure is expected teardown noise.
			expected := closeDone(done)
			s.mu.Unlock()

			if !expected {
				s.logger.Warn("realtime socket read failed", "error", err)
				s.notifyAll(StatusChannelError, err)
			}
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("dropping unparseable frame", "error", err)
			continue
		}

		s.dispatch(msg, receivedAt)
	}
}

// dispatch routes one incoming frame.
func (s *Socket) dispatch(msg wireMessage, receivedAt time.Time) {
	if msg.Topic == heartbeatTopic {
		s.mu.Lock()
		s.lastAck = s.clk.Now()
		s.mu.Unlock()
		return
	}

	s.chanMu.Lock()
	ch := s.channels[msg.Topic]
	s.chanMu.Unlock()
	if ch == nil {
		s.logger.Debug("frame for unknown topic", "topic", msg.Topic, "event", msg.Event)
		return
	}

	switch msg.Event {
	case evtReply:
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			s.logger.Warn("unparseable reply payload", "topic", msg.Topic, "error", err)
			return
		}
		ch.handleReply(msg.Ref, reply)

	case evtChanges:
		var change changePayload
		if err := json.Unmarshal(msg.Payload, &change); err != nil {
			s.logger.Warn("unparseable change payload", "topic", msg.Topic, "error", err)
			return
		}
		ch.deliver(change, receivedAt)

	case evtError:
		ch.notify(StatusChannelError, fmt.Errorf("channel %q errored", msg.Topic))

	case evtClose:
		ch.notify(StatusClosed, nil)

	default:
		s.logger.Debug("skipping frame", "topic", msg.Topic, "event", msg.Event)
	}
}

// heartbeatLoop sends heartbeats on one connection and fails it when acks
// stop. It exits when done closes, whether from Close or a read failure.
func (s *Socket) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := s.clk.Ticker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			hb := wireMessage{
				Topic:   heartbeatTopic,
				Event:   evtHeartbeat,
				Payload: json.RawMessage(`{}`),
				Ref:     s.nextRef(),
			}
			if err := s.send(hb); err != nil {
				s.logger.Debug("heartbeat send failed", "error", err)
			}

			s.mu.RLock()
			lastAck := s.lastAck
			s.mu.RUnlock()

			if s.clk.Now().Sub(lastAck) > s.cfg.HeartbeatTimeout {
				s.logger.Warn("no heartbeat ack, socket stale",
					"last_ack", lastAck,
					"timeout", s.cfg.HeartbeatTimeout,
				)
				s.mu.Lock()
				s.connected = false
				// Closing done first keeps the read loop's error,
				// caused by the conn.Close below, from reporting a
				// second failure for the same connection.
				closeDone(done)
				s.mu.Unlock()
				conn.Close()
				s.notifyAll(StatusChannelError, ErrStaleSocket)
				return
			}
		}
	}
}

// closeDone closes done unless it is already closed, reporting whether it
// was. Callers must hold s.mu so the check and close are atomic.
func closeDone(done chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		close(done)
		return false
	}
}

// notifyAll reports a status to every channel with a subscriber.
func (s *Socket) notifyAll(status ChannelStatus, err error) {
	s.chanMu.Lock()
	channels := make([]*socketChannel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.chanMu.Unlock()

	for _, ch := range channels {
		ch.notify(status, err)
	}
}

// removeChannel drops a channel handle after unsubscribe.
func (s *Socket) removeChannel(topic string) {
	s.chanMu.Lock()
	delete(s.channels, topic)
	s.chanMu.Unlock()
}

// extractKey pulls the record identity out of a snapshot, preferring the
// current record over the old one.
func extractKey(change changePayload) string {
	for _, raw := range []json.RawMessage{change.Record, change.OldRecord} {
		if len(raw) == 0 {
			continue
		}
		var probe struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil || len(probe.ID) == 0 {
			continue
		}
		var asString string
		if err := json.Unmarshal(probe.ID, &asString); err == nil {
			return asString
		}
		return string(probe.ID)
	}
	return ""
}
