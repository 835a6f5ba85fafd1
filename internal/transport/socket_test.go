package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// joinEchoServer replies ok to every phx_join and then invokes next.
func joinEchoServer(t *testing.T, next func(*websocket.Conn)) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		for {
			var msg wireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Event != evtJoin {
				continue
			}
			reply := wireMessage{
				Topic:   msg.Topic,
				Event:   evtReply,
				Ref:     msg.Ref,
				Payload: json.RawMessage(`{"status":"ok","response":{}}`),
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
			if next != nil {
				next(conn)
			}
			return
		}
	}
}

func testSocketConfig(url string) SocketConfig {
	return SocketConfig{
		URL:               url,
		HeartbeatInterval: time.Minute,
		HeartbeatTimeout:  5 * time.Minute,
		JoinTimeout:       time.Second,
		WriteTimeout:      time.Second,
	}
}

func TestSocket_ConnectAndClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	sock := NewSocket(testSocketConfig(wsURL(server)))

	if err := sock.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !sock.IsConnected() {
		t.Error("expected IsConnected after Connect")
	}
	if sock.IsConnecting() {
		t.Error("IsConnecting should be false once connected")
	}

	if err := sock.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if sock.IsConnected() {
		t.Error("expected IsConnected false after Close")
	}

	// Second close is a no-op.
	if err := sock.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestSocket_ConnectAfterCloseFails(t *testing.T) {
	sock := NewSocket(testSocketConfig("ws://localhost:1"))
	sock.Close()

	if err := sock.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestSocket_ChannelJoinSubscribed(t *testing.T) {
	server := mockWSServer(t, joinEchoServer(t, func(conn *websocket.Conn) {
		// Hold the connection open after the join.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	sock := NewSocket(testSocketConfig(wsURL(server)))
	if err := sock.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sock.Close()

	statusCh := make(chan ChannelStatus, 4)
	ch := sock.Channel("readings:all").On(Filter{Event: EventWildcard, Table: "readings"}, func(Envelope) {})

	sub, err := ch.Subscribe(func(status ChannelStatus, err error) {
		statusCh <- status
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe(context.Background())

	select {
	case status := <-statusCh:
		if status != StatusSubscribed {
			t.Errorf("status = %s, want SUBSCRIBED", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for SUBSCRIBED")
	}
}

func TestSocket_ChannelJoinRejected(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		reply := wireMessage{
			Topic:   msg.Topic,
			Event:   evtReply,
			Ref:     msg.Ref,
			Payload: json.RawMessage(`{"status":"error","response":{"reason":"unauthorized"}}`),
		}
		conn.WriteJSON(reply)
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	sock := NewSocket(testSocketConfig(wsURL(server)))
	if err := sock.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sock.Close()

	type result struct {
		status ChannelStatus
		err    error
	}
	resultCh := make(chan result, 4)

	_, err := sock.Channel("readings:denied").Subscribe(func(status ChannelStatus, err error) {
		resultCh <- result{status, err}
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case r := <-resultCh:
		if r.status != StatusChannelError {
			t.Errorf("status = %s, want CHANNEL_ERROR", r.status)
		}
		if r.err == nil {
			t.Error("expected a join rejection error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for CHANNEL_ERROR")
	}
}

func TestSocket_ChannelJoinTimeout(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Swallow the join and never reply.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := testSocketConfig(wsURL(server))
	cfg.JoinTimeout = 50 * time.Millisecond
	sock := NewSocket(cfg)
	if err := sock.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sock.Close()

	statusCh := make(chan ChannelStatus, 4)
	_, err := sock.Channel("readings:slow").Subscribe(func(status ChannelStatus, err error) {
		statusCh <- status
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case status := <-statusCh:
		if status != StatusTimedOut {
			t.Errorf("status = %s, want TIMED_OUT", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for TIMED_OUT")
	}
}

func TestSocket_DeliversFilteredChanges(t *testing.T) {
	change := wireMessage{
		Topic: "readings:sfo",
		Event: evtChanges,
		Payload: json.RawMessage(
			`{"type":"UPDATE","table":"readings","record":{"id":"r-1","aqi":52},"old_record":{"id":"r-1","aqi":48}}`),
	}

	server := mockWSServer(t, joinEchoServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(change)
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	sock := NewSocket(testSocketConfig(wsURL(server)))
	if err := sock.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sock.Close()

	var mu sync.Mutex
	var updates, deletes []Envelope

	ch := sock.Channel("readings:sfo").
		On(Filter{Event: EventUpdate, Table: "readings"}, func(env Envelope) {
			mu.Lock()
			updates = append(updates, env)
			mu.Unlock()
		}).
		On(Filter{Event: EventDelete, Table: "readings"}, func(env Envelope) {
			mu.Lock()
			deletes = append(deletes, env)
			mu.Unlock()
		})

	subscribed := make(chan struct{})
	_, err := ch.Subscribe(func(status ChannelStatus, err error) {
		if status == StatusSubscribed {
			close(subscribed)
		}
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case <-subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("never subscribed")
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(updates)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for change delivery")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	if len(deletes) != 0 {
		t.Errorf("delete binding fired for an UPDATE event")
	}
	env := updates[0]
	if env.Event != EventUpdate {
		t.Errorf("Event = %s, want UPDATE", env.Event)
	}
	if env.Key != "r-1" {
		t.Errorf("Key = %q, want r-1", env.Key)
	}
	if env.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should not be zero")
	}
}

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		kind   EventKind
		want   bool
	}{
		{"wildcard matches insert", Filter{Event: EventWildcard}, EventInsert, true},
		{"empty event matches delete", Filter{}, EventDelete, true},
		{"exact match", Filter{Event: EventUpdate}, EventUpdate, true},
		{"mismatch", Filter{Event: EventInsert}, EventDelete, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.kind); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestExtractKey(t *testing.T) {
	tests := []struct {
		name   string
		change changePayload
		want   string
	}{
		{
			"string id from record",
			changePayload{Record: json.RawMessage(`{"id":"abc","v":1}`)},
			"abc",
		},
		{
			"numeric id from record",
			changePayload{Record: json.RawMessage(`{"id":42}`)},
			"42",
		},
		{
			"falls back to old record on delete",
			changePayload{OldRecord: json.RawMessage(`{"id":"gone"}`)},
			"gone",
		},
		{
			"no id",
			changePayload{Record: json.RawMessage(`{"v":1}`)},
			"",
		},
		{
			"empty payloads",
			changePayload{},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractKey(tt.change); got != tt.want {
				t.Errorf("extractKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSocket_ReadErrorStopsHeartbeat(t *testing.T) {
	// The server hangs up right after acknowledging the join. The read
	// loop must take the heartbeat loop down with it; a loop outliving
	// its connection would later report the dead socket as stale.
	server := mockWSServer(t, joinEchoServer(t, nil))
	defer server.Close()

	mock := clock.NewMock()
	cfg := testSocketConfig(wsURL(server))
	sock := NewSocket(cfg, WithClock(mock))
	if err := sock.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sock.Close()

	type result struct {
		status ChannelStatus
		err    error
	}
	resultCh := make(chan result, 8)
	_, err := sock.Channel("readings:dropped").Subscribe(func(status ChannelStatus, err error) {
		resultCh <- result{status, err}
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	waitStatus := func(want ChannelStatus) {
		t.Helper()
		select {
		case r := <-resultCh:
			if r.status != want {
				t.Fatalf("status = %s (err %v), want %s", r.status, r.err, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
	waitStatus(StatusSubscribed)
	waitStatus(StatusChannelError)

	if sock.IsConnected() {
		t.Error("expected IsConnected false after read failure")
	}

	// Well past the staleness deadline. Only a leftover heartbeat loop
	// would have anything more to say.
	mock.Add(3 * cfg.HeartbeatTimeout)
	select {
	case r := <-resultCh:
		t.Fatalf("unexpected status %s (err %v) after the connection ended", r.status, r.err)
	case <-time.After(100 * time.Millisecond):
	}
}
