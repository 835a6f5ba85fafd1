package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("socket not connected")
	ErrStaleSocket   = errors.New("socket stale (no heartbeat ack)")
	ErrAlreadyClosed = errors.New("socket already closed")
	ErrJoinTimeout   = errors.New("channel join timeout")
)

// EventKind identifies the kind of change a channel event carries.
type EventKind string

const (
	EventInsert   EventKind = "INSERT"
	EventUpdate   EventKind = "UPDATE"
	EventDelete   EventKind = "DELETE"
	EventWildcard EventKind = "*"
)

// Filter selects which change events a channel binding receives.
type Filter struct {
	Event     EventKind // event kind, EventWildcard for all
	Schema    string    // backend schema (e.g., "public")
	Table     string    // source table (e.g., "readings")
	Predicate string    // row filter expression (e.g., "station_id=eq.sfo-mission-03")
}

// Matches reports whether an event of the given kind passes the filter.
func (f Filter) Matches(kind EventKind) bool {
	return f.Event == EventWildcard || f.Event == "" || f.Event == kind
}

// Envelope is one change event delivered to a channel binding.
type Envelope struct {
	Event      EventKind       // insert/update/delete
	Key        string          // identity of the affected record, "" if unknown
	Old        json.RawMessage // previous record snapshot (update/delete)
	New        json.RawMessage // current record snapshot (insert/update)
	ReceivedAt time.Time       // local receive timestamp
}

// ChannelStatus is the transport-reported state of one channel subscription.
type ChannelStatus string

const (
	StatusSubscribed   ChannelStatus = "SUBSCRIBED"
	StatusChannelError ChannelStatus = "CHANNEL_ERROR"
	StatusTimedOut     ChannelStatus = "TIMED_OUT"
	StatusClosed       ChannelStatus = "CLOSED"
)

// Transport is the connection-oriented pub/sub primitive.
type Transport interface {
	// IsConnected reports whether the underlying connection is up.
	IsConnected() bool

	// IsConnecting reports whether a connection attempt is in flight.
	IsConnecting() bool

	// Channel returns the handle for a named logical channel. Repeated
	// calls with the same name return the same handle until it is
	// unsubscribed.
	Channel(name string) Channel
}

// Channel is the handle for one named channel.
type Channel interface {
	// On registers a filtered event callback. May be called multiple
	// times before Subscribe to bind several filters.
	On(filter Filter, fn func(Envelope)) Channel

	// Subscribe opens the channel. Every status change is reported
	// through onStatus; the error argument is non-nil for
	// StatusChannelError and StatusTimedOut.
	Subscribe(onStatus func(ChannelStatus, error)) (Subscription, error)
}

// Subscription is a live channel subscription.
type Subscription interface {
	// Unsubscribe leaves the channel and releases the handle.
	Unsubscribe(ctx context.Context) error
}
