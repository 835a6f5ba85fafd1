package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// binding is one registered filter callback on a channel.
type binding struct {
	filter Filter
	fn     func(Envelope)
}

// socketChannel is the Socket-backed Channel implementation.
type socketChannel struct {
	sock  *Socket
	topic string

	mu        sync.Mutex
	bindings  []binding
	onStatus  func(ChannelStatus, error)
	joined    bool
	joinRef   string // ref of the in-flight join, "" when none
	joinTimer *clock.Timer
}

// On registers a filtered callback. Must be called before Subscribe for the
// filter to be part of the join request.
func (c *socketChannel) On(filter Filter, fn func(Envelope)) Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, binding{filter: filter, fn: fn})
	return c
}

// Subscribe joins the channel and reports status changes via onStatus.
func (c *socketChannel) Subscribe(onStatus func(ChannelStatus, error)) (Subscription, error) {
	c.mu.Lock()
	if c.joined || c.joinRef != "" {
		c.mu.Unlock()
		return &channelSubscription{channel: c}, nil
	}

	var payload joinPayload
	for _, b := range c.bindings {
		event := string(b.filter.Event)
		if event == "" {
			event = string(EventWildcard)
		}
		payload.Config.PostgresChanges = append(payload.Config.PostgresChanges, joinFilter{
			Event:     event,
			Schema:    b.filter.Schema,
			Table:     b.filter.Table,
			Predicate: b.filter.Predicate,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("encode join payload: %w", err)
	}

	ref := c.sock.nextRef()
	c.onStatus = onStatus
	c.joinRef = ref

	// The join reply races this timer; handleReply stops it, and a late
	// reply after it fires is dropped because joinRef was cleared.
	c.joinTimer = c.sock.clk.AfterFunc(c.sock.cfg.JoinTimeout, func() {
		c.mu.Lock()
		if c.joinRef != ref {
			c.mu.Unlock()
			return
		}
		c.joinRef = ""
		c.joinTimer = nil
		fn := c.onStatus
		c.mu.Unlock()

		if fn != nil {
			fn(StatusTimedOut, ErrJoinTimeout)
		}
	})
	c.mu.Unlock()

	msg := wireMessage{
		Topic:   c.topic,
		Event:   evtJoin,
		Payload: body,
		Ref:     ref,
		JoinRef: ref,
	}
	if err := c.sock.send(msg); err != nil {
		c.mu.Lock()
		if c.joinTimer != nil {
			c.joinTimer.Stop()
			c.joinTimer = nil
		}
		c.joinRef = ""
		c.mu.Unlock()
		// Drop the handle so a later attempt starts from a fresh channel
		// instead of stacking bindings on this one.
		c.sock.removeChannel(c.topic)
		return nil, err
	}

	return &channelSubscription{channel: c}, nil
}

// handleReply resolves an in-flight join.
func (c *socketChannel) handleReply(ref string, reply replyPayload) {
	c.mu.Lock()
	if c.joinRef == "" || c.joinRef != ref {
		c.mu.Unlock()
		return
	}
	c.joinRef = ""
	if c.joinTimer != nil {
		c.joinTimer.Stop()
		c.joinTimer = nil
	}
	fn := c.onStatus
	ok := reply.Status == "ok"
	c.joined = ok
	c.mu.Unlock()

	if fn == nil {
		return
	}
	if ok {
		fn(StatusSubscribed, nil)
	} else {
		fn(StatusChannelError, fmt.Errorf("join %q rejected: %s", c.topic, string(reply.Response)))
	}
}

// deliver fans a change event out to matching bindings.
func (c *socketChannel) deliver(change changePayload, receivedAt time.Time) {
	env := Envelope{
		Event:      change.Type,
		Key:        extractKey(change),
		Old:        change.OldRecord,
		New:        change.Record,
		ReceivedAt: receivedAt,
	}

	c.mu.Lock()
	bindings := make([]binding, len(c.bindings))
	copy(bindings, c.bindings)
	c.mu.Unlock()

	for _, b := range bindings {
		if b.filter.Matches(change.Type) {
			b.fn(env)
		}
	}
}

// notify reports a transport-level status to the subscriber, dropping any
// in-flight join first so its timer cannot fire afterwards.
func (c *socketChannel) notify(status ChannelStatus, err error) {
	c.mu.Lock()
	if c.joinTimer != nil {
		c.joinTimer.Stop()
		c.joinTimer = nil
	}
	c.joinRef = ""
	if status != StatusSubscribed {
		c.joined = false
	}
	fn := c.onStatus
	c.mu.Unlock()

	if fn != nil {
		fn(status, err)
	}
}

// channelSubscription implements Subscription for a socketChannel.
type channelSubscription struct {
	channel *socketChannel
}

// Unsubscribe leaves the channel and releases the handle.
func (s *channelSubscription) Unsubscribe(ctx context.Context) error {
	c := s.channel

	c.mu.Lock()
	if c.joinTimer != nil {
		c.joinTimer.Stop()
		c.joinTimer = nil
	}
	c.joinRef = ""
	wasJoined := c.joined
	c.joined = false
	c.onStatus = nil
	c.mu.Unlock()

	c.sock.removeChannel(c.topic)

	if !wasJoined {
		return nil
	}

	msg := wireMessage{
		Topic: c.topic,
		Event: evtLeave,
		Ref:   c.sock.nextRef(),
	}
	if err := c.sock.send(msg); err != nil && err != ErrNotConnected {
		return err
	}
	return nil
}
