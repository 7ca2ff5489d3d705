// Package hub is the in-memory publish/subscribe layer between event
// producers (sync pipeline, status reconciler, lock manager) and connected
// observers. It is transport-agnostic: the HTTP server attaches WebSocket and
// SSE connections to it through the same Subscriber handle.
//
// Delivery is best-effort and at-most-once per subscriber: no persistence, no
// replay for late joiners, and a subscriber whose buffer is full misses the
// message rather than stalling the publisher. For one channel, events
// published by a single producer reach a given subscriber in publish order.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamwall/streamsync/telemetry"
)

// Channel names observers may subscribe to.
const (
	StreamsChannel       = "streams"
	CollaborationChannel = "collaboration"
)

// Event types fanned out to subscribers.
const (
	EventCreated  = "created"
	EventUpdated  = "updated"
	EventLocked   = "locked"
	EventUnlocked = "unlocked"
)

// Event is one broadcast message. Channel and At are stamped by Publish.
type Event struct {
	Type    string    `json:"type"`
	Channel string    `json:"channel"`
	At      time.Time `json:"at"`
	Data    any       `json:"data,omitempty"`
}

// Subscriber is one connected observer. The transport layer drains C and
// writes frames to the wire; when the connection dies it must call
// Hub.Disconnect, which closes C.
type Subscriber struct {
	ID string
	C  chan []byte
}

// Hub owns the channel registry. All maps are guarded by mu; Publish holds
// the read lock while sending so Disconnect can never close a channel out
// from under an in-flight send.
type Hub struct {
	mu       sync.RWMutex
	known    map[string]struct{}
	channels map[string]map[*Subscriber]struct{}
	members  map[*Subscriber]map[string]struct{}
}

// New creates a hub that accepts subscriptions to exactly the named channels.
func New(channels ...string) *Hub {
	h := &Hub{
		known:    make(map[string]struct{}, len(channels)),
		channels: make(map[string]map[*Subscriber]struct{}),
		members:  make(map[*Subscriber]map[string]struct{}),
	}
	for _, c := range channels {
		h.known[c] = struct{}{}
	}
	return h
}

// Connect registers a new subscriber with the given send buffer.
func (h *Hub) Connect(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 64
	}
	s := &Subscriber{ID: uuid.New().String(), C: make(chan []byte, buffer)}
	h.mu.Lock()
	h.members[s] = make(map[string]struct{})
	h.mu.Unlock()
	telemetry.SetHubConnections(h.connectionCount())
	return s
}

// Disconnect removes the subscriber from every channel and closes its send
// channel. A disconnected observer loses all subscriptions; there is no
// catch-up on reconnect. Safe to call more than once.
func (h *Hub) Disconnect(s *Subscriber) {
	h.mu.Lock()
	chans, ok := h.members[s]
	if ok {
		for name := range chans {
			delete(h.channels[name], s)
			if len(h.channels[name]) == 0 {
				delete(h.channels, name)
			}
		}
		delete(h.members, s)
		close(s.C)
	}
	h.mu.Unlock()
	if ok {
		telemetry.SetHubConnections(h.connectionCount())
		slog.Debug("subscriber disconnected", slog.String("subscriber", s.ID), slog.String("component", "hub"))
	}
}

// Subscribe adds the subscriber to a channel. Unknown channel names are
// rejected so the transport can answer with a rejection frame. Subscribing
// twice is a no-op.
func (h *Hub) Subscribe(s *Subscriber, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.known[channel]; !ok {
		return fmt.Errorf("unknown channel %q", channel)
	}
	chans, ok := h.members[s]
	if !ok {
		return fmt.Errorf("subscriber %s is not connected", s.ID)
	}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Subscriber]struct{})
	}
	h.channels[channel][s] = struct{}{}
	chans[channel] = struct{}{}
	return nil
}

// Unsubscribe removes the subscriber from a channel. Unknown channels and
// absent subscriptions are no-ops.
func (h *Hub) Unsubscribe(s *Subscriber, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.channels[channel]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	if chans, ok := h.members[s]; ok {
		delete(chans, channel)
	}
}

// Publish delivers the event to every subscriber of the channel at this
// moment. Events on unknown channels are dropped (producers only publish to
// configured channels; this guards against config drift, not callers).
func (h *Hub) Publish(channel string, e Event) {
	e.Channel = channel
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		slog.Error("event marshal failed", slog.String("type", e.Type), slog.Any("err", err), slog.String("component", "hub"))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.known[channel]; !ok {
		slog.Warn("publish to unknown channel dropped", slog.String("channel", channel), slog.String("component", "hub"))
		return
	}
	for s := range h.channels[channel] {
		select {
		case s.C <- payload:
			telemetry.IncEventsDelivered(channel)
		default:
			// Slow consumer: drop this event for this subscriber only.
			telemetry.IncEventsDropped(channel)
		}
	}
	telemetry.IncEventsPublished(channel, e.Type)
}

// Subscribed reports whether the subscriber currently holds a subscription to
// the channel.
func (h *Hub) Subscribed(s *Subscriber, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	chans, ok := h.members[s]
	if !ok {
		return false
	}
	_, ok = chans[channel]
	return ok
}

// Channels returns the set of channel names this hub accepts.
func (h *Hub) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.known))
	for c := range h.known {
		out = append(out, c)
	}
	return out
}

func (h *Hub) connectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}
