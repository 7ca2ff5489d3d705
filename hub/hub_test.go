package hub

import (
	"encoding/json"
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case payload, ok := <-sub.C:
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		var e Event
		if err := json.Unmarshal(payload, &e); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestPublishReachesSubscribers(t *testing.T) {
	h := New(StreamsChannel, CollaborationChannel)
	a := h.Connect(4)
	b := h.Connect(4)
	t.Cleanup(func() { h.Disconnect(a); h.Disconnect(b) })
	if err := h.Subscribe(a, StreamsChannel); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if err := h.Subscribe(b, StreamsChannel); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	h.Publish(StreamsChannel, Event{Type: EventCreated, Data: map[string]string{"url": "https://twitch.tv/x"}})

	for _, sub := range []*Subscriber{a, b} {
		e := recv(t, sub)
		if e.Type != EventCreated {
			t.Errorf("type = %q, want created", e.Type)
		}
		if e.Channel != StreamsChannel {
			t.Errorf("channel = %q, want streams", e.Channel)
		}
		if e.At.IsZero() {
			t.Error("event At not stamped")
		}
	}
}

func TestChannelIsolation(t *testing.T) {
	h := New(StreamsChannel, CollaborationChannel)
	streamsOnly := h.Connect(4)
	t.Cleanup(func() { h.Disconnect(streamsOnly) })
	if err := h.Subscribe(streamsOnly, StreamsChannel); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	h.Publish(CollaborationChannel, Event{Type: EventLocked})
	select {
	case payload := <-streamsOnly.C:
		t.Fatalf("received event for channel not subscribed to: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeUnknownChannel(t *testing.T) {
	h := New(StreamsChannel)
	sub := h.Connect(4)
	t.Cleanup(func() { h.Disconnect(sub) })
	if err := h.Subscribe(sub, "nope"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := New(StreamsChannel)
	sub := h.Connect(4)
	t.Cleanup(func() { h.Disconnect(sub) })
	if err := h.Subscribe(sub, StreamsChannel); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !h.Subscribed(sub, StreamsChannel) {
		t.Fatal("Subscribed should report true after subscribe")
	}
	h.Unsubscribe(sub, StreamsChannel)
	if h.Subscribed(sub, StreamsChannel) {
		t.Fatal("Subscribed should report false after unsubscribe")
	}
	h.Publish(StreamsChannel, Event{Type: EventUpdated})
	select {
	case payload := <-sub.C:
		t.Fatalf("received event after unsubscribe: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisconnectClosesChannel(t *testing.T) {
	h := New(StreamsChannel)
	sub := h.Connect(4)
	if err := h.Subscribe(sub, StreamsChannel); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	h.Disconnect(sub)
	if _, ok := <-sub.C; ok {
		t.Fatal("subscriber channel should be closed after disconnect")
	}
	// Double disconnect must not panic.
	h.Disconnect(sub)
	// Publishing after disconnect must not panic either.
	h.Publish(StreamsChannel, Event{Type: EventCreated})
}

func TestSlowConsumerDropsNotBlocks(t *testing.T) {
	h := New(StreamsChannel)
	sub := h.Connect(1)
	t.Cleanup(func() { h.Disconnect(sub) })
	if err := h.Subscribe(sub, StreamsChannel); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			h.Publish(StreamsChannel, Event{Type: EventUpdated})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on slow consumer")
	}
	// Only the buffered event survives; the rest were dropped for this subscriber.
	if got := len(sub.C); got != 1 {
		t.Errorf("buffered events = %d, want 1", got)
	}
}

func TestPublishOrderPerSubscriber(t *testing.T) {
	h := New(StreamsChannel)
	sub := h.Connect(16)
	t.Cleanup(func() { h.Disconnect(sub) })
	if err := h.Subscribe(sub, StreamsChannel); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	types := []string{EventCreated, EventUpdated, EventCreated, EventUpdated}
	for _, typ := range types {
		h.Publish(StreamsChannel, Event{Type: typ})
	}
	for i, want := range types {
		e := recv(t, sub)
		if e.Type != want {
			t.Fatalf("event %d type = %q, want %q", i, e.Type, want)
		}
	}
}

func TestChannels(t *testing.T) {
	h := New(StreamsChannel, CollaborationChannel)
	got := h.Channels()
	if len(got) != 2 {
		t.Fatalf("Channels len = %d, want 2", len(got))
	}
	seen := map[string]bool{}
	for _, c := range got {
		seen[c] = true
	}
	if !seen[StreamsChannel] || !seen[CollaborationChannel] {
		t.Errorf("Channels = %v, want streams and collaboration", got)
	}
}
