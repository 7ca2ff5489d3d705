package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamwall/streamsync/hub"
)

func dialWS(t *testing.T, h *Handlers) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode frame %s: %v", raw, err)
	}
	return frame
}

func TestWSSubscribeAndReceive(t *testing.T) {
	h, _ := testHandlers(t)
	conn := dialWS(t, h)

	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "streams"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "confirm_subscription" || frame["channel"] != "streams" {
		t.Fatalf("frame = %v, want confirm_subscription for streams", frame)
	}

	h.hub.Publish(hub.StreamsChannel, hub.Event{Type: hub.EventCreated, Data: map[string]string{"url": "https://twitch.tv/x"}})
	frame = readFrame(t, conn)
	if frame["type"] != hub.EventCreated {
		t.Errorf("event frame = %v, want created", frame)
	}
	if frame["channel"] != hub.StreamsChannel {
		t.Errorf("event channel = %v, want streams", frame["channel"])
	}
}

func TestWSRejectUnknownChannel(t *testing.T) {
	h, _ := testHandlers(t)
	conn := dialWS(t, h)

	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "nope"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "reject_subscription" {
		t.Fatalf("frame = %v, want reject_subscription", frame)
	}
}

func TestWSUnsubscribeStopsDelivery(t *testing.T) {
	h, _ := testHandlers(t)
	conn := dialWS(t, h)

	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "collaboration"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readFrame(t, conn) // confirm_subscription

	if err := conn.WriteJSON(map[string]string{"type": "unsubscribe", "channel": "collaboration"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "confirm_unsubscription" {
		t.Fatalf("frame = %v, want confirm_unsubscription", frame)
	}

	h.hub.Publish(hub.CollaborationChannel, hub.Event{Type: hub.EventLocked})
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("received %s after unsubscribe", raw)
	}
}

func TestWSMalformedFrame(t *testing.T) {
	h, _ := testHandlers(t)
	conn := dialWS(t, h)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "error" {
		t.Fatalf("frame = %v, want error reply", frame)
	}

	if err := conn.WriteJSON(map[string]string{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame = readFrame(t, conn)
	if frame["type"] != "error" {
		t.Fatalf("frame = %v, want error reply for unknown type", frame)
	}
}
