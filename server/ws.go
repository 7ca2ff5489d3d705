package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamwall/streamsync/hub"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS policy is enforced by the HTTP middleware; the upgrade itself
	// accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is the client-to-server control message format.
type wsFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// wsClient ties one WebSocket connection to a hub subscriber. The write pump
// is the only goroutine writing to the connection; control replies from the
// read pump are funneled through the control channel.
type wsClient struct {
	conn    *websocket.Conn
	sub     *hub.Subscriber
	hub     *hub.Hub
	control chan []byte
}

// HandleWS upgrades the connection and attaches it to the broadcast hub.
// Subscriptions arrive as {"type":"subscribe","channel":...} frames and are
// answered with confirm_subscription or reject_subscription.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("err", err), slog.String("component", "ws"))
		return
	}
	c := &wsClient{
		conn:    conn,
		sub:     h.hub.Connect(64),
		hub:     h.hub,
		control: make(chan []byte, 16),
	}
	slog.Debug("websocket connected", slog.String("subscriber", c.sub.ID), slog.String("component", "ws"))
	go c.writePump()
	go c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.Disconnect(c.sub)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", slog.Any("err", err), slog.String("component", "ws"))
			}
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.reply(map[string]string{"type": "error", "reason": "invalid frame"})
			continue
		}
		switch frame.Type {
		case "subscribe":
			if err := c.hub.Subscribe(c.sub, frame.Channel); err != nil {
				c.reply(map[string]string{"type": "reject_subscription", "channel": frame.Channel, "reason": err.Error()})
				continue
			}
			c.reply(map[string]string{"type": "confirm_subscription", "channel": frame.Channel})
		case "unsubscribe":
			c.hub.Unsubscribe(c.sub, frame.Channel)
			c.reply(map[string]string{"type": "confirm_unsubscription", "channel": frame.Channel})
		default:
			c.reply(map[string]string{"type": "error", "reason": "unknown frame type"})
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.sub.C:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(wsWriteWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case msg := <-c.control:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) reply(v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.control <- buf:
	default:
		// Control buffer full; the client is not reading. Drop the reply,
		// the ping/pong deadline will reap the connection.
	}
}
