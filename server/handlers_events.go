package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// HandleEventsSSE streams hub events over Server-Sent Events as a one-way
// alternative to the WebSocket endpoint. Channels come from the comma
// separated "channels" query parameter; an unknown channel rejects the whole
// request up front instead of silently subscribing to nothing.
func (h *Handlers) HandleEventsSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	raw := r.URL.Query().Get("channels")
	if raw == "" {
		http.Error(w, "channels query parameter is required", http.StatusBadRequest)
		return
	}

	sub := h.hub.Connect(64)
	defer h.hub.Disconnect(sub)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if err := h.hub.Subscribe(sub, name); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				slog.Debug("sse write failed", slog.Any("err", err), slog.String("component", "http"))
				return
			}
			flusher.Flush()
		}
	}
}
