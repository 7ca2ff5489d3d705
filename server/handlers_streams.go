package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/streamwall/streamsync/telemetry"
)

// HandleStreamsIngest accepts a raw chat message and runs the
// extract-then-sync pipeline. The response is one entry per extracted URL
// with its accepted/rejected status and per-backend outcomes, never a single
// opaque success/failure.
func (h *Handlers) HandleStreamsIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Message    string `json:"message"`
		ReportedBy string `json:"reported_by"`
		Source     string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	source := req.Source
	if source == "" {
		source = "chat"
	}
	results := h.sync.Ingest(r.Context(), req.Message, req.ReportedBy, source)
	telemetry.LoggerWithCorr(r.Context()).Info("message ingested",
		slog.Int("candidates", len(results)),
		slog.String("reported_by", req.ReportedBy),
		slog.String("component", "http"))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
}

// HandleStreamsList returns the primary store's current records.
func (h *Handlers) HandleStreamsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries, err := h.primary.ListStatuses(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"streams": entries, "count": len(entries)})
}

// HandleSyncStatus reports the dedup ledger contents (observability only).
func (h *Handlers) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ledger := h.sync.Ledger
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"admitted_count": ledger.Size(),
		"admitted_urls":  ledger.URLs(),
	})
}
