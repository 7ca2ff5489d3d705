package server

import (
	"encoding/json"
	"net/http"
)

// HandleAdminReconcile triggers a reconcile cycle outside the regular
// schedule. The non-overlap guard still applies: if the ticker already has a
// cycle in flight the trigger is refused rather than queued.
func (h *Handlers) HandleAdminReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.reconciler == nil {
		http.Error(w, "reconciler not running", http.StatusServiceUnavailable)
		return
	}
	results, skipped := h.reconciler.TriggerCycle(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if skipped {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "cycle already in flight"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "completed", "results": results})
}
