package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/streamwall/streamsync/db"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"backends", func() error {
			if h.sync == nil || len(h.sync.Stores) == 0 {
				return fmt.Errorf("no backends configured")
			}
			return nil
		}},
		{"hub", func() error {
			if h.hub == nil || len(h.hub.Channels()) == 0 {
				return fmt.Errorf("broadcast hub not running")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports operational state: ledger size, stream counts per
// status, configured backends, and the reconciler's last heartbeat.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts := map[string]int{}
	rows, err := h.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM streams GROUP BY status`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err == nil {
				counts[status] = n
			}
		}
	}

	backends := make([]string, 0, len(h.sync.Stores))
	for _, st := range h.sync.Stores {
		backends = append(backends, st.Name())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"admitted_urls":        h.sync.Ledger.Size(),
		"streams_by_status":    counts,
		"backends":             backends,
		"channels":             h.hub.Channels(),
		"job_reconcile_last":   db.GetKV(ctx, h.db, "job_reconcile_last"),
		"job_reconcile_cycles": db.GetKV(ctx, h.db, "job_reconcile_cycles"),
	})
}
