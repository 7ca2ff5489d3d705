package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/streamwall/streamsync/collab"
)

type lockRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Field        string `json:"field"`
	Owner        string `json:"owner"`
	TTLSeconds   int    `json:"ttl_seconds,omitempty"`
}

func (lr lockRequest) key() collab.Key {
	return collab.Key{ResourceType: lr.ResourceType, ResourceID: lr.ResourceID, Field: lr.Field}
}

func (lr lockRequest) valid() bool {
	return lr.ResourceType != "" && lr.ResourceID != "" && lr.Field != "" && lr.Owner != ""
}

// HandleLocks acquires (POST) or releases (DELETE) a field lock. A conflict
// answers 409 with who holds the lock so the UI can show "being edited by X";
// it is an expected outcome, not an error log event.
func (h *Handlers) HandleLocks(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if !req.valid() {
		http.Error(w, "resource_type, resource_id, field and owner are required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.acquireLock(w, req)
	case http.MethodDelete:
		h.releaseLock(w, req)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) acquireLock(w http.ResponseWriter, req lockRequest) {
	ttl := time.Duration(req.TTLSeconds) * time.Second
	lk, err := h.locks.Acquire(req.key(), req.Owner, ttl)
	if err != nil {
		var conflict *collab.ConflictError
		if errors.As(err, &conflict) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"locked_by": conflict.LockedBy,
				"locked_at": conflict.LockedAt,
			})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"lock": lk})
}

func (h *Handlers) releaseLock(w http.ResponseWriter, req lockRequest) {
	err := h.locks.Release(req.key(), req.Owner)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "released"})
	case errors.Is(err, collab.ErrNotOwner):
		http.Error(w, "lock held by another owner", http.StatusForbidden)
	case errors.Is(err, collab.ErrNotFound):
		http.Error(w, "no such lock", http.StatusNotFound)
	default:
		slog.Error("lock release failed", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
