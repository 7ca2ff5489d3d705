package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// SheetRow mirrors the sheet bridge's wire format for one row.
type SheetRow struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Platform      string `json:"platform,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Status        string `json:"status,omitempty"`
	Source        string `json:"source,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
	LastCheckedAt string `json:"last_checked_at,omitempty"`
}

// MockSheetServer is a stateful in-memory stand-in for the legacy sheet
// bridge. It implements the bridge's row endpoints (POST /rows upsert,
// GET /rows[?url=], PATCH /rows/{id}) against a map, so store and pipeline
// tests can exercise the real HTTP adapter end to end.
type MockSheetServer struct {
	*httptest.Server

	mu     sync.Mutex
	rows   map[string]*SheetRow // keyed by id
	nextID int

	// FailNext makes the next N requests return 500, for retry tests.
	FailNext int
	// AuthToken, when set, rejects requests missing the bearer token.
	AuthToken string
}

// NewMockSheetServer starts a mock bridge. It is closed automatically when
// the test finishes.
func NewMockSheetServer(t *testing.T) *MockSheetServer {
	t.Helper()
	m := &MockSheetServer{rows: make(map[string]*SheetRow)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

// Seed inserts a row directly, bypassing the HTTP surface.
func (m *MockSheetServer) Seed(row SheetRow) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.ID == "" {
		m.nextID++
		row.ID = "row-" + strconv.Itoa(m.nextID)
	}
	m.rows[row.ID] = &row
	return row.ID
}

// Row returns a copy of a stored row and whether it exists.
func (m *MockSheetServer) Row(id string) (SheetRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return SheetRow{}, false
	}
	return *r, true
}

// RowCount returns the number of stored rows.
func (m *MockSheetServer) RowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MockSheetServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AuthToken != "" && r.Header.Get("Authorization") != "Bearer "+m.AuthToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if m.FailNext > 0 {
		m.FailNext--
		http.Error(w, "transient", http.StatusInternalServerError)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/rows":
		m.upsert(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/rows":
		m.list(w, r)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/rows/"):
		m.patch(w, r, strings.TrimPrefix(r.URL.Path, "/rows/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *MockSheetServer) upsert(w http.ResponseWriter, r *http.Request) {
	var in SheetRow
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, row := range m.rows {
		if row.URL == in.URL {
			if in.Platform != "" && in.Platform != "unknown" {
				row.Platform = in.Platform
			}
			if in.City != "" {
				row.City = in.City
			}
			if in.State != "" {
				row.State = in.State
			}
			if in.Source != "" {
				row.Source = in.Source
			}
			writeJSON(w, row)
			return
		}
	}
	m.nextID++
	in.ID = "row-" + strconv.Itoa(m.nextID)
	m.rows[in.ID] = &in
	writeJSON(w, &in)
}

func (m *MockSheetServer) list(w http.ResponseWriter, r *http.Request) {
	wantURL := r.URL.Query().Get("url")
	out := []*SheetRow{}
	for _, row := range m.rows {
		if wantURL == "" || row.URL == wantURL {
			out = append(out, row)
		}
	}
	writeJSON(w, out)
}

func (m *MockSheetServer) patch(w http.ResponseWriter, r *http.Request, id string) {
	row, ok := m.rows[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var in map[string]string
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if v, ok := in["platform"]; ok {
		row.Platform = v
	}
	if v, ok := in["city"]; ok {
		row.City = v
	}
	if v, ok := in["state"]; ok {
		row.State = v
	}
	if v, ok := in["status"]; ok {
		row.Status = v
	}
	if v, ok := in["source"]; ok {
		row.Source = v
	}
	if v, ok := in["last_checked_at"]; ok {
		row.LastCheckedAt = v
	}
	writeJSON(w, row)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
