package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/streamwall/streamsync/extract"
)

// Sheet is the legacy store adapter. It talks HTTP/JSON to the sheet bridge
// service that fronts the old spreadsheet; the bridge owns the actual
// spreadsheet API calls, this adapter only knows its row endpoints:
//
//	GET    /rows?url=...   find by canonical URL
//	POST   /rows           upsert by canonical URL
//	PATCH  /rows/{id}      partial update
//
// Auth is a bearer token treated as an opaque credential. No retries here;
// callers wrap with Retrying if they want a policy.
type Sheet struct {
	BaseURL string
	client  *http.Client
}

// NewSheet builds the legacy adapter. An empty token disables the
// Authorization header (local bridge instances run open).
func NewSheet(baseURL, token string, timeout time.Duration) *Sheet {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if token != "" {
		client = oauth2.NewClient(
			context.WithValue(context.Background(), oauth2.HTTPClient, client),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		)
		client.Timeout = timeout
	}
	return &Sheet{BaseURL: baseURL, client: client}
}

func (s *Sheet) Name() string { return "legacy" }

// sheetRow is the bridge's wire format for one spreadsheet row.
type sheetRow struct {
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

func (s *Sheet) Create(ctx context.Context, rec Record) (Record, error) {
	status := rec.Status
	if status == "" {
		status = StatusChecking
	}
	body := sheetRow{
		URL:      rec.URL,
		Platform: string(rec.Platform),
		City:     rec.City,
		State:    rec.State,
		Status:   status,
		Source:   rec.Source,
	}
	var out sheetRow
	if err := s.do(ctx, http.MethodPost, "/rows", body, &out); err != nil {
		return Record{}, err
	}
	return out.record(), nil
}

func (s *Sheet) FindByURL(ctx context.Context, streamURL string) (Record, error) {
	path := "/rows?url=" + url.QueryEscape(streamURL)
	var out []sheetRow
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Record{}, err
	}
	if len(out) == 0 {
		return Record{}, ErrNotFound
	}
	return out[0].record(), nil
}

func (s *Sheet) Update(ctx context.Context, id string, patch Patch) (Record, error) {
	body := map[string]any{}
	if patch.Platform != nil {
		body["platform"] = string(*patch.Platform)
	}
	if patch.City != nil {
		body["city"] = *patch.City
	}
	if patch.State != nil {
		body["state"] = *patch.State
	}
	if patch.Status != nil {
		body["status"] = *patch.Status
	}
	if patch.Source != nil {
		body["source"] = *patch.Source
	}
	if patch.LastCheckedAt != nil {
		body["last_checked_at"] = patch.LastCheckedAt.UTC().Format(time.RFC3339)
	}
	var out sheetRow
	if err := s.do(ctx, http.MethodPatch, "/rows/"+url.PathEscape(id), body, &out); err != nil {
		return Record{}, err
	}
	return out.record(), nil
}

func (s *Sheet) ListStatuses(ctx context.Context) ([]StatusEntry, error) {
	var out []sheetRow
	if err := s.do(ctx, http.MethodGet, "/rows", nil, &out); err != nil {
		return nil, err
	}
	entries := make([]StatusEntry, 0, len(out))
	for _, r := range out {
		entries = append(entries, StatusEntry{ID: r.ID, URL: r.URL, Status: r.Status})
	}
	return entries, nil
}

func (s *Sheet) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("legacy store %s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("legacy store %s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (r sheetRow) record() Record {
	rec := Record{
		ID:       r.ID,
		URL:      r.URL,
		Platform: extract.Platform(r.Platform),
		City:     r.City,
		State:    r.State,
		Status:   r.Status,
		Source:   r.Source,
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, r.LastCheckedAt); err == nil {
		rec.LastCheckedAt = t
	}
	return rec
}
