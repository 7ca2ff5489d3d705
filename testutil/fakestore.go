package testutil

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/streamwall/streamsync/store"
)

// FakeStore is an in-memory store.Store for pipeline and monitor tests.
// Errors can be injected per method to simulate a failing backend.
type FakeStore struct {
	StoreName string

	mu      sync.Mutex
	records map[string]store.Record // keyed by id
	nextID  int

	FailCreate error
	FailFind   error
	FailUpdate error
	FailList   error

	CreateCalls int
	UpdateCalls int
}

func NewFakeStore(name string) *FakeStore {
	return &FakeStore{StoreName: name, records: make(map[string]store.Record)}
}

func (f *FakeStore) Name() string { return f.StoreName }

func (f *FakeStore) Create(ctx context.Context, rec store.Record) (store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.FailCreate != nil {
		return store.Record{}, f.FailCreate
	}
	for id, existing := range f.records {
		if existing.URL == rec.URL {
			if rec.Platform != "" && rec.Platform != "unknown" {
				existing.Platform = rec.Platform
			}
			if rec.City != "" {
				existing.City = rec.City
			}
			if rec.State != "" {
				existing.State = rec.State
			}
			existing.UpdatedAt = time.Now()
			f.records[id] = existing
			return existing, nil
		}
	}
	f.nextID++
	rec.ID = strconv.Itoa(f.nextID)
	if rec.Status == "" {
		rec.Status = store.StatusChecking
	}
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *FakeStore) FindByURL(ctx context.Context, url string) (store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailFind != nil {
		return store.Record{}, f.FailFind
	}
	for _, rec := range f.records {
		if rec.URL == url {
			return rec, nil
		}
	}
	return store.Record{}, store.ErrNotFound
}

func (f *FakeStore) Update(ctx context.Context, id string, patch store.Patch) (store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++
	if f.FailUpdate != nil {
		return store.Record{}, f.FailUpdate
	}
	rec, ok := f.records[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	if patch.Platform != nil {
		rec.Platform = *patch.Platform
	}
	if patch.City != nil {
		rec.City = *patch.City
	}
	if patch.State != nil {
		rec.State = *patch.State
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.Source != nil {
		rec.Source = *patch.Source
	}
	if patch.LastCheckedAt != nil {
		rec.LastCheckedAt = *patch.LastCheckedAt
	}
	rec.UpdatedAt = time.Now()
	f.records[id] = rec
	return rec, nil
}

func (f *FakeStore) ListStatuses(ctx context.Context) ([]store.StatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailList != nil {
		return nil, f.FailList
	}
	entries := make([]store.StatusEntry, 0, len(f.records))
	for _, rec := range f.records {
		if rec.Status == store.StatusArchived {
			continue
		}
		entries = append(entries, store.StatusEntry{ID: rec.ID, URL: rec.URL, Status: rec.Status})
	}
	return entries, nil
}

// Record returns a stored record by id.
func (f *FakeStore) Record(id string) (store.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

// ByURL returns a stored record by URL without error wrapping.
func (f *FakeStore) ByURL(url string) (store.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.URL == url {
			return rec, true
		}
	}
	return store.Record{}, false
}
