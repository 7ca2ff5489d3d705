// Package store defines the uniform backend adapter contract shared by the
// primary Postgres store and the legacy sheet bridge, plus an optional retry
// decorator. Adapters are stateless wrappers and safe for concurrent use;
// retry policy lives outside the adapters (see Retrying).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/streamwall/streamsync/extract"
)

// Record status values. Records are never deleted, only archived.
const (
	StatusChecking = "checking"
	StatusLive     = "live"
	StatusOffline  = "offline"
	StatusError    = "error"
	StatusArchived = "archived"
)

var (
	// ErrNotFound is returned by Update and FindByURL lookups that miss.
	ErrNotFound = errors.New("record not found")
)

// Record is one stream known to a backend. IDs are assigned independently by
// each backend and are only meaningful within it; the canonical URL is the
// cross-backend correlation key.
type Record struct {
	ID            string           `json:"id"`
	URL           string           `json:"url"`
	Platform      extract.Platform `json:"platform"`
	City          string           `json:"city,omitempty"`
	State         string           `json:"state,omitempty"`
	Status        string           `json:"status"`
	Source        string           `json:"source,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	LastCheckedAt time.Time        `json:"last_checked_at,omitempty"`
}

// Patch carries the mutable fields of a record. Nil fields are left alone.
type Patch struct {
	Platform      *extract.Platform
	City          *string
	State         *string
	Status        *string
	Source        *string
	LastCheckedAt *time.Time
}

// StatusEntry is the minimal listing the reconciler needs: which URLs exist
// and what status each backend last recorded for them.
type StatusEntry struct {
	ID     string
	URL    string
	Status string
}

// Store is the adapter contract both backends satisfy.
//
// Create upserts by canonical URL: a second create with an already-known URL
// must update the existing record and return it, never insert a duplicate.
// All calls are network-bound and fallible; callers own timeouts and retries.
type Store interface {
	// Name identifies the backend in outcomes and logs ("primary", "legacy").
	Name() string
	Create(ctx context.Context, rec Record) (Record, error)
	FindByURL(ctx context.Context, url string) (Record, error)
	Update(ctx context.Context, id string, patch Patch) (Record, error)
	ListStatuses(ctx context.Context) ([]StatusEntry, error)
}

// StatusPatch is a convenience constructor for the reconciler's common write.
func StatusPatch(status string, checkedAt time.Time) Patch {
	return Patch{Status: &status, LastCheckedAt: &checkedAt}
}
