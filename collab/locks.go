// Package collab implements short-TTL field locking for cooperative
// multi-editor UIs. A lock is an exclusive claim on one editable field of one
// resource; acquisition conflicts carry who holds the lock so the UI can say
// "being edited by X". This is not a durability primitive: lock state is
// in-memory only and losing it on restart is acceptable.
package collab

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/streamwall/streamsync/hub"
	"github.com/streamwall/streamsync/telemetry"
)

var (
	// ErrNotFound means no live lock exists for the key (including expired).
	ErrNotFound = errors.New("lock not found")
	// ErrNotOwner means a release was attempted by someone other than the holder.
	ErrNotOwner = errors.New("lock held by another owner")
)

// Key identifies one lockable field.
type Key struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Field        string `json:"field"`
}

// Lock is a live claim. Locks are never updated in place; a refresh or
// re-acquire after release is a new value.
type Lock struct {
	Key        Key       `json:"key"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ConflictError reports a failed acquisition and who holds the lock.
type ConflictError struct {
	LockedBy string    `json:"locked_by"`
	LockedAt time.Time `json:"locked_at"`
}

func (e *ConflictError) Error() string { return "field locked by " + e.LockedBy }

// Manager owns the lock table. Expiry is enforced on every operation by
// comparing against the clock, so correctness never depends on the optional
// sweep loop running.
type Manager struct {
	DefaultTTL time.Duration

	mu    sync.Mutex
	locks map[Key]Lock
	hub   *hub.Hub
	now   func() time.Time
}

// NewManager creates a lock manager publishing lock events to hb.
func NewManager(hb *hub.Hub, defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &Manager{
		DefaultTTL: defaultTTL,
		locks:      make(map[Key]Lock),
		hub:        hb,
		now:        time.Now,
	}
}

// Acquire claims the key for owner until now+ttl (DefaultTTL when ttl <= 0).
// A live lock held by a different owner yields a *ConflictError; the caller
// retries later, there is no queueing. Re-acquiring one's own live lock
// extends the expiry.
func (m *Manager) Acquire(key Key, owner string, ttl time.Duration) (Lock, error) {
	if ttl <= 0 {
		ttl = m.DefaultTTL
	}
	m.mu.Lock()
	now := m.now()
	if cur, ok := m.locks[key]; ok && cur.ExpiresAt.After(now) && cur.Owner != owner {
		m.mu.Unlock()
		telemetry.IncLockConflicts()
		return Lock{}, &ConflictError{LockedBy: cur.Owner, LockedAt: cur.AcquiredAt}
	}
	lk := Lock{Key: key, Owner: owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	if cur, ok := m.locks[key]; ok && cur.ExpiresAt.After(now) && cur.Owner == owner {
		// Idempotent refresh keeps the original acquisition time.
		lk.AcquiredAt = cur.AcquiredAt
	}
	m.locks[key] = lk
	m.mu.Unlock()

	telemetry.IncLocksAcquired()
	m.publish(hub.EventLocked, lk)
	return lk, nil
}

// Release drops the lock. Only the current owner may release; releasing an
// absent or expired lock is ErrNotFound.
func (m *Manager) Release(key Key, owner string) error {
	m.mu.Lock()
	cur, ok := m.locks[key]
	if !ok || !cur.ExpiresAt.After(m.now()) {
		delete(m.locks, key)
		m.mu.Unlock()
		if ok {
			// The entry was expired, not absent. Publish the unlocked
			// event here since the sweeper can no longer see it.
			m.publish(hub.EventUnlocked, cur)
		}
		return ErrNotFound
	}
	if cur.Owner != owner {
		m.mu.Unlock()
		return ErrNotOwner
	}
	delete(m.locks, key)
	m.mu.Unlock()

	m.publish(hub.EventUnlocked, cur)
	return nil
}

// Holder returns the live lock for key, if any.
func (m *Manager) Holder(key Key) (Lock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.locks[key]
	if !ok || !cur.ExpiresAt.After(m.now()) {
		return Lock{}, false
	}
	return cur, true
}

// StartSweeper proactively removes expired locks and publishes unlocked
// events for them so observers do not wait a full TTL to see a field free up.
// Purely advisory: Acquire and Release already ignore expired entries.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("lock sweeper started", slog.Duration("interval", interval), slog.String("component", "collab"))
	for {
		select {
		case <-ctx.Done():
			slog.Info("lock sweeper stopped", slog.String("component", "collab"))
			return
		case <-ticker.C:
			for _, lk := range m.sweep() {
				m.publish(hub.EventUnlocked, lk)
			}
		}
	}
}

func (m *Manager) sweep() []Lock {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var expired []Lock
	for key, lk := range m.locks {
		if !lk.ExpiresAt.After(now) {
			expired = append(expired, lk)
			delete(m.locks, key)
		}
	}
	return expired
}

func (m *Manager) publish(eventType string, lk Lock) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(hub.CollaborationChannel, hub.Event{Type: eventType, Data: lk})
}
