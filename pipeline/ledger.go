// Package pipeline implements the discovery pipeline: a process-local dedup
// ledger and the dual-write synchronizer that pushes extracted candidates
// through both backend stores.
package pipeline

import "sync"

// Ledger tracks which canonical URLs have already been admitted during this
// process lifetime. It only suppresses pipeline-internal duplicate work (the
// same message relayed twice); durable duplicate protection is each backend's
// upsert-by-url, because this set does not survive restarts.
type Ledger struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// Admit records url and reports whether it was new. The first call for a
// given URL returns true; every later call returns false.
func (l *Ledger) Admit(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[url]; ok {
		return false
	}
	l.seen[url] = struct{}{}
	l.order = append(l.order, url)
	return true
}

// Size returns the number of admitted URLs.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// URLs returns admitted URLs in admission order.
func (l *Ledger) URLs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}
