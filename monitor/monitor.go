package monitor

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/streamwall/streamsync/hub"
	"github.com/streamwall/streamsync/store"
	"github.com/streamwall/streamsync/telemetry"
)

// CheckResult is the per-URL outcome of one reconciliation cycle.
type CheckResult struct {
	URL     string `json:"url"`
	Status  string `json:"status,omitempty"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

// Reconciler periodically lists known stream URLs from the primary store,
// re-checks liveness, and pushes status updates through every store. Cycles
// never overlap: a tick that fires while a cycle is in flight is skipped.
// Stopping is forced: cancelling the job context also cancels in-flight
// checks, since every per-check context derives from it.
type Reconciler struct {
	Primary store.Store   // source of truth for what needs checking
	Stores  []store.Store // all stores receiving status writes, primary included
	Hub     *hub.Hub
	Checker Checker
	DB      *sql.DB // heartbeat kv writes; optional

	Interval     time.Duration
	CheckTimeout time.Duration
	Concurrency  int

	running sync.Mutex
}

// Start runs the reconcile loop until ctx is cancelled. An immediate first
// cycle runs at boot so fresh deployments do not wait a full interval.
// Env knobs (read once at start):
//
//	CHECK_INTERVAL     cycle period (default Interval or 60s)
//	CHECK_TIMEOUT      per-URL budget (default CheckTimeout or 10s)
//	CHECK_CONCURRENCY  worker pool size (default Concurrency or 4)
func (r *Reconciler) Start(ctx context.Context) {
	interval := r.Interval
	if s := os.Getenv("CHECK_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			interval = d
		}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("status reconciler starting", slog.Duration("interval", interval), slog.String("component", "monitor"))

	r.runGuarded(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("status reconciler stopped", slog.String("component", "monitor"))
			return
		case <-ticker.C:
			r.runGuarded(ctx)
		}
	}
}

// TriggerCycle runs one cycle unless another is already in flight, in which
// case it reports skipped=true without queueing. Shared by the ticker loop
// and the admin trigger endpoint.
func (r *Reconciler) TriggerCycle(ctx context.Context) (results []CheckResult, skipped bool) {
	if !r.running.TryLock() {
		telemetry.IncReconcileSkipped()
		return nil, true
	}
	defer r.running.Unlock()
	return r.RunCycle(ctx), false
}

// runGuarded runs a cycle unless one is already in flight, in which case the
// tick is dropped, not queued.
func (r *Reconciler) runGuarded(ctx context.Context) {
	start := time.Now()
	results, skipped := r.TriggerCycle(ctx)
	if skipped {
		slog.Debug("reconcile cycle still running; skipping tick", slog.String("component", "monitor"))
		return
	}
	telemetry.ObserveReconcileDuration(time.Since(start))
	failed := 0
	changed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
		if res.Changed {
			changed++
		}
	}
	slog.Info("reconcile cycle complete",
		slog.Int("checked", len(results)),
		slog.Int("changed", changed),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)),
		slog.String("component", "monitor"))
}

// RunCycle checks every known URL once with bounded parallelism and returns
// one result per URL. A single URL's failure (timeout, network error) is
// recorded in its result and never aborts the rest of the cycle.
func (r *Reconciler) RunCycle(ctx context.Context) []CheckResult {
	telemetry.IncReconcileCycles()
	r.heartbeat(ctx)

	entries, err := r.Primary.ListStatuses(ctx)
	if err != nil {
		slog.Warn("list streams for reconcile failed", slog.Any("err", err), slog.String("component", "monitor"))
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	checkTimeout := r.CheckTimeout
	if s := os.Getenv("CHECK_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			checkTimeout = d
		}
	}
	if checkTimeout <= 0 {
		checkTimeout = 10 * time.Second
	}
	workers := r.Concurrency
	if s := os.Getenv("CHECK_CONCURRENCY"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			workers = n
		}
	}
	if workers <= 0 {
		workers = 4
	}

	results := make([]CheckResult, len(entries))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, entry := range entries {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Forced stop: abandon the remainder of the cycle. Wait for
			// dispatched workers so nothing writes results (or stores)
			// after we hand the slice back and release the cycle guard.
			wg.Wait()
			return results[:i]
		}
		wg.Add(1)
		go func(i int, entry store.StatusEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.checkOne(ctx, entry, checkTimeout)
		}(i, entry)
	}
	wg.Wait()
	return results
}

// checkOne probes one URL and, when the status changed, writes the update to
// every store. A failure writing one store is logged and does not block the
// others.
func (r *Reconciler) checkOne(ctx context.Context, entry store.StatusEntry, timeout time.Duration) CheckResult {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	live, err := r.Checker.Check(cctx, entry.URL)
	if err != nil {
		telemetry.IncChecksFailed()
		slog.Warn("liveness check failed", slog.String("url", entry.URL), slog.Any("err", err), slog.String("component", "monitor"))
		return CheckResult{URL: entry.URL, Error: err.Error()}
	}
	status := store.StatusOffline
	if live {
		status = store.StatusLive
	}
	if status == entry.Status {
		return CheckResult{URL: entry.URL, Status: status}
	}

	now := time.Now().UTC()
	patch := store.StatusPatch(status, now)
	for _, st := range r.Stores {
		// Writes run under the same per-URL budget as the check itself,
		// so a stalled backend cannot hold up the rest of the cycle.
		updated, err := r.applyStatus(cctx, st, entry, patch)
		if err != nil {
			telemetry.IncBackendWriteFailures(st.Name())
			slog.Warn("status write failed",
				slog.String("url", entry.URL),
				slog.String("backend", st.Name()),
				slog.Any("err", err),
				slog.String("component", "monitor"))
			continue
		}
		telemetry.IncStatusChanges(status)
		if r.Hub != nil {
			r.Hub.Publish(hub.StreamsChannel, hub.Event{Type: hub.EventUpdated, Data: map[string]any{
				"backend": st.Name(),
				"stream":  updated,
			}})
		}
	}
	slog.Info("stream status changed",
		slog.String("url", entry.URL),
		slog.String("from", entry.Status),
		slog.String("to", status),
		slog.String("component", "monitor"))
	return CheckResult{URL: entry.URL, Status: status, Changed: true}
}

// applyStatus updates by id when the entry came from this store, otherwise
// resolves the store's own id for the URL first (ids are per-backend).
func (r *Reconciler) applyStatus(ctx context.Context, st store.Store, entry store.StatusEntry, patch store.Patch) (store.Record, error) {
	if st == r.Primary || st.Name() == r.Primary.Name() {
		return st.Update(ctx, entry.ID, patch)
	}
	rec, err := st.FindByURL(ctx, entry.URL)
	if err != nil {
		return store.Record{}, err
	}
	return st.Update(ctx, rec.ID, patch)
}

// heartbeat records the cycle start in kv so /status can report job health.
func (r *Reconciler) heartbeat(ctx context.Context) {
	if r.DB == nil {
		return
	}
	_, _ = r.DB.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ('job_reconcile_last', to_char(NOW() AT TIME ZONE 'UTC','YYYY-MM-DD"T"HH24:MI:SS.MS"Z"'), NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`)
	_, _ = r.DB.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ('job_reconcile_cycles', '1', NOW())
		ON CONFLICT(key) DO UPDATE SET value=(kv.value::bigint + 1)::text, updated_at=NOW()`)
}
