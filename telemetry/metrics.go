// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CandidatesExtracted  prometheus.Counter
	CandidatesDuplicate  prometheus.Counter
	BackendWriteFailures *prometheus.CounterVec
	ReconcileCycles      prometheus.Counter
	ReconcileSkipped     prometheus.Counter
	ChecksFailed         prometheus.Counter
	StatusChanges        *prometheus.CounterVec
	LocksAcquired        prometheus.Counter
	LockConflicts        prometheus.Counter
	EventsPublished      *prometheus.CounterVec
	EventsDelivered      *prometheus.CounterVec
	EventsDropped        *prometheus.CounterVec

	// Histograms (seconds)
	ReconcileDuration prometheus.Observer

	// Gauges
	LedgerSizeGauge     prometheus.Gauge
	HubConnectionsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CandidatesExtracted = promauto.NewCounter(prometheus.CounterOpts{Name: "streamsync_candidates_extracted_total", Help: "Stream candidates extracted from messages"})
		CandidatesDuplicate = promauto.NewCounter(prometheus.CounterOpts{Name: "streamsync_candidates_duplicate_total", Help: "Candidates dropped by the dedup ledger"})
		BackendWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamsync_backend_write_failures_total", Help: "Failed create/update calls per backend"}, []string{"backend"})
		ReconcileCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "streamsync_reconcile_cycles_total", Help: "Status reconcile cycles run"})
		ReconcileSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "streamsync_reconcile_skipped_total", Help: "Reconcile ticks skipped because a cycle was in flight"})
		ChecksFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "streamsync_checks_failed_total", Help: "Liveness checks that errored or timed out"})
		StatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamsync_status_changes_total", Help: "Stream status transitions written"}, []string{"status"})
		LocksAcquired = promauto.NewCounter(prometheus.CounterOpts{Name: "streamsync_locks_acquired_total", Help: "Field locks acquired (including refreshes)"})
		LockConflicts = promauto.NewCounter(prometheus.CounterOpts{Name: "streamsync_lock_conflicts_total", Help: "Lock acquisitions rejected because another owner holds the field"})
		EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamsync_events_published_total", Help: "Events published to the broadcast hub"}, []string{"channel", "type"})
		EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamsync_events_delivered_total", Help: "Event deliveries to subscribers"}, []string{"channel"})
		EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamsync_events_dropped_total", Help: "Event deliveries dropped due to slow subscribers"}, []string{"channel"})
		ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "streamsync_reconcile_duration_seconds", Help: "Reconcile cycle duration seconds", Buckets: prometheus.DefBuckets})
		LedgerSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamsync_ledger_size", Help: "URLs admitted by the dedup ledger this process lifetime"})
		HubConnectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamsync_hub_connections", Help: "Currently connected hub subscribers"})
	})
}

// The helpers below are nil-safe so library code can record metrics without
// caring whether Init ran (it usually hasn't in unit tests).

func AddCandidatesExtracted(n int) {
	if CandidatesExtracted != nil && n > 0 {
		CandidatesExtracted.Add(float64(n))
	}
}

func IncCandidatesDuplicate() {
	if CandidatesDuplicate != nil {
		CandidatesDuplicate.Inc()
	}
}

func IncBackendWriteFailures(backend string) {
	if BackendWriteFailures != nil {
		BackendWriteFailures.WithLabelValues(backend).Inc()
	}
}

func IncReconcileCycles() {
	if ReconcileCycles != nil {
		ReconcileCycles.Inc()
	}
}

func IncReconcileSkipped() {
	if ReconcileSkipped != nil {
		ReconcileSkipped.Inc()
	}
}

func IncChecksFailed() {
	if ChecksFailed != nil {
		ChecksFailed.Inc()
	}
}

func IncStatusChanges(status string) {
	if StatusChanges != nil {
		StatusChanges.WithLabelValues(status).Inc()
	}
}

func IncLocksAcquired() {
	if LocksAcquired != nil {
		LocksAcquired.Inc()
	}
}

func IncLockConflicts() {
	if LockConflicts != nil {
		LockConflicts.Inc()
	}
}

func IncEventsPublished(channel, eventType string) {
	if EventsPublished != nil {
		EventsPublished.WithLabelValues(channel, eventType).Inc()
	}
}

func IncEventsDelivered(channel string) {
	if EventsDelivered != nil {
		EventsDelivered.WithLabelValues(channel).Inc()
	}
}

func IncEventsDropped(channel string) {
	if EventsDropped != nil {
		EventsDropped.WithLabelValues(channel).Inc()
	}
}

func ObserveReconcileDuration(d time.Duration) {
	if ReconcileDuration != nil {
		ReconcileDuration.Observe(d.Seconds())
	}
}

func SetLedgerSize(n int) {
	if LedgerSizeGauge != nil {
		LedgerSizeGauge.Set(float64(n))
	}
}

func SetHubConnections(n int) {
	if HubConnectionsGauge != nil {
		HubConnectionsGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
