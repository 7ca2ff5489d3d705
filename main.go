// Command streamsync is the stream synchronization and collaboration core.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres (the primary record store) and runs idempotent migrations.
//   - Wires the discovery pipeline against the primary store and the legacy
//     sheet bridge, dual-writing every admitted stream.
//   - Starts background jobs: the status reconciler and the lock sweeper.
//   - Exposes the HTTP API: ingestion, locks, WebSocket/SSE observers,
//     /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/streamwall/streamsync/collab"
	"github.com/streamwall/streamsync/config"
	"github.com/streamwall/streamsync/db"
	"github.com/streamwall/streamsync/hub"
	"github.com/streamwall/streamsync/monitor"
	"github.com/streamwall/streamsync/pipeline"
	"github.com/streamwall/streamsync/server"
	"github.com/streamwall/streamsync/store"
	"github.com/streamwall/streamsync/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateSyncReady(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics registration
	telemetry.Init()

	// Initialize OpenTelemetry tracing (no-op unless OTEL_EXPORTER_OTLP_ENDPOINT is set)
	shutdownTracing, err := telemetry.InitTracing("streamsync", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// DB (primary store)
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Backend stores. The primary Postgres store is always on; the legacy
	// sheet bridge joins when configured. A failure on either side surfaces
	// as a per-backend outcome, never a pipeline failure.
	primary := store.Store(store.NewPostgres(database))
	var stores []store.Store
	stores = append(stores, wrapRetry(primary, cfg))
	if cfg.SheetBaseURL != "" {
		stores = append(stores, wrapRetry(store.NewSheet(cfg.SheetBaseURL, cfg.SheetToken, cfg.SheetTimeout), cfg))
	} else {
		slog.Warn("SHEET_BASE_URL not set; legacy store disabled, running primary-only")
	}

	// Broadcast hub and collaboration locks
	broadcast := hub.New(hub.StreamsChannel, hub.CollaborationChannel)
	locks := collab.NewManager(broadcast, cfg.LockTTL)
	go locks.StartSweeper(ctx, cfg.LockSweepInterval)

	// Discovery pipeline
	sync := pipeline.NewSynchronizer(pipeline.NewLedger(), broadcast, stores...)

	// Status reconciler
	reconciler := &monitor.Reconciler{
		Primary:      primary,
		Stores:       stores,
		Hub:          broadcast,
		Checker:      &monitor.HTTPChecker{Client: &http.Client{Timeout: cfg.CheckTimeout}},
		DB:           database,
		Interval:     cfg.CheckInterval,
		CheckTimeout: cfg.CheckTimeout,
		Concurrency:  cfg.CheckConcurrency,
	}
	go reconciler.Start(ctx)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux carries /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (blocks until ctx is cancelled)
	deps := server.Deps{
		DB:         database,
		Hub:        broadcast,
		Sync:       sync,
		Locks:      locks,
		Reconciler: reconciler,
		Primary:    primary,
	}
	if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
	}
	slog.Info("shutdown complete")
}

// wrapRetry applies the optional backoff decorator around a backend.
func wrapRetry(st store.Store, cfg *config.Config) store.Store {
	if cfg.BackendMaxTries <= 1 {
		return st
	}
	return store.WithRetry(st, uint(cfg.BackendMaxTries))
}
