// Package server exposes the HTTP API: ingestion, sync status, locks, the
// WebSocket/SSE observer endpoints, health, and metrics. It includes
// permissive CORS for development and injects correlation IDs into request
// contexts for consistent logging.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamwall/streamsync/telemetry"
)

// NewMux returns the HTTP handler with all routes.
// The provided context bounds the rate limiter cleanup goroutine.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	authCfg := loadAuthConfig()
	rateLimiterCfg := loadRateLimiterConfig()
	corsCfg := loadCORSConfig()
	rateLimiter := newIPRateLimiter(ctx, rateLimiterCfg)

	handlers := NewHandlers(deps)

	mux := http.NewServeMux()

	// Metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health and readiness endpoints
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)
	mux.HandleFunc("/status", handlers.HandleStatus)

	// Ingestion pipeline and sync observability
	mux.HandleFunc("/streams", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			handlers.HandleStreamsList(w, r)
			return
		}
		handlers.HandleStreamsIngest(w, r)
	})
	mux.HandleFunc("/sync-status", handlers.HandleSyncStatus)

	// Collaboration locks
	mux.HandleFunc("/locks", handlers.HandleLocks)

	// Observer transports
	mux.HandleFunc("/ws", handlers.HandleWS)
	mux.HandleFunc("/events", handlers.HandleEventsSSE)

	// Admin endpoints
	mux.HandleFunc("/admin/reconcile", handlers.HandleAdminReconcile)

	// Selective protection: admin endpoints get auth + rate limiting; the
	// write endpoints driven by outside reporters/editors get rate limiting.
	selectiveHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.Path) >= 7 && r.URL.Path[:7] == "/admin/" {
			adminAuth(rateLimitMiddleware(mux, rateLimiter), authCfg).ServeHTTP(w, r)
			return
		}
		if (r.URL.Path == "/streams" && r.Method == http.MethodPost) || r.URL.Path == "/locks" {
			rateLimitMiddleware(mux, rateLimiter).ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Wrap with correlation ID injector and tracing middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selectiveHandler.ServeHTTP(wrappedWriter, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes WebSocket upgrades through to the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, deps Deps, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // long-lived SSE/WebSocket responses manage their own deadlines
		IdleTimeout:  60 * time.Second,
	}

	// Shutdown goroutine
	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
