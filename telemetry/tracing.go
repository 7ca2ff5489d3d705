package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var tracerProvider *sdktrace.TracerProvider

// InitTracing wires the OTLP/gRPC span exporter and returns a shutdown
// function for main to defer. Tracing is opt-in: when
// OTEL_EXPORTER_OTLP_ENDPOINT is unset this is a no-op and all span helpers
// fall through to the otel no-op tracer.
func InitTracing(serviceName, serviceVersion string) (func(), error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		slog.Info("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)
	slog.Info("tracing initialized", slog.String("service", serviceName), slog.String("endpoint", endpoint))

	return func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := tracerProvider.Shutdown(sctx); err != nil {
			slog.Error("tracer provider shutdown failed", slog.Any("err", err))
		}
	}, nil
}

// StartSpan opens a span under the named tracer, stamping the request's
// correlation id as an attribute when the context carries one.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("correlation_id", corr))
	}
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// HTTPMethodAttr returns the http.method span attribute.
func HTTPMethodAttr(method string) attribute.KeyValue {
	return attribute.String("http.method", method)
}

// HTTPRouteAttr returns the http.route span attribute.
func HTTPRouteAttr(route string) attribute.KeyValue {
	return attribute.String("http.route", route)
}

// HTTPURLAttr returns the http.url span attribute.
func HTTPURLAttr(url string) attribute.KeyValue {
	return attribute.String("http.url", url)
}

// SetSpanHTTPStatus records the response status code on the span, marking
// the span as errored for 4xx/5xx responses.
func SetSpanHTTPStatus(span trace.Span, status int) {
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= 400 {
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
	}
}
