package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "livebridge"

// TracerProvider wraps OpenTelemetry tracer provider
type TracerProvider struct {
	tp *tracesdk.TracerProvider
}

// Config contains tracing configuration
type Config struct {
	Enabled     bool
	ServiceName string
	JaegerURL   string
	Environment string
	SampleRate  float64
}

// DefaultConfig returns default tracing configuration
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		ServiceName: "livebridge",
		JaegerURL:   "http://localhost:14268/api/traces",
		Environment: "development",
		SampleRate:  1.0,
	}
}

// Init initializes tracing. A disabled config yields a no-op provider.
func Init(cfg Config) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{}, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String("1.0.0"),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.TraceIDRatioBased(cfg.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{tp: tp}, nil
}

// Shutdown flushes and stops the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.tp != nil {
		return tp.tp.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a new span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// AddSpanAttributes adds attributes to the current span
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// RecordError records an error in the current span
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Common span attributes
var (
	EventKindKey   = attribute.Key("nostr.event.kind")
	EventIDKey     = attribute.Key("nostr.event.id")
	EventStatusKey = attribute.Key("nostr.event.status")
	RelayURLKey    = attribute.Key("nostr.relay.url")
	RelayCountKey  = attribute.Key("nostr.relay.count")
	AcceptedKey    = attribute.Key("nostr.relay.accepted")
	ChannelKey     = attribute.Key("sync.channel")
	DurationKey    = attribute.Key("duration")
)

// TraceHTTPRequest traces an HTTP request
func TraceHTTPRequest(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("http.%s", method),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPRouteKey.String(path),
		),
	)
}

// TracePublish traces signing and fan-out of one event.
func TracePublish(ctx context.Context, kind int, status string, relays int) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("nostr.publish.%d", kind),
		trace.WithAttributes(
			EventKindKey.Int(kind),
			EventStatusKey.String(status),
			RelayCountKey.Int(relays),
		),
	)
}

// TraceRelaySend traces delivery to a single relay.
func TraceRelaySend(ctx context.Context, relayURL string) (context.Context, trace.Span) {
	return StartSpan(ctx, "nostr.relay.send",
		trace.WithAttributes(RelayURLKey.String(relayURL)),
	)
}

// TraceControlPlane traces a control-plane operation (connect, identify).
func TraceControlPlane(ctx context.Context, operation, address string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("obs.%s", operation),
		trace.WithAttributes(
			attribute.String("obs.operation", operation),
			attribute.String("obs.address", address),
		),
	)
}

// TraceSyncMessage traces a message posted on a sync channel.
func TraceSyncMessage(ctx context.Context, channel, messageType string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("sync.%s", messageType),
		trace.WithAttributes(
			ChannelKey.String(channel),
			attribute.String("sync.message_type", messageType),
		),
	)
}

// MeasureDuration records the elapsed time of an operation on the current span
func MeasureDuration(ctx context.Context, start time.Time, operation string) {
	AddSpanAttributes(ctx,
		attribute.String("operation", operation),
		DurationKey.Int64(time.Since(start).Milliseconds()),
	)
}
