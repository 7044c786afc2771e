// Package otelexport ships attempt spans to an OpenTelemetry collector
// over OTLP. It is only wired in by builds carrying the "otel" tag.
package otelexport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/pigeon/internal/tracing"
)

// Config configures the OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTel service name (default "pigeon")
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter converts attempt spans to OTel spans and exports them via
// OTLP. It implements tracing.SpanExporter.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

var _ tracing.SpanExporter = (*Exporter)(nil)

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pigeon"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	return &Exporter{
		provider: tp,
		tracer:   tp.Tracer("pigeon"),
	}, nil
}

// ExportSpans converts attempt spans to OTel spans and exports them.
// Called by the Collector during flush; errors are logged, never
// propagated into the dispatcher.
func (e *Exporter) ExportSpans(ctx context.Context, spans []tracing.AttemptSpan) {
	if e == nil || len(spans) == 0 {
		return
	}
	for _, s := range spans {
		e.exportSpan(ctx, s)
	}
}

func (e *Exporter) exportSpan(ctx context.Context, s tracing.AttemptSpan) {
	attrs := []attribute.KeyValue{
		attribute.String("pigeon.history_id", s.HistoryID),
		attribute.String("pigeon.kind", s.Kind),
		attribute.String("pigeon.contact", s.ContactName),
		attribute.String("pigeon.outcome", s.Outcome),
		attribute.Int64("pigeon.duration_ms", s.Duration.Milliseconds()),
	}
	if s.JobID != "" {
		attrs = append(attrs, attribute.String("pigeon.job_id", s.JobID))
	}

	_, span := e.tracer.Start(ctx, "send "+s.ContactName,
		trace.WithTimestamp(s.StartTime),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	switch s.Outcome {
	case "ok":
		span.SetStatus(codes.Ok, "")
	case "failed":
		span.SetStatus(codes.Error, s.Reason)
		if s.Reason != "" {
			span.RecordError(fmt.Errorf("%s", s.Reason))
		}
	default:
		// unknown keeps the unset status: not a confirmed failure.
		if s.Reason != "" {
			span.SetAttributes(attribute.String("pigeon.reason", s.Reason))
		}
	}

	span.End(trace.WithTimestamp(s.StartTime.Add(s.Duration)))
}

// Shutdown flushes remaining spans and releases the provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Info("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}
