//go:build otel

package cmd

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/pigeon/internal/config"
	"github.com/nextlevelbuilder/pigeon/internal/tracing"
	"github.com/nextlevelbuilder/pigeon/internal/tracing/otelexport"
)

// initOTelExporter wires the OTLP span exporter into the collector when
// tracing is configured with an endpoint. Only compiled with -tags otel.
func initOTelExporter(ctx context.Context, cfg *config.Config, collector *tracing.Collector) {
	if collector == nil {
		return
	}
	if cfg.Tracing.Endpoint == "" {
		slog.Debug("OTel export available but no tracing.endpoint configured")
		return
	}

	exp, err := otelexport.New(ctx, otelexport.Config{
		Endpoint: cfg.Tracing.Endpoint,
		Protocol: cfg.Tracing.Protocol,
		Insecure: true,
	})
	if err != nil {
		slog.Warn("failed to create OTel exporter", "error", err)
		return
	}

	collector.SetExporter(exp)
	slog.Info("OpenTelemetry OTLP export enabled",
		"endpoint", cfg.Tracing.Endpoint,
		"protocol", cfg.Tracing.Protocol,
	)
}
