//go:build !otel

package cmd

import (
	"context"

	"github.com/nextlevelbuilder/pigeon/internal/config"
	"github.com/nextlevelbuilder/pigeon/internal/tracing"
)

// initOTelExporter is a no-op without -tags otel; attempt spans stay in
// the in-memory ring only.
func initOTelExporter(ctx context.Context, cfg *config.Config, collector *tracing.Collector) {}
