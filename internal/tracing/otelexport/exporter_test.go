package otelexport

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/tracing"
)

func TestNewEmptyEndpoint(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("New() accepted an empty endpoint")
	}
}

func TestExportSpansNilExporter(t *testing.T) {
	// A nil exporter must be safe to call; the collector does not
	// nil-check on every flush.
	var exp *Exporter
	exp.ExportSpans(context.Background(), []tracing.AttemptSpan{{
		HistoryID:   "h1",
		Kind:        "recurring",
		ContactName: "Alice",
		Outcome:     "ok",
		StartTime:   time.Now(),
		Duration:    2 * time.Second,
	}})
}

func TestShutdownNilExporter(t *testing.T) {
	var exp *Exporter
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
