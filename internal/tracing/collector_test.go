package tracing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/dispatch"
	"github.com/nextlevelbuilder/pigeon/internal/sender"
	"github.com/nextlevelbuilder/pigeon/internal/store"
)

func attempt(n int, outcome sender.Status) dispatch.Attempt {
	return dispatch.Attempt{
		JobID:       fmt.Sprintf("job-%d", n),
		HistoryID:   fmt.Sprintf("hist-%d", n),
		Kind:        store.KindRecurring,
		ContactName: "Alice",
		Outcome:     outcome,
		StartedAt:   time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute),
		Duration:    time.Second,
	}
}

func TestRecentNewestFirst(t *testing.T) {
	c := NewCollector(8)
	for i := 0; i < 5; i++ {
		c.ObserveAttempt(attempt(i, sender.StatusOK))
	}

	got := c.Recent(3)
	if len(got) != 3 {
		t.Fatalf("Recent(3) returned %d spans", len(got))
	}
	for i, want := range []string{"hist-4", "hist-3", "hist-2"} {
		if got[i].HistoryID != want {
			t.Errorf("Recent[%d] = %s, want %s", i, got[i].HistoryID, want)
		}
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	c := NewCollector(4)
	for i := 0; i < 10; i++ {
		c.ObserveAttempt(attempt(i, sender.StatusOK))
	}

	got := c.Recent(0)
	if len(got) != 4 {
		t.Fatalf("Recent(0) returned %d spans, want ring size 4", len(got))
	}
	if got[0].HistoryID != "hist-9" || got[3].HistoryID != "hist-6" {
		t.Errorf("ring window = %s..%s, want hist-9..hist-6", got[0].HistoryID, got[3].HistoryID)
	}
}

func TestCounts(t *testing.T) {
	c := NewCollector(16)
	c.ObserveAttempt(attempt(0, sender.StatusOK))
	c.ObserveAttempt(attempt(1, sender.StatusOK))
	c.ObserveAttempt(attempt(2, sender.StatusFailed))
	c.ObserveAttempt(attempt(3, sender.StatusUnknown))

	counts := c.Counts()
	if counts["ok"] != 2 || counts["failed"] != 1 || counts["unknown"] != 1 {
		t.Errorf("Counts() = %v", counts)
	}
}

type captureExporter struct {
	mu    sync.Mutex
	spans []AttemptSpan
	down  bool
}

func (e *captureExporter) ExportSpans(ctx context.Context, spans []AttemptSpan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, spans...)
}

func (e *captureExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.down = true
	return nil
}

func TestStopFlushesToExporter(t *testing.T) {
	c := NewCollector(16)
	exp := &captureExporter{}
	c.SetExporter(exp)
	c.Start()

	c.ObserveAttempt(attempt(0, sender.StatusOK))
	c.ObserveAttempt(attempt(1, sender.StatusFailed))
	c.Stop()

	exp.mu.Lock()
	defer exp.mu.Unlock()
	if len(exp.spans) != 2 {
		t.Errorf("exported %d spans, want 2", len(exp.spans))
	}
	if !exp.down {
		t.Error("exporter was not shut down")
	}
}
