// Package tracing keeps a bounded in-memory record of send attempts and
// optionally exports them as OpenTelemetry spans.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/dispatch"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultRingSize      = 256
)

// AttemptSpan is one finished send attempt as seen by observers and
// exporters. The history id doubles as the span identity.
type AttemptSpan struct {
	HistoryID   string        `json:"historyId"`
	JobID       string        `json:"jobId,omitempty"` // empty for instant sends
	Kind        string        `json:"kind"`
	ContactName string        `json:"contactName"`
	Outcome     string        `json:"outcome"` // ok, failed, unknown
	Reason      string        `json:"reason,omitempty"`
	StartTime   time.Time     `json:"startTime"`
	Duration    time.Duration `json:"duration"`
}

// SpanExporter receives batches of finished attempt spans. Keeping this
// an interface confines the OTel dependency to a subpackage that is only
// wired in behind a build tag.
type SpanExporter interface {
	ExportSpans(ctx context.Context, spans []AttemptSpan)
	Shutdown(ctx context.Context) error
}

// Collector implements dispatch.AttemptObserver. Attempts land in a
// fixed-size ring for the status endpoint and, when an exporter is
// attached, are batched out on a flush interval. Recording never blocks
// the dispatcher: a full buffer drops the span.
type Collector struct {
	mu   sync.Mutex
	ring []AttemptSpan
	next int
	full bool

	spanCh   chan AttemptSpan
	stopCh   chan struct{}
	wg       sync.WaitGroup
	exporter SpanExporter
}

var _ dispatch.AttemptObserver = (*Collector)(nil)

// NewCollector creates a collector holding the last size attempts.
// size <= 0 selects the default.
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = defaultRingSize
	}
	return &Collector{
		ring:   make([]AttemptSpan, size),
		spanCh: make(chan AttemptSpan, size),
		stopCh: make(chan struct{}),
	}
}

// SetExporter attaches an external span exporter. Call before Start.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.exporter = exp
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop()
	slog.Info("tracing collector started", "ring", len(c.ring))
}

// Stop drains pending spans and shuts the exporter down.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.exporter.Shutdown(ctx); err != nil {
			slog.Warn("span exporter shutdown failed", "error", err)
		}
	}
	slog.Info("tracing collector stopped")
}

// ObserveAttempt records one finished attempt.
func (c *Collector) ObserveAttempt(a dispatch.Attempt) {
	span := AttemptSpan{
		HistoryID:   a.HistoryID,
		JobID:       a.JobID,
		Kind:        string(a.Kind),
		ContactName: a.ContactName,
		Outcome:     a.Outcome.String(),
		Reason:      a.Reason,
		StartTime:   a.StartedAt.UTC(),
		Duration:    a.Duration,
	}

	c.mu.Lock()
	c.ring[c.next] = span
	c.next = (c.next + 1) % len(c.ring)
	if c.next == 0 {
		c.full = true
	}
	c.mu.Unlock()

	select {
	case c.spanCh <- span:
	default:
		slog.Warn("span buffer full, dropping span", "history", span.HistoryID)
	}
}

// Recent returns up to limit spans, newest first.
func (c *Collector) Recent(limit int) []AttemptSpan {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.next
	if c.full {
		size = len(c.ring)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]AttemptSpan, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (c.next - i + len(c.ring)) % len(c.ring)
		out = append(out, c.ring[idx])
	}
	return out
}

// Counts sums outcomes over the retained window.
func (c *Collector) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.next
	if c.full {
		size = len(c.ring)
	}
	counts := make(map[string]int)
	for i := 0; i < size; i++ {
		counts[c.ring[i].Outcome]++
	}
	return counts
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var spans []AttemptSpan
	for {
		select {
		case span := <-c.spanCh:
			spans = append(spans, span)
		default:
			if len(spans) == 0 || c.exporter == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			c.exporter.ExportSpans(ctx, spans)
			slog.Debug("flushed spans", "count", len(spans))
			return
		}
	}
}
