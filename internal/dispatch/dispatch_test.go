package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/clock"
	"github.com/nextlevelbuilder/pigeon/internal/notify"
	"github.com/nextlevelbuilder/pigeon/internal/sender"
	"github.com/nextlevelbuilder/pigeon/internal/store"
	"github.com/nextlevelbuilder/pigeon/internal/store/sqlite"
)

func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func intp(v int) *int { return &v }

// fakeSender replays scripted outcomes and records every call.
type fakeSender struct {
	mu       sync.Mutex
	ready    bool
	outcomes []sender.Outcome // consumed front to back; empty means OK
	calls    []fakeCall

	// block, when non-nil, stalls Send until the channel closes.
	block chan struct{}
}

type fakeCall struct {
	contact, message, correlationID string
}

func newFakeSender() *fakeSender {
	return &fakeSender{ready: true}
}

func (f *fakeSender) queue(out ...sender.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, out...)
}

func (f *fakeSender) Ready(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSender) Send(ctx context.Context, contact, message, correlationID string) sender.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{contact, message, correlationID})
	out := sender.OK()
	if len(f.outcomes) > 0 {
		out = f.outcomes[0]
		f.outcomes = f.outcomes[1:]
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return out
}

func (f *fakeSender) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// captureNotifier records events in arrival order.
type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Notify(ev notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureNotifier) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Name
	}
	return out
}

type fixture struct {
	d      *Dispatcher
	store  store.Store
	sender *fakeSender
	clk    *clock.Fake
	events *captureNotifier
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "pigeon.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	snd := newFakeSender()
	clk := clock.NewFake(now)
	events := &captureNotifier{}
	d := New(st, snd, Options{Clock: clk, Notifier: events})
	return &fixture{d: d, store: st, sender: snd, clk: clk, events: events}
}

func (f *fixture) seedRecurring(t *testing.T, anchor, next time.Time, tolerance *int) *store.Job {
	t.Helper()
	job := &store.Job{
		Kind:             store.KindRecurring,
		ContactName:      "Alice",
		Message:          "hi",
		AnchorTime:       anchor,
		IntervalValue:    1,
		IntervalUnit:     store.UnitHour,
		ToleranceMinutes: tolerance,
		Status:           store.StatusActive,
		NextRun:          &next,
	}
	if err := f.store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	return job
}

func (f *fixture) job(t *testing.T, id string) *store.Job {
	t.Helper()
	job, err := f.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	return job
}

func (f *fixture) history(t *testing.T, jobID string) []store.HistoryEntry {
	t.Helper()
	entries, err := f.store.ListHistory(context.Background(), store.HistoryFilter{JobID: jobID})
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	return entries
}

func wantNextRun(t *testing.T, job *store.Job, want time.Time) {
	t.Helper()
	if job.NextRun == nil {
		t.Fatalf("NextRun = nil, want %v", want)
	}
	if !job.NextRun.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", job.NextRun, want)
	}
}

func TestTickSkippedWhileSenderNotReady(t *testing.T) {
	now := utc(2025, 1, 1, 11, 0)
	f := newFixture(t, now)
	f.seedRecurring(t, utc(2025, 1, 1, 10, 0), utc(2025, 1, 1, 11, 0), nil)
	f.sender.ready = false

	f.d.Tick(context.Background())

	if got := f.sender.sends(); got != 0 {
		t.Errorf("sends = %d, want 0", got)
	}
	if got := len(f.history(t, "")); got != 0 {
		t.Errorf("history entries = %d, want 0", got)
	}
}

func TestCatchUpWithinTolerance(t *testing.T) {
	// Down since before 11:00; first tick at 11:05 with a 10m tolerance
	// executes the 11:00 slot and advances to 12:00.
	f := newFixture(t, utc(2025, 1, 1, 11, 5))
	job := f.seedRecurring(t, utc(2025, 1, 1, 10, 0), utc(2025, 1, 1, 11, 0), intp(10))

	f.d.Tick(context.Background())

	if got := f.sender.sends(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
	entries := f.history(t, job.ID)
	if len(entries) != 1 || entries[0].Status != store.HistorySent {
		t.Fatalf("history = %+v, want one sent entry", entries)
	}
	after := f.job(t, job.ID)
	wantNextRun(t, after, utc(2025, 1, 1, 12, 0))
	if after.LastRun == nil || !after.LastRun.Equal(utc(2025, 1, 1, 11, 5)) {
		t.Errorf("LastRun = %v, want 11:05", after.LastRun)
	}
}

func TestSkippedSlotBeyondTolerance(t *testing.T) {
	// 20 minutes late with a 10m tolerance: skip, no send, advance.
	f := newFixture(t, utc(2025, 1, 1, 11, 20))
	job := f.seedRecurring(t, utc(2025, 1, 1, 10, 0), utc(2025, 1, 1, 11, 0), intp(10))

	f.d.Tick(context.Background())

	if got := f.sender.sends(); got != 0 {
		t.Fatalf("sends = %d, want 0", got)
	}
	entries := f.history(t, job.ID)
	if len(entries) != 1 || entries[0].Status != store.HistorySkipped {
		t.Fatalf("history = %+v, want one skipped entry", entries)
	}
	if entries[0].Error != "Late by 20m" {
		t.Errorf("skip reason = %q, want %q", entries[0].Error, "Late by 20m")
	}
	wantNextRun(t, f.job(t, job.ID), utc(2025, 1, 1, 12, 0))
	if got := f.events.names(); len(got) != 1 || got[0] != "delivery.skipped" {
		t.Errorf("events = %v, want [delivery.skipped]", got)
	}
}

func TestSkipThenExecuteInOneTick(t *testing.T) {
	// At 12:03 the 11:00 slot is hopeless, but the 12:00 slot is only
	// 3 minutes old: one tick skips and then sends.
	f := newFixture(t, utc(2025, 1, 1, 12, 3))
	job := f.seedRecurring(t, utc(2025, 1, 1, 10, 0), utc(2025, 1, 1, 11, 0), intp(10))

	f.d.Tick(context.Background())

	if got := f.sender.sends(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
	entries := f.history(t, job.ID)
	if len(entries) != 2 {
		t.Fatalf("history entries = %d, want 2", len(entries))
	}
	// Newest first: the sent row follows the skip.
	if entries[0].Status != store.HistorySent || entries[1].Status != store.HistorySkipped {
		t.Fatalf("history statuses = %s, %s; want sent, skipped", entries[0].Status, entries[1].Status)
	}
	wantNextRun(t, f.job(t, job.ID), utc(2025, 1, 1, 13, 0))
}

func TestToleranceBoundaryIsStrict(t *testing.T) {
	// Exactly toleranceMinutes late still executes; only strictly later
	// skips. Tolerance zero on an on-time slot therefore sends.
	tests := []struct {
		name      string
		now       time.Time
		tolerance int
		wantSent  bool
	}{
		{"exactly_at_tolerance", utc(2025, 1, 1, 11, 10), 10, true},
		{"one_past_tolerance", utc(2025, 1, 1, 11, 11), 10, false},
		{"zero_tolerance_on_time", utc(2025, 1, 1, 11, 0), 0, true},
		{"zero_tolerance_one_late", utc(2025, 1, 1, 11, 1), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.now)
			job := f.seedRecurring(t, utc(2025, 1, 1, 10, 0), utc(2025, 1, 1, 11, 0), intp(tt.tolerance))

			f.d.Tick(context.Background())

			wantSends := 0
			if tt.wantSent {
				wantSends = 1
			}
			if got := f.sender.sends(); got != wantSends {
				t.Fatalf("sends = %d, want %d", got, wantSends)
			}
			entries := f.history(t, job.ID)
			if len(entries) == 0 {
				t.Fatal("no history written")
			}
			wantStatus := store.HistorySkipped
			if tt.wantSent {
				wantStatus = store.HistorySent
			}
			if entries[0].Status != wantStatus {
				t.Errorf("history status = %s, want %s", entries[0].Status, wantStatus)
			}
		})
	}
}

func TestUnknownOutcomeConsumesSlot(t *testing.T) {
	f := newFixture(t, utc(2025, 1, 1, 11, 0))
	job := f.seedRecurring(t, utc(2025, 1, 1, 10, 0), utc(2025, 1, 1, 11, 0), intp(30))
	f.sender.queue(sender.Unknown("no confirmation within 30s"))

	f.d.Tick(context.Background())

	entries := f.history(t, job.ID)
	if len(entries) != 1 || entries[0].Status != store.HistoryUnknown {
		t.Fatalf("history = %+v, want one unknown entry", entries)
	}
	after := f.job(t, job.ID)
	wantNextRun(t, after, utc(2025, 1, 1, 12, 0))
	if after.LastRun != nil {
		t.Errorf("LastRun = %v, want nil for unconfirmed attempt", after.LastRun)
	}

	// One minute later the job is not due again: no re-send of a message
	// that may already have landed.
	f.clk.Set(utc(2025, 1, 1, 11, 1))
	f.d.Tick(context.Background())
	if got := f.sender.sends(); got != 1 {
		t.Errorf("sends after second tick = %d, want 1", got)
	}
}

func TestFailedOutcomeRetriesCurrentSlot(t *testing.T) {
	f := newFixture(t, utc(2025, 1, 1, 11, 0))
	job := f.seedRecurring(t, utc(2025, 1, 1, 10, 0), utc(2025, 1, 1, 11, 0), nil)
	f.sender.queue(sender.Failed("contact not found"))

	f.d.Tick(context.Background())

	// On-slot failure keeps the 11:00 slot current, so the job stays
	// eligible and the next tick retries.
	wantNextRun(t, f.job(t, job.ID), utc(2025, 1, 1, 11, 0))

	f.clk.Set(utc(2025, 1, 1, 11, 1))
	f.d.Tick(context.Background())
	if got := f.sender.sends(); got != 2 {
		t.Fatalf("sends = %d, want 2 (one retry)", got)
	}
	// The retry succeeded off-slot, so the grid advances past 11:00.
	wantNextRun(t, f.job(t, job.ID), utc(2025, 1, 1, 12, 0))

	entries := f.history(t, job.ID)
	if len(entries) != 2 {
		t.Fatalf("history entries = %d, want 2", len(entries))
	}
	if entries[0].Status != store.HistorySent || entries[1].Status != store.HistoryFailed {
		t.Errorf("history statuses = %s, %s; want sent, failed", entries[0].Status, entries[1].Status)
	}
}

func TestOnceJobPastAnchorCompletes(t *testing.T) {
	f := newFixture(t, utc(2025, 1, 1, 12, 0))
	job := &store.Job{
		Kind:        store.KindOnce,
		ContactName: "Bob",
		Message:     "happy birthday",
		AnchorTime:  utc(2025, 1, 1, 11, 55),
		Status:      store.StatusActive,
		NextRun:     func() *time.Time { v := utc(2025, 1, 1, 11, 55); return &v }(),
	}
	if err := f.store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	f.d.Tick(context.Background())

	after := f.job(t, job.ID)
	if after.Status != store.StatusCompleted {
		t.Fatalf("status = %s, want completed", after.Status)
	}
	if after.NextRun != nil {
		t.Errorf("NextRun = %v, want nil after completion", after.NextRun)
	}
	entries := f.history(t, job.ID)
	if len(entries) != 1 || entries[0].Status != store.HistorySent {
		t.Fatalf("history = %+v, want one sent entry", entries)
	}

	// Terminal jobs leave the due set for good.
	f.clk.Set(utc(2025, 1, 1, 12, 1))
	f.d.Tick(context.Background())
	if got := f.sender.sends(); got != 1 {
		t.Errorf("sends = %d, want 1", got)
	}
}

func TestOnceJobFailureIsTerminal(t *testing.T) {
	f := newFixture(t, utc(2025, 1, 1, 12, 0))
	job := &store.Job{
		Kind:        store.KindOnce,
		ContactName: "Bob",
		Message:     "hi",
		AnchorTime:  utc(2025, 1, 1, 12, 0),
		Status:      store.StatusActive,
		NextRun:     func() *time.Time { v := utc(2025, 1, 1, 12, 0); return &v }(),
	}
	if err := f.store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	f.sender.queue(sender.Failed("not logged in"))

	f.d.Tick(context.Background())

	after := f.job(t, job.ID)
	if after.Status != store.StatusFailed {
		t.Fatalf("status = %s, want failed", after.Status)
	}
	if got := f.events.names(); len(got) != 1 || got[0] != "delivery.failed" {
		t.Errorf("events = %v, want [delivery.failed]", got)
	}
}

func TestExecutingSetBlocksOverlappingTicks(t *testing.T) {
	f := newFixture(t, utc(2025, 1, 1, 11, 0))
	job := f.seedRecurring(t, utc(2025, 1, 1, 10, 0), utc(2025, 1, 1, 11, 0), nil)

	f.sender.block = make(chan struct{})

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		f.d.Tick(context.Background())
	}()

	// Wait for the first tick to reach the sender.
	deadline := time.Now().Add(2 * time.Second)
	for f.sender.sends() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first tick never reached the sender")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := f.d.ExecutingCount(); got != 1 {
		t.Fatalf("ExecutingCount = %d, want 1", got)
	}

	// A second tick one minute later finds the job still executing and
	// must not start a second attempt.
	f.clk.Set(utc(2025, 1, 1, 11, 1))
	f.d.Tick(context.Background())
	if got := f.sender.sends(); got != 1 {
		t.Fatalf("sends = %d, want 1 while first attempt in flight", got)
	}

	close(f.sender.block)
	<-firstDone

	if got := f.d.ExecutingCount(); got != 0 {
		t.Errorf("ExecutingCount = %d, want 0 after completion", got)
	}
	entries := f.history(t, job.ID)
	if len(entries) != 1 {
		t.Errorf("history entries = %d, want 1", len(entries))
	}
}

func TestDeleteDuringExecutionKeepsHistoryRow(t *testing.T) {
	f := newFixture(t, utc(2025, 1, 1, 11, 0))
	job := f.seedRecurring(t, utc(2025, 1, 1, 10, 0), utc(2025, 1, 1, 11, 0), nil)

	f.sender.block = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.d.Tick(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.sender.sends() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("tick never reached the sender")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := f.d.DeleteJob(context.Background(), job.ID); err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}

	close(f.sender.block)
	<-done

	if _, err := f.store.GetJob(context.Background(), job.ID); !store.IsNotFound(err) {
		t.Fatalf("GetJob after delete = %v, want not found", err)
	}

	// The attempt's row survives, detached from the job, with its
	// terminal status written.
	entries, err := f.store.ListHistory(context.Background(), store.HistoryFilter{})
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].JobID != nil {
		t.Errorf("JobID = %v, want nil after cascade", *entries[0].JobID)
	}
	if entries[0].Status != store.HistorySent {
		t.Errorf("status = %s, want sent", entries[0].Status)
	}
}

// faultyStore fails AppendHistory for one job id and passes everything
// else through.
type faultyStore struct {
	store.Store
	failJobID string
}

func (fs *faultyStore) AppendHistory(ctx context.Context, entry *store.HistoryEntry) error {
	if entry.JobID != nil && *entry.JobID == fs.failJobID {
		return errors.New("disk full")
	}
	return fs.Store.AppendHistory(ctx, entry)
}

func TestStoreErrorDoesNotWedgeTick(t *testing.T) {
	// Two due jobs; recording the first one's attempt fails. The loop
	// must abort that job only and still run the second.
	f := newFixture(t, utc(2025, 1, 1, 11, 0))
	doomed := f.seedRecurring(t, utc(2025, 1, 1, 10, 0), utc(2025, 1, 1, 11, 0), nil)
	survivor := f.seedRecurring(t, utc(2025, 1, 1, 10, 30), utc(2025, 1, 1, 10, 30), nil)

	d := New(&faultyStore{Store: f.store, failJobID: doomed.ID}, f.sender, Options{Clock: f.clk})

	d.Tick(context.Background())

	if got := f.sender.sends(); got != 1 {
		t.Errorf("sends = %d, want 1 (survivor only)", got)
	}
	entries := f.history(t, survivor.ID)
	if len(entries) != 1 || entries[0].Status != store.HistorySent {
		t.Errorf("survivor history = %+v, want one sent entry", entries)
	}
	if got := d.ExecutingCount(); got != 0 {
		t.Errorf("ExecutingCount = %d, want 0", got)
	}
}
