// Package dispatch runs the scheduling core: a minute ticker selects due
// jobs, applies the lateness tolerance, executes sends through the
// single-session sender and records every attempt in the history log.
//
// One Dispatcher owns the in-memory executing set, so at most one attempt
// per job is in flight even when a slow send makes ticks overlap. Jobs
// within a tick run sequentially; the sender serialises across ticks on
// its own mutex.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/clock"
	"github.com/nextlevelbuilder/pigeon/internal/notify"
	"github.com/nextlevelbuilder/pigeon/internal/schedule"
	"github.com/nextlevelbuilder/pigeon/internal/sender"
	"github.com/nextlevelbuilder/pigeon/internal/store"
	"github.com/nextlevelbuilder/pigeon/pkg/protocol"
)

// DefaultTick is the dispatch cadence. Scheduling runs on minute-aligned
// slots, so a finer tick would only re-check the same minute.
const DefaultTick = time.Minute

// Attempt summarises one finished send attempt for observers.
type Attempt struct {
	JobID       string // empty for instant sends
	HistoryID   string
	Kind        store.JobKind
	ContactName string
	Outcome     sender.Status
	Reason      string
	StartedAt   time.Time
	Duration    time.Duration
}

// AttemptObserver receives every finished attempt. Implementations must
// return quickly; the dispatcher calls them inline between jobs.
type AttemptObserver interface {
	ObserveAttempt(a Attempt)
}

// Options tune a Dispatcher. The zero value is usable.
type Options struct {
	Clock    clock.Clock     // nil means the system clock
	Notifier notify.Notifier // nil means discard events
	Observer AttemptObserver // nil means no observation
	Tick     time.Duration   // 0 means DefaultTick
}

// Dispatcher drives scheduled jobs to execution.
type Dispatcher struct {
	store    store.Store
	sender   sender.Sender
	notifier notify.Notifier
	clk      clock.Clock
	obs      AttemptObserver
	tick     time.Duration

	mu        sync.Mutex
	executing map[string]struct{}
}

// New creates a Dispatcher over the given store and sender.
func New(st store.Store, snd sender.Sender, opts Options) *Dispatcher {
	d := &Dispatcher{
		store:     st,
		sender:    snd,
		notifier:  opts.Notifier,
		clk:       opts.Clock,
		obs:       opts.Observer,
		tick:      opts.Tick,
		executing: make(map[string]struct{}),
	}
	if d.clk == nil {
		d.clk = clock.System{}
	}
	if d.notifier == nil {
		d.notifier = notify.Nop{}
	}
	if d.tick <= 0 {
		d.tick = DefaultTick
	}
	return d
}

// Run ticks until ctx is cancelled. The first tick fires immediately so
// slots missed while the process was down are handled without waiting a
// minute. No other recovery happens on startup: anchor-based recurrence
// makes stale slots either execute within tolerance or skip.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("dispatcher started", "tick", d.tick)
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	d.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopped")
			return nil
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one dispatch pass: select due jobs and execute or skip each.
// Any single job failure is logged and the pass moves on; a wedged loop
// would starve every other job.
func (d *Dispatcher) Tick(ctx context.Context) {
	if !d.sender.Ready(ctx) {
		slog.Debug("tick skipped", "kind", protocol.ErrNotReady)
		return
	}

	now := clock.Minute(d.clk.NowUTC())
	due, err := d.store.ListDue(ctx, now)
	if err != nil {
		slog.Error("due selection failed", "kind", protocol.ErrStore, "error", err)
		return
	}

	for i := range due {
		job := due[i]
		d.process(ctx, &job, now)
	}
}

// process handles one due job within a tick: tolerance check first, then
// execution. A job already executing from an earlier tick is left alone.
func (d *Dispatcher) process(ctx context.Context, job *store.Job, now time.Time) {
	if d.isExecuting(job.ID) {
		return
	}

	if job.Recurring() && job.ToleranceMinutes != nil && job.NextRun != nil {
		late := int(now.Sub(clock.Minute(*job.NextRun)) / time.Minute)
		if late > *job.ToleranceMinutes {
			if !d.skipLate(ctx, job, now, late) {
				return
			}
			// Fell through: the advanced slot is still within tolerance,
			// so this tick executes it.
		}
	}

	d.runJob(ctx, job, now)
}

// skipLate records the stale slot as skipped and advances the job. It
// reports whether the new slot should be executed in the same tick: the
// grid may have a fresher slot that is still within tolerance.
func (d *Dispatcher) skipLate(ctx context.Context, job *store.Job, now time.Time, late int) bool {
	reason := fmt.Sprintf("Late by %dm", late)
	entry := &store.HistoryEntry{
		JobID:       &job.ID,
		Kind:        job.Kind,
		ContactName: job.ContactName,
		Message:     job.Message,
		Status:      store.HistorySkipped,
		Timestamp:   d.clk.NowUTC(),
		Error:       reason,
	}
	if err := d.store.AppendHistory(ctx, entry); err != nil {
		slog.Error("skip record failed", "kind", protocol.ErrStore, "job", job.ID, "error", err)
		return false
	}

	// Catch up into the slot the grid is standing in now; when the
	// skipped slot is itself the current one, move strictly past it.
	skipped := clock.Minute(*job.NextRun)
	next := schedule.CurrentSlot(job, now)
	if !next.After(skipped) {
		next = schedule.NextSlot(job, now, false)
	}
	if err := d.store.SetJobState(ctx, job.ID, store.StatusActive, &next, nil); err != nil {
		slog.Error("skip advance failed", "kind", protocol.ErrStore, "job", job.ID, "error", err)
		return false
	}
	job.NextRun = &next

	slog.Info("slot skipped", "kind", protocol.ErrSkippedLate, "job", job.ID, "late_minutes", late, "next_run", next)
	d.notifier.Notify(notify.Skipped(job.ID, entry.ID, job.ContactName, reason))

	if !next.After(now) && int(now.Sub(next)/time.Minute) < *job.ToleranceMinutes {
		return true
	}
	return false
}

// runJob executes one attempt: history breadcrumb, synchronous send,
// outcome-specific advancement, terminal history update, notification.
func (d *Dispatcher) runJob(ctx context.Context, job *store.Job, now time.Time) {
	if !d.beginExecution(job.ID) {
		return
	}
	defer d.endExecution(job.ID)

	entry := &store.HistoryEntry{
		JobID:       &job.ID,
		Kind:        job.Kind,
		ContactName: job.ContactName,
		Message:     job.Message,
		Status:      store.HistorySending,
		Timestamp:   d.clk.NowUTC(),
	}
	if err := d.store.AppendHistory(ctx, entry); err != nil {
		slog.Error("attempt record failed", "kind", protocol.ErrStore, "job", job.ID, "error", err)
		return
	}

	started := time.Now()
	out := d.sender.Send(ctx, job.ContactName, job.Message, entry.ID)

	d.settle(ctx, job, entry.ID, now, out)

	if d.obs != nil {
		d.obs.ObserveAttempt(Attempt{
			JobID:       job.ID,
			HistoryID:   entry.ID,
			Kind:        job.Kind,
			ContactName: job.ContactName,
			Outcome:     out.Status,
			Reason:      out.Reason,
			StartedAt:   started,
			Duration:    time.Since(started),
		})
	}
}

// settle advances the job per the outcome and finalises the history row.
//
//	ok      — slot consumed; once completes, recurring advances past it
//	failed  — nothing went out; once fails, recurring keeps the current
//	          slot eligible so an on-slot failure retries on the next tick
//	unknown — the send may have landed, so the slot is consumed exactly
//	          like a success; only the history status tells them apart
func (d *Dispatcher) settle(ctx context.Context, job *store.Job, historyID string, now time.Time, out sender.Outcome) {
	var stateErr error

	switch out.Status {
	case sender.StatusOK:
		if job.Recurring() {
			next := schedule.NextSlot(job, now, true)
			stateErr = d.store.SetJobState(ctx, job.ID, store.StatusActive, &next, &now)
		} else {
			stateErr = d.store.SetJobState(ctx, job.ID, store.StatusCompleted, nil, &now)
		}
		d.finishAttempt(ctx, historyID, store.HistorySent, "")
		slog.Info("message sent", "job", job.ID, "contact", job.ContactName)
		d.notifier.Notify(notify.Sent(job.ID, historyID, job.ContactName))

	case sender.StatusFailed:
		if job.Recurring() {
			next := schedule.NextSlot(job, now, false)
			stateErr = d.store.SetJobState(ctx, job.ID, store.StatusActive, &next, nil)
		} else {
			stateErr = d.store.SetJobState(ctx, job.ID, store.StatusFailed, nil, nil)
		}
		d.finishAttempt(ctx, historyID, store.HistoryFailed, out.Reason)
		slog.Warn("send failed", "kind", protocol.ErrSendFailed, "job", job.ID, "contact", job.ContactName, "reason", out.Reason)
		d.notifier.Notify(notify.Failed(job.ID, historyID, job.ContactName, out.Reason))

	case sender.StatusUnknown:
		if job.Recurring() {
			next := schedule.NextSlot(job, now, true)
			stateErr = d.store.SetJobState(ctx, job.ID, store.StatusActive, &next, nil)
		} else {
			stateErr = d.store.SetJobState(ctx, job.ID, store.StatusCompleted, nil, nil)
		}
		d.finishAttempt(ctx, historyID, store.HistoryUnknown, out.Reason)
		slog.Warn("delivery unconfirmed", "kind", protocol.ErrSendUnknown, "job", job.ID, "contact", job.ContactName, "reason", out.Reason)
		d.notifier.Notify(notify.Unknown(job.ID, historyID, job.ContactName, out.Reason))
	}

	if stateErr != nil {
		// A job deleted mid-attempt vanishes from under us; the history
		// row was already detached by the cascade and still gets its
		// terminal status above.
		if store.IsNotFound(stateErr) {
			slog.Debug("job removed during attempt", "job", job.ID)
			return
		}
		slog.Error("job advance failed", "kind", protocol.ErrStore, "job", job.ID, "error", stateErr)
	}
}

func (d *Dispatcher) finishAttempt(ctx context.Context, id string, status store.HistoryStatus, reason string) {
	if err := d.store.FinishHistory(ctx, id, status, reason); err != nil {
		slog.Error("history update failed", "kind", protocol.ErrStore, "history", id, "error", err)
	}
}

// --- Executing set ---

// beginExecution claims the job for one attempt. Check and insert happen
// under one lock so overlapping ticks cannot both claim it.
func (d *Dispatcher) beginExecution(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.executing[id]; busy {
		return false
	}
	d.executing[id] = struct{}{}
	return true
}

func (d *Dispatcher) endExecution(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.executing, id)
}

func (d *Dispatcher) isExecuting(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, busy := d.executing[id]
	return busy
}

// ExecutingCount reports how many attempts are in flight. Exposed for
// the status endpoint.
func (d *Dispatcher) ExecutingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.executing)
}
