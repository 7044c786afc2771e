package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/clock"
	"github.com/nextlevelbuilder/pigeon/internal/notify"
	"github.com/nextlevelbuilder/pigeon/internal/schedule"
	"github.com/nextlevelbuilder/pigeon/internal/sender"
	"github.com/nextlevelbuilder/pigeon/internal/store"
)

// ErrSenderNotReady rejects an instant send while the sender cannot
// deliver. The API maps it to 503.
var ErrSenderNotReady = errors.New("sender not ready")

// CreateJob validates spec and persists a new active job.
//
// Both kinds are born active regardless of the anchor being past or
// future: a once job with a past anchor runs on the next tick, and a
// recurring job starts on the next slot of its anchor grid without
// resurrecting slots that elapsed before it existed.
func (d *Dispatcher) CreateJob(ctx context.Context, spec store.JobSpec) (*store.Job, error) {
	spec.ContactName = strings.TrimSpace(spec.ContactName)
	if err := store.ValidateSpec(spec); err != nil {
		return nil, err
	}

	job := &store.Job{
		Kind:             spec.Kind,
		ContactName:      spec.ContactName,
		Message:          spec.Message,
		AnchorTime:       clock.Minute(spec.AnchorTime),
		IntervalValue:    spec.IntervalValue,
		IntervalUnit:     spec.IntervalUnit,
		ToleranceMinutes: spec.ToleranceMinutes,
		Status:           store.StatusActive,
	}
	next := d.rearm(job)
	job.NextRun = &next

	if err := d.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	slog.Info("job created", "job", job.ID, "kind", job.Kind, "contact", job.ContactName, "next_run", next)
	return job, nil
}

// GetJob returns one job.
func (d *Dispatcher) GetJob(ctx context.Context, id string) (*store.Job, error) {
	return d.store.GetJob(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (d *Dispatcher) ListJobs(ctx context.Context) ([]store.Job, error) {
	return d.store.ListJobs(ctx)
}

// UpdateJob applies a partial edit. Editing the anchor, the interval or
// the kind re-derives nextRun from the (new) anchor; other edits leave
// the cadence untouched. A kind change to once drops the interval and
// tolerance fields.
func (d *Dispatcher) UpdateJob(ctx context.Context, id string, patch store.JobPatch) (*store.Job, error) {
	job, err := d.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return job, nil
	}

	cadence := patch.Kind != nil || patch.AnchorTime != nil ||
		patch.IntervalValue != nil || patch.IntervalUnit != nil

	if patch.Kind != nil && *patch.Kind != job.Kind {
		job.Kind = *patch.Kind
		if job.Kind == store.KindOnce {
			job.IntervalValue = 0
			job.IntervalUnit = ""
			job.ToleranceMinutes = nil
		}
	}
	if patch.ContactName != nil {
		job.ContactName = strings.TrimSpace(*patch.ContactName)
	}
	if patch.Message != nil {
		job.Message = *patch.Message
	}
	if patch.AnchorTime != nil {
		job.AnchorTime = clock.Minute(*patch.AnchorTime)
	}
	if patch.IntervalValue != nil {
		job.IntervalValue = *patch.IntervalValue
	}
	if patch.IntervalUnit != nil {
		job.IntervalUnit = *patch.IntervalUnit
	}
	if patch.ToleranceMinutes != nil {
		job.ToleranceMinutes = patch.ToleranceMinutes
	}

	if job.Status == store.StatusPaused || job.Status.Terminal() {
		job.NextRun = nil
	}

	// Validation must precede re-arming: the slot grid assumes a sane
	// interval, and a patch like kind=recurring without one would send
	// NextSlot walking a degenerate grid.
	if err := store.ValidateJob(job); err != nil {
		return nil, err
	}
	if cadence && job.Status == store.StatusActive {
		next := d.rearm(job)
		job.NextRun = &next
	}

	if err := d.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	slog.Info("job updated", "job", job.ID, "kind", job.Kind)
	return job, nil
}

// SetJobStatus pauses or resumes a job. Pausing clears nextRun; resuming
// recomputes it from the anchor grid, so a long pause lands on the next
// future slot of the original cadence. Setting the current status again
// is a no-op; terminal jobs cannot move.
func (d *Dispatcher) SetJobStatus(ctx context.Context, id string, status store.JobStatus) (*store.Job, error) {
	if status != store.StatusActive && status != store.StatusPaused {
		return nil, store.Invalidf("status must be %q or %q, got %q", store.StatusActive, store.StatusPaused, status)
	}

	job, err := d.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == status {
		return job, nil
	}
	if job.Status.Terminal() {
		return nil, store.Invalidf("job is %s and cannot be %s", job.Status, status)
	}

	switch status {
	case store.StatusPaused:
		if err := d.store.SetJobState(ctx, id, store.StatusPaused, nil, nil); err != nil {
			return nil, fmt.Errorf("pause job: %w", err)
		}
		job.Status = store.StatusPaused
		job.NextRun = nil
		slog.Info("job paused", "job", id)

	case store.StatusActive:
		next := schedule.NextSlot(job, clock.Minute(d.clk.NowUTC()), false)
		if err := d.store.SetJobState(ctx, id, store.StatusActive, &next, nil); err != nil {
			return nil, fmt.Errorf("resume job: %w", err)
		}
		job.Status = store.StatusActive
		job.NextRun = &next
		slog.Info("job resumed", "job", id, "next_run", next)
	}
	return job, nil
}

// DeleteJob removes a job and its history. An attempt already in flight
// finishes and writes its (detached) history row; only future slots die
// with the job.
func (d *Dispatcher) DeleteJob(ctx context.Context, id string) error {
	if err := d.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	slog.Info("job deleted", "job", id)
	return nil
}

// ListHistory returns attempt records, newest first.
func (d *Dispatcher) ListHistory(ctx context.Context, filter store.HistoryFilter) ([]store.HistoryEntry, error) {
	return d.store.ListHistory(ctx, filter)
}

// SendInstant delivers one message immediately without persisting a job.
// It bypasses due-selection entirely; only the sender's own mutex
// serialises it against scheduled sends. The returned entry carries the
// terminal status of the attempt.
func (d *Dispatcher) SendInstant(ctx context.Context, contactName, message string) (*store.HistoryEntry, error) {
	contactName = strings.TrimSpace(contactName)
	if err := store.ValidateInstant(contactName, message); err != nil {
		return nil, err
	}
	if !d.sender.Ready(ctx) {
		return nil, ErrSenderNotReady
	}

	entry := &store.HistoryEntry{
		Kind:        store.KindInstant,
		ContactName: contactName,
		Message:     message,
		Status:      store.HistorySending,
		Timestamp:   d.clk.NowUTC(),
	}
	if err := d.store.AppendHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("record instant send: %w", err)
	}

	started := time.Now()
	out := d.sender.Send(ctx, contactName, message, entry.ID)

	var status store.HistoryStatus
	switch out.Status {
	case sender.StatusOK:
		status = store.HistorySent
		d.notifier.Notify(notify.Sent("", entry.ID, contactName))
	case sender.StatusFailed:
		status = store.HistoryFailed
		d.notifier.Notify(notify.Failed("", entry.ID, contactName, out.Reason))
	case sender.StatusUnknown:
		status = store.HistoryUnknown
		d.notifier.Notify(notify.Unknown("", entry.ID, contactName, out.Reason))
	}
	d.finishAttempt(ctx, entry.ID, status, out.Reason)
	entry.Status = status
	entry.Error = out.Reason

	if d.obs != nil {
		d.obs.ObserveAttempt(Attempt{
			HistoryID:   entry.ID,
			Kind:        store.KindInstant,
			ContactName: contactName,
			Outcome:     out.Status,
			Reason:      out.Reason,
			StartedAt:   started,
			Duration:    time.Since(started),
		})
	}
	slog.Info("instant send finished", "history", entry.ID, "contact", contactName, "outcome", out.Status)
	return entry, nil
}

// rearm computes the nextRun for a job whose cadence just changed (or
// was just created). Once jobs sit on their anchor; recurring jobs take
// the next slot of the anchor grid, which is the anchor itself while it
// is still in the future.
func (d *Dispatcher) rearm(job *store.Job) time.Time {
	if !job.Recurring() {
		return job.AnchorTime
	}
	return schedule.NextSlot(job, clock.Minute(d.clk.NowUTC()), false)
}
