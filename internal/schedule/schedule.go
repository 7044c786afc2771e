// Package schedule computes the slot grid of recurring jobs.
//
// Every slot derives from the job's fixed anchor, never from its last
// run: for fixed-length units slot(k) = anchor + k*interval, and for
// months the grid is built by stepping calendar months with end-of-month
// clamping. Anchoring keeps the cadence stable across pauses, restarts
// and late executions.
package schedule

import (
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/clock"
	"github.com/nextlevelbuilder/pigeon/internal/store"
)

// NextSlot returns the next slot of job at or after from.
//
// afterRun marks that the slot equal to from was just consumed by an
// attempt, so the result moves strictly past it. With afterRun false a
// slot exactly equal to from is still current and is returned as-is,
// which is what lets a late dispatcher catch up into the slot it is
// standing on.
//
// For once jobs the anchor is the only slot. Inputs are truncated to
// the minute; the result is always minute-aligned UTC.
func NextSlot(job *store.Job, from time.Time, afterRun bool) time.Time {
	anchor := clock.Minute(job.AnchorTime)
	if !job.Recurring() {
		return anchor
	}
	now := clock.Minute(from)
	every := intervalValue(job)

	if d, fixed := job.IntervalUnit.FixedDuration(); fixed {
		return nextFixed(anchor, time.Duration(every)*d, now, afterRun)
	}
	return nextMonthly(anchor, every, now, afterRun)
}

// CurrentSlot returns the latest slot of job at or before from, or the
// anchor when from still precedes it. This is the slot the grid is
// "standing in" at the given instant; a dispatcher that skipped a stale
// slot catches up into it before falling back to the future.
func CurrentSlot(job *store.Job, from time.Time) time.Time {
	anchor := clock.Minute(job.AnchorTime)
	if !job.Recurring() {
		return anchor
	}
	now := clock.Minute(from)
	if now.Before(anchor) {
		return anchor
	}
	every := intervalValue(job)

	if d, fixed := job.IntervalUnit.FixedDuration(); fixed {
		interval := time.Duration(every) * d
		k := int64(now.Sub(anchor) / interval)
		return anchor.Add(time.Duration(k) * interval)
	}

	slot := anchor
	for {
		next := addMonths(slot, every)
		if next.After(now) {
			return slot
		}
		slot = next
	}
}

// intervalValue clamps the job's interval to at least one step. Store
// validation rejects smaller values; the clamp keeps a malformed row
// from dividing by zero or stalling the month walk.
func intervalValue(job *store.Job) int {
	if job.IntervalValue < 1 {
		return 1
	}
	return job.IntervalValue
}

func nextFixed(anchor time.Time, interval time.Duration, now time.Time, afterRun bool) time.Time {
	if now.Before(anchor) {
		return anchor
	}
	k := int64(now.Sub(anchor) / interval)
	current := anchor.Add(time.Duration(k) * interval)
	if current.Equal(now) && !afterRun {
		return current
	}
	return anchor.Add(time.Duration(k+1) * interval)
}

// nextMonthly walks the month grid upward from the anchor. Each step
// starts from the previous slot, so an anchor on the 31st that clamps to
// Feb 28 stays on the 28th from then on.
func nextMonthly(anchor time.Time, every int, now time.Time, afterRun bool) time.Time {
	slot := anchor
	for slot.Before(now) {
		slot = addMonths(slot, every)
	}
	if slot.Equal(now) && !afterRun {
		return slot
	}
	if slot.Equal(now) {
		return addMonths(slot, every)
	}
	return slot
}

// addMonths advances t by whole calendar months, clamping the day to the
// target month's length. AddDate normalises overflow (Jan 31 plus one
// month lands in March) and cannot be used here.
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	m := int(month-1) + months
	year += m / 12
	month = time.Month(m%12 + 1)
	if last := lastDay(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), 0, 0, time.UTC)
}

// lastDay returns the number of days in the month. Day zero of the next
// month is the last day of this one.
func lastDay(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
