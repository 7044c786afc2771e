package store

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh opaque identifier. Used for jobs and history rows;
// history ids double as sender correlation ids.
func NewID() string {
	return uuid.NewString()
}

// JobKind distinguishes one-shot jobs from recurring ones.
type JobKind string

const (
	KindOnce      JobKind = "once"
	KindRecurring JobKind = "recurring"

	// KindInstant labels history rows for direct sends that never persist
	// a Job. It is not a valid kind for stored jobs.
	KindInstant JobKind = "instant"
)

// IsValid reports whether k is a storable job kind.
func (k JobKind) IsValid() bool {
	return k == KindOnce || k == KindRecurring
}

// IntervalUnit is the unit of a recurring job's interval.
type IntervalUnit string

const (
	UnitMinute IntervalUnit = "minute"
	UnitHour   IntervalUnit = "hour"
	UnitDay    IntervalUnit = "day"
	UnitWeek   IntervalUnit = "week"
	UnitMonth  IntervalUnit = "month"
)

// IsValid reports whether u is a known unit.
func (u IntervalUnit) IsValid() bool {
	switch u {
	case UnitMinute, UnitHour, UnitDay, UnitWeek, UnitMonth:
		return true
	}
	return false
}

// FixedDuration returns the unit's length for the fixed-duration units.
// Months have no fixed length and return false; callers must use calendar
// arithmetic instead.
func (u IntervalUnit) FixedDuration() (time.Duration, bool) {
	switch u {
	case UnitMinute:
		return time.Minute, true
	case UnitHour:
		return time.Hour, true
	case UnitDay:
		return 24 * time.Hour, true
	case UnitWeek:
		return 7 * 24 * time.Hour, true
	}
	return 0, false
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending" // reserved; unused in the standard flow
	StatusActive    JobStatus = "active"
	StatusPaused    JobStatus = "paused"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled" // reserved; delete removes jobs outright
)

// IsValid reports whether s is a known status.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the dispatcher ignores jobs in this status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is a message scheduled to be sent once or repeatedly.
// All instants are UTC and minute-aligned.
type Job struct {
	ID          string  `json:"id"`
	Kind        JobKind `json:"kind"`
	ContactName string  `json:"contactName"`
	Message     string  `json:"message"`

	// AnchorTime is the single scheduled instant for once jobs, and the
	// fixed reference point all slots derive from for recurring jobs.
	AnchorTime time.Time `json:"anchorTime"`

	// IntervalValue and IntervalUnit define the recurring cadence.
	// Zero/empty for once jobs.
	IntervalValue int          `json:"intervalValue,omitempty"`
	IntervalUnit  IntervalUnit `json:"intervalUnit,omitempty"`

	// ToleranceMinutes bounds how late a recurring slot may run before it
	// is skipped. Nil means no bound; zero is a valid strict bound.
	ToleranceMinutes *int `json:"toleranceMinutes,omitempty"`

	Status JobStatus `json:"status"`

	// NextRun is the next instant the dispatcher will consider. Absent
	// while paused and after the job reaches a terminal status.
	NextRun *time.Time `json:"nextRun,omitempty"`

	// LastRun is the start time of the last successful attempt.
	LastRun *time.Time `json:"lastRun,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Recurring reports whether the job carries a cadence.
func (j *Job) Recurring() bool {
	return j.Kind == KindRecurring
}

// HistoryStatus is the state of an execution attempt.
type HistoryStatus string

const (
	HistorySending HistoryStatus = "sending" // transient: attempt started
	HistorySent    HistoryStatus = "sent"
	HistoryFailed  HistoryStatus = "failed"
	HistoryUnknown HistoryStatus = "unknown"
	HistorySkipped HistoryStatus = "skipped"
)

// Terminal reports whether s is a final attempt state.
func (s HistoryStatus) Terminal() bool {
	return s != HistorySending && s != ""
}

// IsValid reports whether s is a known history status.
func (s HistoryStatus) IsValid() bool {
	switch s {
	case HistorySending, HistorySent, HistoryFailed, HistoryUnknown, HistorySkipped:
		return true
	}
	return false
}

// HistoryEntry is an append-only record of one execution attempt. Contact
// and message are snapshots taken when the attempt started; a later edit
// or delete of the job does not rewrite them.
type HistoryEntry struct {
	ID string `json:"id"`

	// JobID is nil for instant sends not backed by a stored job, and
	// becomes nil when the owning job is deleted mid-attempt.
	JobID *string `json:"jobId,omitempty"`

	Kind        JobKind       `json:"kind"`
	ContactName string        `json:"contactName"`
	Message     string        `json:"message"`
	Status      HistoryStatus `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
	Error       string        `json:"error,omitempty"`
}

// HistoryFilter narrows ListHistory results. Zero values mean "any".
type HistoryFilter struct {
	JobID  string
	Status HistoryStatus
	Limit  int
}

// JobSpec is the validated input for creating a job.
type JobSpec struct {
	Kind             JobKind      `json:"kind"`
	ContactName      string       `json:"contactName"`
	Message          string       `json:"message"`
	AnchorTime       time.Time    `json:"anchorTime"`
	IntervalValue    int          `json:"intervalValue,omitempty"`
	IntervalUnit     IntervalUnit `json:"intervalUnit,omitempty"`
	ToleranceMinutes *int         `json:"toleranceMinutes,omitempty"`
}

// JobPatch holds optional fields for a partial job update. Nil means
// "leave unchanged".
type JobPatch struct {
	Kind             *JobKind      `json:"kind,omitempty"`
	ContactName      *string       `json:"contactName,omitempty"`
	Message          *string       `json:"message,omitempty"`
	AnchorTime       *time.Time    `json:"anchorTime,omitempty"`
	IntervalValue    *int          `json:"intervalValue,omitempty"`
	IntervalUnit     *IntervalUnit `json:"intervalUnit,omitempty"`
	ToleranceMinutes *int          `json:"toleranceMinutes,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p JobPatch) Empty() bool {
	return p.Kind == nil && p.ContactName == nil && p.Message == nil &&
		p.AnchorTime == nil && p.IntervalValue == nil && p.IntervalUnit == nil &&
		p.ToleranceMinutes == nil
}
