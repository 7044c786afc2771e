// Package store defines the persistent model and the narrow interfaces the
// dispatcher and the API speak to. Implementations live in subpackages.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err is the missing-row error, however
// deeply wrapped.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// JobStore manages scheduled jobs. Every call is a single atomic
// transaction against the underlying engine.
type JobStore interface {
	// CreateJob persists a fully populated job. An empty ID or zero
	// CreatedAt is stamped by the store.
	CreateJob(ctx context.Context, job *Job) error

	GetJob(ctx context.Context, id string) (*Job, error)

	// ListJobs returns all jobs in reverse creation order.
	ListJobs(ctx context.Context) ([]Job, error)

	// ListDue returns active jobs whose current slot has been reached:
	// once jobs with anchorTime <= now, recurring jobs with nextRun <= now.
	// Order is unspecified.
	ListDue(ctx context.Context, now time.Time) ([]Job, error)

	// UpdateJob rewrites the mutable fields of an existing job in one
	// transaction. The caller is responsible for having re-derived
	// schedule fields; the store validates nothing beyond existence.
	UpdateJob(ctx context.Context, job *Job) error

	// SetJobState atomically writes status, nextRun and lastRun. A nil
	// nextRun clears the column; a nil lastRun leaves it untouched.
	SetJobState(ctx context.Context, id string, status JobStatus, nextRun, lastRun *time.Time) error

	// DeleteJob removes a job and cascades to its history rows.
	DeleteJob(ctx context.Context, id string) error
}

// HistoryStore manages the append-only attempt log.
type HistoryStore interface {
	// AppendHistory inserts an attempt record. An empty ID is stamped.
	// The entry may be born terminal (skips never invoke the sender).
	AppendHistory(ctx context.Context, entry *HistoryEntry) error

	// FinishHistory moves a sending row to a terminal status exactly once.
	// Finishing a row that is not in the sending state is an error.
	FinishHistory(ctx context.Context, id string, status HistoryStatus, reason string) error

	// ListHistory returns attempts newest first, narrowed by the filter.
	ListHistory(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error)
}

// SettingsStore is a small key/value bag for user configuration that lives
// with the data (timezone label, feature flags).
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) (map[string]string, error)
}

// Store aggregates the three stores over one database handle.
type Store interface {
	JobStore
	HistoryStore
	SettingsStore

	Close() error
}

// Setting keys with meaning to the system itself.
const (
	// SettingTimezone holds an IANA zone name used for display formatting.
	// Scheduling math stays in UTC regardless.
	SettingTimezone = "timezone"
)
