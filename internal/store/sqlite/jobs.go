package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/clock"
	"github.com/nextlevelbuilder/pigeon/internal/store"
)

type jobRow struct {
	ID               string  `db:"id"`
	Kind             string  `db:"kind"`
	ContactName      string  `db:"contact_name"`
	Message          string  `db:"message"`
	AnchorTimeMS     int64   `db:"anchor_time"`
	IntervalValue    *int    `db:"interval_value"`
	IntervalUnit     *string `db:"interval_unit"`
	ToleranceMinutes *int    `db:"tolerance_minutes"`
	Status           string  `db:"status"`
	NextRunMS        *int64  `db:"next_run"`
	LastRunMS        *int64  `db:"last_run"`
	CreatedAtMS      int64   `db:"created_at"`
}

func jobToRow(j *store.Job) *jobRow {
	return &jobRow{
		ID:               j.ID,
		Kind:             string(j.Kind),
		ContactName:      j.ContactName,
		Message:          j.Message,
		AnchorTimeMS:     msFromTime(j.AnchorTime),
		IntervalValue:    nilInt(j.IntervalValue),
		IntervalUnit:     nilStr(string(j.IntervalUnit)),
		ToleranceMinutes: j.ToleranceMinutes,
		Status:           string(j.Status),
		NextRunMS:        msFromTimePtr(j.NextRun),
		LastRunMS:        msFromTimePtr(j.LastRun),
		CreatedAtMS:      msFromTime(j.CreatedAt),
	}
}

func rowToJob(r *jobRow) *store.Job {
	return &store.Job{
		ID:               r.ID,
		Kind:             store.JobKind(r.Kind),
		ContactName:      r.ContactName,
		Message:          r.Message,
		AnchorTime:       timeFromMS(r.AnchorTimeMS),
		IntervalValue:    derefInt(r.IntervalValue),
		IntervalUnit:     store.IntervalUnit(derefStr(r.IntervalUnit)),
		ToleranceMinutes: r.ToleranceMinutes,
		Status:           store.JobStatus(r.Status),
		NextRun:          timeFromMSPtr(r.NextRunMS),
		LastRun:          timeFromMSPtr(r.LastRunMS),
		CreatedAt:        timeFromMS(r.CreatedAtMS),
	}
}

const jobColumns = `id, kind, contact_name, message, anchor_time, interval_value, interval_unit, tolerance_minutes, status, next_run, last_run, created_at`

// CreateJob persists a new job, stamping ID and CreatedAt when empty.
func (s *Store) CreateJob(ctx context.Context, job *store.Job) error {
	if job.ID == "" {
		job.ID = store.NewID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (:id, :kind, :contact_name, :message, :anchor_time, :interval_value, :interval_unit, :tolerance_minutes, :status, :next_run, :last_run, :created_at)`,
		jobToRow(job))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns the job with the given id, or store.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*store.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return rowToJob(&row), nil
}

// ListJobs returns all jobs, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]store.Job, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]store.Job, len(rows))
	for i := range rows {
		jobs[i] = *rowToJob(&rows[i])
	}
	return jobs, nil
}

// ListDue returns active jobs whose current slot time has been reached:
// once jobs by anchor, recurring jobs by nextRun. Comparison happens on
// the minute-truncated now.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]store.Job, error) {
	nowMS := msFromTime(clock.Minute(now))

	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = ?
		  AND ((kind = ? AND anchor_time <= ?)
		    OR (kind = ? AND next_run IS NOT NULL AND next_run <= ?))`,
		string(store.StatusActive), string(store.KindOnce), nowMS, string(store.KindRecurring), nowMS)
	if err != nil {
		return nil, fmt.Errorf("list due: %w", err)
	}
	jobs := make([]store.Job, len(rows))
	for i := range rows {
		jobs[i] = *rowToJob(&rows[i])
	}
	return jobs, nil
}

// UpdateJob rewrites all mutable fields of an existing job.
func (s *Store) UpdateJob(ctx context.Context, job *store.Job) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE jobs SET
			kind = :kind,
			contact_name = :contact_name,
			message = :message,
			anchor_time = :anchor_time,
			interval_value = :interval_value,
			interval_unit = :interval_unit,
			tolerance_minutes = :tolerance_minutes,
			status = :status,
			next_run = :next_run,
			last_run = :last_run
		WHERE id = :id`,
		jobToRow(job))
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return requireRow(res, "update job")
}

// SetJobState atomically writes status, nextRun and lastRun. A nil
// nextRun clears the column; a nil lastRun leaves the stored value alone.
func (s *Store) SetJobState(ctx context.Context, id string, status store.JobStatus, nextRun, lastRun *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, next_run = ?, last_run = COALESCE(?, last_run)
		WHERE id = ?`,
		string(status), msFromTimePtr(nextRun), msFromTimePtr(lastRun), id)
	if err != nil {
		return fmt.Errorf("set job state: %w", err)
	}
	return requireRow(res, "set job state")
}

// DeleteJob removes a job and its history in one transaction. Attempts
// still marked sending are detached instead of deleted so the in-flight
// attempt can finish its row.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE job_id = ? AND status != ?`, id, string(store.HistorySending)); err != nil {
		return fmt.Errorf("delete job history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE history SET job_id = NULL WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("detach in-flight history: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if err := requireRow(res, "delete job"); err != nil {
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
