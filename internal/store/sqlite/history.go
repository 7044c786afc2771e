package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/store"
)

type historyRow struct {
	ID          string  `db:"id"`
	JobID       *string `db:"job_id"`
	Kind        string  `db:"kind"`
	ContactName string  `db:"contact_name"`
	Message     string  `db:"message"`
	Status      string  `db:"status"`
	TimestampMS int64   `db:"timestamp"`
	Error       string  `db:"error"`
}

func rowToHistory(r *historyRow) *store.HistoryEntry {
	return &store.HistoryEntry{
		ID:          r.ID,
		JobID:       r.JobID,
		Kind:        store.JobKind(r.Kind),
		ContactName: r.ContactName,
		Message:     r.Message,
		Status:      store.HistoryStatus(r.Status),
		Timestamp:   timeFromMS(r.TimestampMS),
		Error:       r.Error,
	}
}

const historyColumns = `id, job_id, kind, contact_name, message, status, timestamp, error`

// AppendHistory inserts an attempt record, stamping ID and Timestamp
// when empty.
func (s *Store) AppendHistory(ctx context.Context, entry *store.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = store.NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.JobID, string(entry.Kind), entry.ContactName, entry.Message,
		string(entry.Status), msFromTime(entry.Timestamp), entry.Error)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// FinishHistory moves a sending row to a terminal status. Each row is
// finished at most once; a second call is an error.
func (s *Store) FinishHistory(ctx context.Context, id string, status store.HistoryStatus, reason string) error {
	if !status.IsValid() || !status.Terminal() {
		return fmt.Errorf("finish history: %q is not a terminal status", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE history SET status = ?, error = ?
		WHERE id = ? AND status = ?`,
		string(status), reason, id, string(store.HistorySending))
	if err != nil {
		return fmt.Errorf("finish history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish history: %w", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.GetContext(ctx, &current, `SELECT status FROM history WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("finish history: %w", err)
	}
	return fmt.Errorf("history %s already finished as %s", id, current)
}

// ListHistory returns attempts newest first, narrowed by the filter.
func (s *Store) ListHistory(ctx context.Context, filter store.HistoryFilter) ([]store.HistoryEntry, error) {
	q := `SELECT ` + historyColumns + ` FROM history`
	var conds []string
	var args []any

	if filter.JobID != "" {
		conds = append(conds, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	// rowid breaks same-millisecond ties by insertion order; the random
	// UUID id column cannot.
	q += " ORDER BY timestamp DESC, rowid DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	entries := make([]store.HistoryEntry, len(rows))
	for i := range rows {
		entries[i] = *rowToHistory(&rows[i])
	}
	return entries, nil
}
