package sqlite

import "time"

// Instants are stored as integer Unix milliseconds, always UTC.

func msFromTime(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func timeFromMS(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func msFromTimePtr(t *time.Time) *int64 {
	if t == nil || t.IsZero() {
		return nil
	}
	ms := t.UTC().UnixMilli()
	return &ms
}

func timeFromMSPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
