package jobfile

import (
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/pigeon/internal/store"
)

func TestParseDocument(t *testing.T) {
	data := []byte(`
jobs:
  - kind: recurring
    contact: Alice
    message: standup in 10
    anchor: 2025-06-01T13:00:00Z
    every: 1 day
    toleranceMinutes: 15
  - kind: once
    contact: Bob
    message: happy birthday!
    anchor: 2025-07-02T09:00:00Z
`)
	specs, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("parsed %d specs, want 2", len(specs))
	}

	first := specs[0]
	if first.Kind != store.KindRecurring || first.ContactName != "Alice" {
		t.Errorf("first = %+v", first)
	}
	if first.IntervalValue != 1 || first.IntervalUnit != store.UnitDay {
		t.Errorf("interval = %d %s", first.IntervalValue, first.IntervalUnit)
	}
	if first.ToleranceMinutes == nil || *first.ToleranceMinutes != 15 {
		t.Errorf("tolerance = %v", first.ToleranceMinutes)
	}
	if !first.AnchorTime.Equal(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)) {
		t.Errorf("anchor = %v", first.AnchorTime)
	}

	second := specs[1]
	if second.Kind != store.KindOnce || second.IntervalValue != 0 {
		t.Errorf("second = %+v", second)
	}
}

func TestParseRejectsBadEntries(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "empty document",
			doc:  "jobs: []",
			want: "no jobs",
		},
		{
			name: "recurring without every",
			doc: `
jobs:
  - kind: recurring
    contact: Alice
    message: hi
    anchor: 2025-06-01T13:00:00Z
`,
			want: "every",
		},
		{
			name: "once with every",
			doc: `
jobs:
  - kind: once
    contact: Alice
    message: hi
    anchor: 2025-06-01T13:00:00Z
    every: 1 day
`,
			want: "cannot carry",
		},
		{
			name: "missing contact",
			doc: `
jobs:
  - kind: once
    message: hi
    anchor: 2025-06-01T13:00:00Z
`,
			want: "contactName",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil {
				t.Fatal("Parse() accepted a bad document")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestParseEvery(t *testing.T) {
	cases := []struct {
		in    string
		value int
		unit  store.IntervalUnit
		ok    bool
	}{
		{"1 day", 1, store.UnitDay, true},
		{"90 minutes", 90, store.UnitMinute, true},
		{"2 Hours", 2, store.UnitHour, true},
		{" 3 weeks ", 3, store.UnitWeek, true},
		{"1 month", 1, store.UnitMonth, true},
		{"day", 0, "", false},
		{"0 days", 0, "", false},
		{"-1 hour", 0, "", false},
		{"2 fortnights", 0, "", false},
	}

	for _, tc := range cases {
		value, unit, err := ParseEvery(tc.in)
		if tc.ok != (err == nil) {
			t.Errorf("ParseEvery(%q) error = %v", tc.in, err)
			continue
		}
		if tc.ok && (value != tc.value || unit != tc.unit) {
			t.Errorf("ParseEvery(%q) = %d %s, want %d %s", tc.in, value, unit, tc.value, tc.unit)
		}
	}
}

func TestFormatEvery(t *testing.T) {
	if got := FormatEvery(1, store.UnitDay); got != "1 day" {
		t.Errorf("FormatEvery(1, day) = %q", got)
	}
	if got := FormatEvery(3, store.UnitHour); got != "3 hours" {
		t.Errorf("FormatEvery(3, hour) = %q", got)
	}
}
