// Package jobfile parses declarative YAML job documents, the input of
// `pigeon jobs apply -f`. A document declares the desired jobs; the CLI
// creates them one by one through the daemon API.
package jobfile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/pigeon/internal/store"
)

// Document is the top-level YAML shape.
type Document struct {
	Jobs []Entry `yaml:"jobs"`
}

// Entry is one declared job. Cadence is written as a human string
// ("every: 2 hours") instead of the split value/unit pair the API uses.
type Entry struct {
	Kind      string    `yaml:"kind"`
	Contact   string    `yaml:"contact"`
	Message   string    `yaml:"message"`
	Anchor    time.Time `yaml:"anchor"`
	Every     string    `yaml:"every,omitempty"`
	Tolerance *int      `yaml:"toleranceMinutes,omitempty"`
}

// Parse decodes a YAML document and converts every entry into a
// validated JobSpec. The first invalid entry fails the whole document,
// so a partial apply never happens on a bad file.
func Parse(data []byte) ([]store.JobSpec, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}
	if len(doc.Jobs) == 0 {
		return nil, fmt.Errorf("job file declares no jobs")
	}

	specs := make([]store.JobSpec, 0, len(doc.Jobs))
	for i, entry := range doc.Jobs {
		spec, err := entry.spec()
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i+1, err)
		}
		if err := store.ValidateSpec(spec); err != nil {
			return nil, fmt.Errorf("job %d: %w", i+1, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (e Entry) spec() (store.JobSpec, error) {
	spec := store.JobSpec{
		Kind:             store.JobKind(e.Kind),
		ContactName:      e.Contact,
		Message:          e.Message,
		AnchorTime:       e.Anchor,
		ToleranceMinutes: e.Tolerance,
	}

	switch spec.Kind {
	case store.KindRecurring:
		if e.Every == "" {
			return spec, fmt.Errorf("recurring jobs need an every field")
		}
		value, unit, err := ParseEvery(e.Every)
		if err != nil {
			return spec, err
		}
		spec.IntervalValue = value
		spec.IntervalUnit = unit
	case store.KindOnce:
		if e.Every != "" {
			return spec, fmt.Errorf("once jobs cannot carry an every field")
		}
	}
	return spec, nil
}

// ParseEvery splits a cadence string like "1 day" or "90 minutes" into
// the interval pair. The unit accepts the plural form.
func ParseEvery(s string) (int, store.IntervalUnit, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) != 2 {
		return 0, "", fmt.Errorf("every must look like %q, got %q", "2 hours", s)
	}

	value, err := strconv.Atoi(fields[0])
	if err != nil || value < 1 {
		return 0, "", fmt.Errorf("every needs a positive count, got %q", fields[0])
	}

	unit := store.IntervalUnit(strings.TrimSuffix(fields[1], "s"))
	if !unit.IsValid() {
		return 0, "", fmt.Errorf("unknown interval unit %q", fields[1])
	}
	return value, unit, nil
}

// FormatEvery renders the interval pair back into the cadence string.
func FormatEvery(value int, unit store.IntervalUnit) string {
	if value == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", value, unit)
}
