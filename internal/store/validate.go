package store

import (
	"errors"
	"fmt"
	"strings"
)

// Field length bounds, matching the schema constraints.
const (
	MaxContactNameLen = 256
	MaxMessageLen     = 64 * 1024
)

// ValidationError describes input the caller can correct. The API maps
// it to a 400 where store failures become 500s.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// IsValidation reports whether err is a ValidationError, however
// deeply wrapped.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Invalidf builds a ValidationError.
func Invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ValidateSpec checks a creation request. Instant sends share the contact
// and message rules but carry no schedule, so they are validated with
// ValidateInstant instead.
func ValidateSpec(spec JobSpec) error {
	if !spec.Kind.IsValid() {
		return Invalidf("kind must be %q or %q, got %q", KindOnce, KindRecurring, spec.Kind)
	}
	if err := validateContact(spec.ContactName); err != nil {
		return err
	}
	if err := validateMessage(spec.Message); err != nil {
		return err
	}
	if spec.AnchorTime.IsZero() {
		return Invalidf("anchorTime is required")
	}
	if spec.ToleranceMinutes != nil && *spec.ToleranceMinutes < 0 {
		return Invalidf("toleranceMinutes must be >= 0, got %d", *spec.ToleranceMinutes)
	}

	switch spec.Kind {
	case KindRecurring:
		if spec.IntervalValue < 1 {
			return Invalidf("intervalValue must be >= 1 for recurring jobs, got %d", spec.IntervalValue)
		}
		if !spec.IntervalUnit.IsValid() {
			return Invalidf("intervalUnit must be one of minute, hour, day, week, month; got %q", spec.IntervalUnit)
		}
	case KindOnce:
		if spec.IntervalValue != 0 || spec.IntervalUnit != "" {
			return Invalidf("interval fields are not allowed for once jobs")
		}
	}
	return nil
}

// ValidateInstant checks the inputs of a direct send.
func ValidateInstant(contactName, message string) error {
	if err := validateContact(contactName); err != nil {
		return err
	}
	return validateMessage(message)
}

// ValidateJob checks the invariants of a full job row. Used after applying
// a patch, so an edit can never persist an inconsistent job.
func ValidateJob(j *Job) error {
	spec := JobSpec{
		Kind:             j.Kind,
		ContactName:      j.ContactName,
		Message:          j.Message,
		AnchorTime:       j.AnchorTime,
		IntervalValue:    j.IntervalValue,
		IntervalUnit:     j.IntervalUnit,
		ToleranceMinutes: j.ToleranceMinutes,
	}
	if err := ValidateSpec(spec); err != nil {
		return err
	}
	if !j.Status.IsValid() {
		return Invalidf("unknown status %q", j.Status)
	}
	if j.Status == StatusPaused && j.NextRun != nil {
		return Invalidf("paused jobs must not carry a nextRun")
	}
	return nil
}

func validateContact(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Invalidf("contactName is required")
	}
	if len(trimmed) > MaxContactNameLen {
		return Invalidf("contactName too long: %d bytes (max %d)", len(trimmed), MaxContactNameLen)
	}
	return nil
}

func validateMessage(message string) error {
	if message == "" {
		return Invalidf("message is required")
	}
	if len(message) > MaxMessageLen {
		return Invalidf("message too long: %d bytes (max %d)", len(message), MaxMessageLen)
	}
	return nil
}
