// Package clock abstracts wall-clock time so scheduling decisions can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current instant. Implementations return UTC.
type Clock interface {
	NowUTC() time.Time
}

// System reads the machine clock.
type System struct{}

func (System) NowUTC() time.Time { return time.Now().UTC() }

// Minute truncates t to the start of its minute in UTC. Scheduling
// comparisons run on minute-truncated instants so "this slot" and "now"
// can be compared for equality.
func Minute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// Location resolves an IANA zone name used for display formatting.
// Empty means UTC. Scheduling math never depends on the zone.
func Location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Fake is a manually advanced Clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake pinned to t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

func (f *Fake) NowUTC() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set pins the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
