package testfixtures

import (
	"sync"
	"time"

	"github.com/example/class-booking/internal/recurrence"
)

// Clock is a controllable time source that also knows the business zone, so
// tests can place "now" on a given local calendar day.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	loc     *time.Location
}

// NewClock returns a clock set to start in Europe/Madrid. A zero start uses
// ReferenceTime.
func NewClock(start time.Time) *Clock {
	return NewClockIn(start, nil)
}

// NewClockIn returns a clock whose local days are computed in loc.
func NewClockIn(start time.Time, loc *time.Location) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	if loc == nil {
		loc = recurrence.LoadLocation(recurrence.DefaultTimeZone)
	}
	return &Clock{current: start, loc: loc}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for injection into services.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Current is Now without the suggestion that time moves.
func (c *Clock) Current() time.Time {
	return c.Now()
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// SetLocal moves the clock to the given wall time in the business zone.
func (c *Clock) SetLocal(year int, month time.Month, day, hour, minute int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = time.Date(year, month, day, hour, minute, 0, 0, c.loc)
	return c.current
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// AdvanceDays moves to the same wall time n local days later. Across a DST
// change this is not a multiple of 24h.
func (c *Clock) AdvanceDays(n int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.In(c.loc).AddDate(0, 0, n)
	return c.current
}

// LocalAt returns hour:minute on the clock's local day shifted by dayOffset.
func (c *Clock) LocalAt(dayOffset, hour, minute int) time.Time {
	local := c.Now().In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day()+dayOffset, hour, minute, 0, 0, c.loc)
}
