package recurrence

import (
	"errors"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultTimeZone is the reference zone used for day comparisons.
const DefaultTimeZone = "Europe/Madrid"

const week = 7

// Window is the number of months a weekly series spans. Zero means no recurrence.
type Window int

const (
	// WindowNone produces a single session.
	WindowNone Window = 0
	// WindowThreeMonths expands over three calendar months.
	WindowThreeMonths Window = 3
	// WindowSixMonths expands over six calendar months.
	WindowSixMonths Window = 6
	// WindowNineMonths expands over nine calendar months.
	WindowNineMonths Window = 9
	// WindowTwelveMonths expands over twelve calendar months.
	WindowTwelveMonths Window = 12
)

// Months returns the window length in calendar months.
func (w Window) Months() int {
	return int(w)
}

// Valid reports whether w is one of the supported windows.
func (w Window) Valid() bool {
	switch w {
	case WindowNone, WindowThreeMonths, WindowSixMonths, WindowNineMonths, WindowTwelveMonths:
		return true
	}
	return false
}

func (w Window) String() string {
	if w == WindowNone {
		return ""
	}
	return strconv.Itoa(int(w)) + "m"
}

var (
	// ErrInvalidWindow indicates the recurrence selector is not one of 3, 6, 9 or 12 months.
	ErrInvalidWindow = errors.New("recurrence: window must be 3, 6, 9 or 12 months")
	// ErrInvalidDuration indicates the session end is not after its start.
	ErrInvalidDuration = errors.New("recurrence: end must be after start")
	// ErrNoOccurrences indicates an expansion that would create nothing.
	ErrNoOccurrences = errors.New("recurrence: no occurrences in window")
	// ErrPastDay indicates a session placed on a day before today.
	ErrPastDay = errors.New("recurrence: day is in the past")
)

// ParseWindow accepts "3m", "3", "6m", "9m", "12m" or "1y". An empty value is WindowNone.
func ParseWindow(value string) (Window, error) {
	s := strings.ToLower(strings.TrimSpace(value))
	switch s {
	case "":
		return WindowNone, nil
	case "1y", "1a":
		return WindowTwelveMonths, nil
	}
	s = strings.TrimSuffix(s, "m")
	n, err := strconv.Atoi(s)
	if err != nil {
		return WindowNone, ErrInvalidWindow
	}
	w := Window(n)
	if w == WindowNone || !w.Valid() {
		return WindowNone, ErrInvalidWindow
	}
	return w, nil
}

// Occurrence is one materialized session of a series.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Engine expands session templates in a reference time zone.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that evaluates days in loc.
// If loc is nil, Europe/Madrid is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = LoadLocation(DefaultTimeZone)
	}
	return &Engine{location: loc}
}

// LoadLocation resolves a zone name, falling back to UTC when it is unknown.
func LoadLocation(name string) *time.Location {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimeZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Location returns the reference zone.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// Expand materializes a template into weekly occurrences.
//
// With WindowNone exactly one occurrence is returned. Otherwise the first
// occurrence is the template itself and one more follows every seven days, at
// the same wall-clock time in the reference zone, while the start stays
// strictly before start + window months.
func (e *Engine) Expand(start, end time.Time, window Window) ([]Occurrence, error) {
	if !end.After(start) {
		return nil, ErrInvalidDuration
	}
	if !window.Valid() {
		return nil, ErrInvalidWindow
	}
	if window == WindowNone {
		return []Occurrence{{Start: start, End: end}}, nil
	}

	loc := e.Location()
	until := AddMonths(start.In(loc), window.Months())
	return e.ExpandUntil(start, end, until)
}

// ExpandUntil produces weekly occurrences starting at start while the start is before until.
func (e *Engine) ExpandUntil(start, end, until time.Time) ([]Occurrence, error) {
	if !end.After(start) {
		return nil, ErrInvalidDuration
	}

	loc := e.Location()
	duration := end.Sub(start)

	occurrences := make([]Occurrence, 0, 14)
	for cur := start.In(loc); cur.Before(until); cur = cur.AddDate(0, 0, week) {
		occurrences = append(occurrences, Occurrence{Start: cur, End: cur.Add(duration)})
	}

	if len(occurrences) == 0 {
		return nil, ErrNoOccurrences
	}
	return occurrences, nil
}

// AddMonths adds calendar months to t, clamping the day to the last valid day
// of the target month (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DayKey formats the calendar day of t in the reference zone as YYYY-MM-DD.
func (e *Engine) DayKey(t time.Time) string {
	return t.In(e.Location()).Format(time.DateOnly)
}

// SameDay reports whether a and b fall on the same calendar day in the reference zone.
func (e *Engine) SameDay(a, b time.Time) bool {
	return e.DayKey(a) == e.DayKey(b)
}

// StartOfDay returns midnight of t's day in the reference zone.
func (e *Engine) StartOfDay(t time.Time) time.Time {
	loc := e.Location()
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// CheckNotPastDay rejects a start whose day precedes the day of now.
func (e *Engine) CheckNotPastDay(start, now time.Time) error {
	if e.DayKey(start) < e.DayKey(now) {
		return ErrPastDay
	}
	return nil
}

// CheckMove validates an edited start. A past day is accepted only when the
// session already occupied that same day.
func (e *Engine) CheckMove(existingStart, newStart, now time.Time) error {
	if err := e.CheckNotPastDay(newStart, now); err == nil {
		return nil
	}
	if !existingStart.IsZero() && e.SameDay(existingStart, newStart) {
		return nil
	}
	return ErrPastDay
}

// Combine joins a YYYY-MM-DD date and an HH:MM time into an instant in the reference zone.
func (e *Engine) Combine(date, clock string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(date)+" "+strings.TrimSpace(clock), e.Location())
}
