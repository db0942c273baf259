package civiltime

import (
	"errors"
	"fmt"
	"time"

	// Embedded zone database so LoadLocation works on hosts without zoneinfo.
	_ "time/tzdata"
)

// DefaultZone is the business time zone (IST, UTC+05:30, no DST).
const DefaultZone = "Asia/Kolkata"

// ErrInvariantViolation marks a disagreement between two date computations
// that must agree. It is a server fault, never a user-facing failure.
var ErrInvariantViolation = errors.New("civil time invariant violated")

// InvariantError carries the two dates that disagreed.
type InvariantError struct {
	Displayed Date
	Computed  Date
	Instant   time.Time
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: displayed date %s, instant %s falls on %s",
		ErrInvariantViolation, e.Displayed, e.Instant.UTC().Format(time.RFC3339Nano), e.Computed)
}

// Unwrap returns ErrInvariantViolation.
func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// Engine converts between civil dates in one zone and absolute instants.
type Engine struct {
	loc   *time.Location
	clock Clock
}

// NewEngine loads zone and returns an engine reading now from clock.
// A nil clock means SystemClock.
func NewEngine(zone string, clock Clock) (*Engine, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", zone, err)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{loc: loc, clock: clock}, nil
}

// MustEngine is NewEngine for zones known to exist.
func MustEngine(zone string, clock Clock) *Engine {
	e, err := NewEngine(zone, clock)
	if err != nil {
		panic(err)
	}
	return e
}

// Location returns the business zone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Now returns the current instant.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Today returns the business date of Now.
func (e *Engine) Today() Date {
	return e.DateOf(e.Now())
}

// DayStart returns 00:00:00.000 of d in the business zone.
func (e *Engine) DayStart(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, e.loc)
}

// DayEnd returns the last millisecond of d: one millisecond before the next
// day's start.
func (e *Engine) DayEnd(d Date) time.Time {
	return e.DayStart(d.AddDays(1)).Add(-time.Millisecond)
}

// AtTime returns DayStart(d) plus the minutes of t.
func (e *Engine) AtTime(d Date, t TimeOfDay) time.Time {
	return e.DayStart(d).Add(t.Duration())
}

// At parses hhmm and returns AtTime(d, ...).
func (e *Engine) At(d Date, hhmm string) (time.Time, error) {
	t, err := ParseTimeOfDay(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return e.AtTime(d, t), nil
}

// DateOf returns the business-zone calendar date containing instant.
func (e *Engine) DateOf(instant time.Time) Date {
	return dateOf(instant.In(e.loc))
}

// SameDay reports whether a and b fall on the same business date.
func (e *Engine) SameDay(a, b time.Time) bool {
	return e.DateOf(a) == e.DateOf(b)
}

// CheckDate verifies that instant falls on displayed. A mismatch means two
// code paths disagree about the calendar and is reported as an
// *InvariantError.
func (e *Engine) CheckDate(displayed Date, instant time.Time) error {
	computed := e.DateOf(instant)
	if computed != displayed {
		return &InvariantError{Displayed: displayed, Computed: computed, Instant: instant}
	}
	return nil
}
