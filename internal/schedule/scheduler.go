package schedule

import (
	"fmt"
	"time"

	"github.com/rollcall/rollcall/internal/civiltime"
)

// DefaultBuffer is the grace period after an occurrence ends during which it
// still counts as LIVE.
const DefaultBuffer = 10 * time.Minute

// Scheduler materializes and classifies occurrences in one business zone.
type Scheduler struct {
	engine *civiltime.Engine
	buffer time.Duration
}

// NewScheduler creates a scheduler. A negative buffer is treated as zero.
func NewScheduler(engine *civiltime.Engine, buffer time.Duration) *Scheduler {
	if buffer < 0 {
		buffer = 0
	}
	return &Scheduler{engine: engine, buffer: buffer}
}

// Engine returns the civil-time engine.
func (s *Scheduler) Engine() *civiltime.Engine {
	return s.engine
}

// Buffer returns the configured post-end grace period.
func (s *Scheduler) Buffer() time.Duration {
	return s.buffer
}

// Materialize computes the start and end instants of rule on date.
func (s *Scheduler) Materialize(rule Rule, date civiltime.Date) (Occurrence, error) {
	return Materialize(s.engine, rule, date)
}

// Classify returns the status of occ at now using the scheduler's buffer.
func (s *Scheduler) Classify(occ Occurrence, now time.Time) Status {
	return Classify(occ, now, s.buffer)
}

// IsToday reports whether occ starts on the business date of now.
func (s *Scheduler) IsToday(occ Occurrence, now time.Time) bool {
	return s.engine.SameDay(now, occ.Start)
}

// Window materializes rule on date with overrides applied. It reports false
// when the rule has no occurrence on date.
func (s *Scheduler) Window(rule Rule, date civiltime.Date, o Overrides) (Occurrence, bool, error) {
	if !Occurs(rule, date) {
		return Occurrence{}, false, nil
	}
	occ, err := s.Materialize(rule, date)
	if err != nil {
		return Occurrence{}, false, err
	}
	return o.Apply(occ), true, nil
}

// Occurrences materializes every occurrence of rule in [from, to] and applies
// overrides.
func (s *Scheduler) Occurrences(rule Rule, from, to civiltime.Date, o Overrides) ([]Occurrence, error) {
	var out []Occurrence
	for d := range Dates(rule, from, to) {
		occ, err := s.Materialize(rule, d)
		if err != nil {
			return nil, err
		}
		out = append(out, o.Apply(occ))
	}
	return out, nil
}

// Materialize computes the start and end instants of rule on date using
// engine. An overnight rule ends on the date after its start.
func Materialize(engine *civiltime.Engine, rule Rule, date civiltime.Date) (Occurrence, error) {
	st, err := civiltime.ParseTimeOfDay(rule.StartTime)
	if err != nil {
		return Occurrence{}, fmt.Errorf("start time: %w", err)
	}
	et, err := civiltime.ParseTimeOfDay(rule.EndTime)
	if err != nil {
		return Occurrence{}, fmt.Errorf("end time: %w", err)
	}

	start := engine.AtTime(date, st)
	endDate := date
	if et.Minutes() <= st.Minutes() {
		endDate = engine.DateOf(start).AddDays(1)
	}

	return Occurrence{
		Date:  date,
		Start: start,
		End:   engine.AtTime(endDate, et),
	}, nil
}

// Classify returns the status of occ at now. Cancelled and completed flags
// take precedence over the clock. The window is inclusive at both ends:
// start <= now <= end+buffer is LIVE.
func Classify(occ Occurrence, now time.Time, buffer time.Duration) Status {
	if occ.Cancelled {
		return StatusCancelled
	}
	if occ.Completed {
		return StatusPast
	}
	if now.Before(occ.Start) {
		return StatusUpcoming
	}
	if now.After(occ.End.Add(buffer)) {
		return StatusPast
	}
	return StatusLive
}
