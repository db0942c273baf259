// Package schedule expands recurring session rules into dated occurrences
// and classifies them against the current instant.
package schedule

import (
	"time"

	"github.com/rollcall/rollcall/internal/civiltime"
)

// Frequency is how a rule repeats.
type Frequency string

const (
	FrequencyOneTime     Frequency = "ONE_TIME"
	FrequencyDaily       Frequency = "DAILY"
	FrequencyWeekly      Frequency = "WEEKLY"
	FrequencyMonthly     Frequency = "MONTHLY"
	FrequencyCustomDates Frequency = "CUSTOM_DATES"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOneTime, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyCustomDates:
		return true
	}
	return false
}

// Rule describes when a session meets. StartTime and EndTime are "HH:MM" in
// the business zone; EndTime <= StartTime means the occurrence runs past
// midnight.
type Rule struct {
	Frequency   Frequency        `json:"frequency"`
	StartDate   civiltime.Date   `json:"startDate"`
	EndDate     *civiltime.Date  `json:"endDate,omitempty"`
	WeeklyDays  []int            `json:"weeklyDays,omitempty"`
	MonthlyDay  int              `json:"monthlyDay,omitempty"`
	CustomDates []civiltime.Date `json:"customDates,omitempty"`
	StartTime   string           `json:"startTime"`
	EndTime     string           `json:"endTime"`
}

// Overnight reports whether occurrences end on the following date. Malformed
// times report false; Validate catches them.
func (r Rule) Overnight() bool {
	st, err1 := civiltime.ParseTimeOfDay(r.StartTime)
	et, err2 := civiltime.ParseTimeOfDay(r.EndTime)
	return err1 == nil && err2 == nil && et.Minutes() <= st.Minutes()
}

// Occurrence is one dated instance of a rule.
type Occurrence struct {
	Date      civiltime.Date `json:"occurrenceDate"`
	Start     time.Time      `json:"startInstant"`
	End       time.Time      `json:"endInstant"`
	Cancelled bool           `json:"isCancelled"`
	Completed bool           `json:"isCompleted"`
}

// Status is the lifecycle state of an occurrence at some instant.
type Status string

const (
	StatusUpcoming  Status = "UPCOMING"
	StatusLive      Status = "LIVE"
	StatusPast      Status = "PAST"
	StatusCancelled Status = "CANCELLED"
)

// Overrides are operator-set flags on individual occurrence dates.
type Overrides struct {
	CancelledDates []civiltime.Date
	CompletedDates []civiltime.Date
}

// Apply sets the cancelled and completed flags on occ from o.
func (o Overrides) Apply(occ Occurrence) Occurrence {
	for _, d := range o.CancelledDates {
		if d == occ.Date {
			occ.Cancelled = true
		}
	}
	for _, d := range o.CompletedDates {
		if d == occ.Date {
			occ.Completed = true
		}
	}
	return occ
}
