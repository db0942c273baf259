package schedule

import (
	"iter"
	"slices"
	"time"

	"github.com/rollcall/rollcall/internal/civiltime"
)

// Dates yields every date in [from, to] on which rule occurs, ascending.
// The sequence is finite and can be ranged over more than once.
func Dates(rule Rule, from, to civiltime.Date) iter.Seq[civiltime.Date] {
	lo, hi, ok := bounds(rule, from, to)
	return func(yield func(civiltime.Date) bool) {
		if !ok {
			return
		}
		switch rule.Frequency {
		case FrequencyOneTime:
			if inRange(rule.StartDate, lo, hi) {
				yield(rule.StartDate)
			}
		case FrequencyDaily:
			for d := lo; !d.After(hi); d = d.AddDays(1) {
				if !yield(d) {
					return
				}
			}
		case FrequencyWeekly:
			var days [7]bool
			for _, wd := range rule.WeeklyDays {
				if wd >= 0 && wd <= 6 {
					days[wd] = true
				}
			}
			for d := lo; !d.After(hi); d = d.AddDays(1) {
				if days[d.Weekday()] && !yield(d) {
					return
				}
			}
		case FrequencyMonthly:
			monthly(rule.MonthlyDay, lo, hi, yield)
		case FrequencyCustomDates:
			for _, d := range customDates(rule.CustomDates) {
				if inRange(d, lo, hi) && !yield(d) {
					return
				}
			}
		}
	}
}

// OccurrencesInRange collects Dates into a slice.
func OccurrencesInRange(rule Rule, from, to civiltime.Date) []civiltime.Date {
	return slices.Collect(Dates(rule, from, to))
}

// Occurs reports whether rule has an occurrence on d.
func Occurs(rule Rule, d civiltime.Date) bool {
	for range Dates(rule, d, d) {
		return true
	}
	return false
}

// bounds intersects the query range with the rule's own validity range.
func bounds(rule Rule, from, to civiltime.Date) (lo, hi civiltime.Date, ok bool) {
	lo, hi = from, to
	if rule.StartDate.After(lo) {
		lo = rule.StartDate
	}
	if rule.EndDate != nil && rule.EndDate.Before(hi) {
		hi = *rule.EndDate
	}
	return lo, hi, !lo.After(hi)
}

// monthly yields the day-th of each month in [lo, hi]. Months too short to
// contain day are skipped, not clamped.
func monthly(day int, lo, hi civiltime.Date, yield func(civiltime.Date) bool) {
	if day < 1 || day > 31 {
		return
	}
	year, month := lo.Year, lo.Month
	for {
		if year > hi.Year || (year == hi.Year && month > hi.Month) {
			return
		}
		if day <= civiltime.DaysInMonth(year, month) {
			d := civiltime.Date{Year: year, Month: month, Day: day}
			if inRange(d, lo, hi) && !yield(d) {
				return
			}
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
}

// customDates returns dates sorted ascending without duplicates.
func customDates(in []civiltime.Date) []civiltime.Date {
	out := slices.Clone(in)
	slices.SortFunc(out, civiltime.Date.Compare)
	return slices.Compact(out)
}

func inRange(d, lo, hi civiltime.Date) bool {
	return !d.Before(lo) && !d.After(hi)
}
