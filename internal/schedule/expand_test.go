package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/schedule"
)

func date(s string) civiltime.Date {
	d, err := civiltime.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *civiltime.Date {
	d := date(s)
	return &d
}

func strs(dates []civiltime.Date) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	return out
}

func TestOccurrencesInRange(t *testing.T) {
	tests := []struct {
		name string
		rule schedule.Rule
		from string
		to   string
		want []string
	}{
		{
			name: "one time inside range",
			rule: schedule.Rule{Frequency: schedule.FrequencyOneTime, StartDate: date("2026-01-08")},
			from: "2026-01-01", to: "2026-01-31",
			want: []string{"2026-01-08"},
		},
		{
			name: "one time outside range",
			rule: schedule.Rule{Frequency: schedule.FrequencyOneTime, StartDate: date("2026-02-08")},
			from: "2026-01-01", to: "2026-01-31",
			want: []string{},
		},
		{
			name: "daily bounded by rule",
			rule: schedule.Rule{Frequency: schedule.FrequencyDaily, StartDate: date("2026-01-07"), EndDate: datePtr("2026-01-09")},
			from: "2026-01-01", to: "2026-01-31",
			want: []string{"2026-01-07", "2026-01-08", "2026-01-09"},
		},
		{
			name: "daily bounded by query",
			rule: schedule.Rule{Frequency: schedule.FrequencyDaily, StartDate: date("2025-12-30")},
			from: "2025-12-31", to: "2026-01-02",
			want: []string{"2025-12-31", "2026-01-01", "2026-01-02"},
		},
		{
			name: "weekly monday and wednesday over two weeks",
			rule: schedule.Rule{Frequency: schedule.FrequencyWeekly, StartDate: date("2026-01-01"), WeeklyDays: []int{1, 3}},
			from: "2026-01-04", to: "2026-01-17",
			want: []string{"2026-01-05", "2026-01-07", "2026-01-12", "2026-01-14"},
		},
		{
			name: "monthly skips short months",
			rule: schedule.Rule{Frequency: schedule.FrequencyMonthly, StartDate: date("2026-01-01"), MonthlyDay: 31},
			from: "2026-01-01", to: "2026-06-30",
			want: []string{"2026-01-31", "2026-03-31", "2026-05-31"},
		},
		{
			name: "monthly 29 includes leap february",
			rule: schedule.Rule{Frequency: schedule.FrequencyMonthly, StartDate: date("2028-01-01"), MonthlyDay: 29},
			from: "2028-01-15", to: "2028-03-15",
			want: []string{"2028-01-29", "2028-02-29"},
		},
		{
			name: "monthly across year boundary",
			rule: schedule.Rule{Frequency: schedule.FrequencyMonthly, StartDate: date("2025-01-01"), MonthlyDay: 15},
			from: "2025-11-20", to: "2026-02-10",
			want: []string{"2025-12-15", "2026-01-15"},
		},
		{
			name: "custom dates sorted and de-duplicated",
			rule: schedule.Rule{
				Frequency:   schedule.FrequencyCustomDates,
				StartDate:   date("2026-01-01"),
				CustomDates: []civiltime.Date{date("2026-01-20"), date("2026-01-05"), date("2026-01-20"), date("2026-03-01")},
			},
			from: "2026-01-01", to: "2026-01-31",
			want: []string{"2026-01-05", "2026-01-20"},
		},
		{
			name: "custom dates before rule start excluded",
			rule: schedule.Rule{
				Frequency:   schedule.FrequencyCustomDates,
				StartDate:   date("2026-01-10"),
				CustomDates: []civiltime.Date{date("2026-01-05"), date("2026-01-12")},
			},
			from: "2026-01-01", to: "2026-01-31",
			want: []string{"2026-01-12"},
		},
		{
			name: "query range after rule end",
			rule: schedule.Rule{Frequency: schedule.FrequencyDaily, StartDate: date("2026-01-01"), EndDate: datePtr("2026-01-05")},
			from: "2026-02-01", to: "2026-02-05",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := schedule.OccurrencesInRange(tt.rule, date(tt.from), date(tt.to))
			assert.Equal(t, tt.want, strs(got))
		})
	}
}

func TestDates_WeeklyLandsOnListedWeekdays(t *testing.T) {
	rule := schedule.Rule{Frequency: schedule.FrequencyWeekly, StartDate: date("2026-01-01"), WeeklyDays: []int{1, 3}}

	n := 0
	for d := range schedule.Dates(rule, date("2026-01-04"), date("2026-01-17")) {
		assert.Contains(t, []time.Weekday{time.Monday, time.Wednesday}, d.Weekday())
		n++
	}
	assert.Equal(t, 4, n)
}

func TestDates_Restartable(t *testing.T) {
	rule := schedule.Rule{Frequency: schedule.FrequencyDaily, StartDate: date("2026-01-01")}
	seq := schedule.Dates(rule, date("2026-01-01"), date("2026-01-03"))

	var first, second []civiltime.Date
	for d := range seq {
		first = append(first, d)
	}
	for d := range seq {
		second = append(second, d)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestDates_EarlyBreak(t *testing.T) {
	rule := schedule.Rule{Frequency: schedule.FrequencyDaily, StartDate: date("2026-01-01")}

	var got []civiltime.Date
	for d := range schedule.Dates(rule, date("2026-01-01"), date("2026-12-31")) {
		got = append(got, d)
		if len(got) == 2 {
			break
		}
	}
	assert.Len(t, got, 2)
}

func TestOccurs(t *testing.T) {
	rule := schedule.Rule{Frequency: schedule.FrequencyWeekly, StartDate: date("2026-01-01"), WeeklyDays: []int{1}}

	assert.True(t, schedule.Occurs(rule, date("2026-01-05")))
	assert.False(t, schedule.Occurs(rule, date("2026-01-06")))
}
