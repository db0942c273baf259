package schedule_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/schedule"
)

func TestRule_Validate(t *testing.T) {
	valid := schedule.Rule{
		Frequency:  schedule.FrequencyWeekly,
		StartDate:  date("2026-01-01"),
		WeeklyDays: []int{1, 3},
		StartTime:  "11:00",
		EndTime:    "19:00",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name      string
		mutate    func(r *schedule.Rule)
		wantField string
	}{
		{name: "unknown frequency", mutate: func(r *schedule.Rule) { r.Frequency = "HOURLY" }, wantField: "frequency"},
		{name: "missing start date", mutate: func(r *schedule.Rule) { r.StartDate = civiltime.Date{} }, wantField: "startDate"},
		{name: "end before start", mutate: func(r *schedule.Rule) { r.EndDate = datePtr("2025-12-31") }, wantField: "endDate"},
		{name: "bad start time", mutate: func(r *schedule.Rule) { r.StartTime = "7pm" }, wantField: "startTime"},
		{name: "missing end time", mutate: func(r *schedule.Rule) { r.EndTime = "" }, wantField: "endTime"},
		{name: "weekday out of range", mutate: func(r *schedule.Rule) { r.WeeklyDays = []int{7} }, wantField: "weeklyDays"},
		{name: "no weekdays", mutate: func(r *schedule.Rule) { r.WeeklyDays = nil }, wantField: "weeklyDays"},
		{name: "monthly day zero", mutate: func(r *schedule.Rule) { r.Frequency = schedule.FrequencyMonthly; r.MonthlyDay = 0 }, wantField: "monthlyDay"},
		{name: "monthly day 32", mutate: func(r *schedule.Rule) { r.Frequency = schedule.FrequencyMonthly; r.MonthlyDay = 32 }, wantField: "monthlyDay"},
		{name: "custom without dates", mutate: func(r *schedule.Rule) { r.Frequency = schedule.FrequencyCustomDates }, wantField: "customDates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)

			err := r.Validate()
			var validationErr *schedule.ValidationError
			require.True(t, errors.As(err, &validationErr), "expected ValidationError, got %T", err)

			fields := make([]string, 0, len(validationErr.Errors))
			for _, fe := range validationErr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}
