package schedule

import (
	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/civiltime"
)

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// Validate checks the rule for malformed input. It returns nil or a
// *ValidationError listing every offending field.
func (r Rule) Validate() error {
	var errs []models.FieldError

	if !r.Frequency.Valid() {
		errs = append(errs, models.FieldError{Field: "frequency", Message: "must be one of ONE_TIME, DAILY, WEEKLY, MONTHLY, CUSTOM_DATES"})
	}

	if r.StartDate.IsZero() {
		errs = append(errs, models.FieldError{Field: "startDate", Message: "is required"})
	} else if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		errs = append(errs, models.FieldError{Field: "endDate", Message: "must not be before startDate"})
	}

	if r.StartTime == "" {
		errs = append(errs, models.FieldError{Field: "startTime", Message: "is required"})
	} else if !civiltime.ValidTimeOfDay(r.StartTime) {
		errs = append(errs, models.FieldError{Field: "startTime", Message: "must be in HH:mm format"})
	}
	if r.EndTime == "" {
		errs = append(errs, models.FieldError{Field: "endTime", Message: "is required"})
	} else if !civiltime.ValidTimeOfDay(r.EndTime) {
		errs = append(errs, models.FieldError{Field: "endTime", Message: "must be in HH:mm format"})
	}

	switch r.Frequency {
	case FrequencyWeekly:
		if len(r.WeeklyDays) == 0 {
			errs = append(errs, models.FieldError{Field: "weeklyDays", Message: "is required"})
		}
		for _, day := range r.WeeklyDays {
			if day < 0 || day > 6 {
				errs = append(errs, models.FieldError{Field: "weeklyDays", Message: "must contain values between 0 and 6"})
				break
			}
		}
	case FrequencyMonthly:
		if r.MonthlyDay < 1 || r.MonthlyDay > 31 {
			errs = append(errs, models.FieldError{Field: "monthlyDay", Message: "must be between 1 and 31"})
		}
	case FrequencyCustomDates:
		if len(r.CustomDates) == 0 {
			errs = append(errs, models.FieldError{Field: "customDates", Message: "is required"})
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
