// Package session holds the catalog of class sessions: their recurrence
// rule, geofence policy and per-date overrides.
package session

import (
	"errors"
	"slices"
	"time"

	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/schedule"
)

// Repository errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRange    = errors.New("invalid date range")
)

// Session is a recurring class session.
type Session struct {
	ID             string
	Name           string
	ClassName      string
	Rule           schedule.Rule
	Policy         presence.Policy
	CancelledDates []civiltime.Date
	CompletedDates []civiltime.Date
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Overrides returns the cancelled and completed dates of the session.
func (s *Session) Overrides() schedule.Overrides {
	return schedule.Overrides{
		CancelledDates: s.CancelledDates,
		CompletedDates: s.CompletedDates,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	cpy := *s
	cpy.Rule.WeeklyDays = slices.Clone(s.Rule.WeeklyDays)
	cpy.Rule.CustomDates = slices.Clone(s.Rule.CustomDates)
	if s.Rule.EndDate != nil {
		end := *s.Rule.EndDate
		cpy.Rule.EndDate = &end
	}
	cpy.CancelledDates = slices.Clone(s.CancelledDates)
	cpy.CompletedDates = slices.Clone(s.CompletedDates)
	return &cpy
}

// OccurrenceView is one occurrence of a session as shown in listings.
type OccurrenceView struct {
	SessionID   string
	SessionName string
	ClassName   string
	Mode        presence.Mode
	Occurrence  schedule.Occurrence
	Status      schedule.Status
	IsToday     bool
}
