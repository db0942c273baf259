package session

import "github.com/rollcall/rollcall/internal/schedule"

func (s *Service) CheckDates(sessionID string, occs []schedule.Occurrence) error {
	return s.checkDates(sessionID, occs)
}
