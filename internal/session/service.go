package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/schedule"
)

// MaxRangeDays bounds the span of a listing request.
const MaxRangeDays = 62

// BufferSource supplies the grace period after an occurrence ends.
type BufferSource interface {
	ScanBuffer(ctx context.Context) time.Duration
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// ServiceConfig holds dependencies for the session service.
type ServiceConfig struct {
	Repository Repository
	Engine     *civiltime.Engine
	Buffer     BufferSource
	Logger     zerolog.Logger
}

// Service exposes sessions and their occurrences.
type Service struct {
	repo   Repository
	engine *civiltime.Engine
	buffer BufferSource
	logger zerolog.Logger
}

// NewService creates a new session service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		engine: cfg.Engine,
		buffer: cfg.Buffer,
		logger: cfg.Logger,
	}
}

// Engine returns the civil-time engine used for occurrence math.
func (s *Service) Engine() *civiltime.Engine {
	return s.engine
}

// Scheduler returns a scheduler carrying the buffer in force right now.
func (s *Service) Scheduler(ctx context.Context) *schedule.Scheduler {
	buffer := schedule.DefaultBuffer
	if s.buffer != nil {
		buffer = s.buffer.ScanBuffer(ctx)
	}
	return schedule.NewScheduler(s.engine, buffer)
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.repo.Get(ctx, id)
}

// Upsert validates and stores a session. A missing ID is generated.
func (s *Service) Upsert(ctx context.Context, sess *Session) (*Session, error) {
	if err := Validate(sess); err != nil {
		return nil, err
	}

	now := s.engine.Now()
	if sess.ID == "" {
		sess.ID = "ses_" + uuid.New().String()[:22]
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	if err := s.repo.Upsert(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("session_id", sess.ID).
		Str("frequency", string(sess.Rule.Frequency)).
		Str("mode", string(sess.Policy.Mode)).
		Msg("session stored")

	return sess, nil
}

// ListOccurrences returns every occurrence of every session whose date lies
// in [from, to], ordered by start instant, each classified at the current
// instant.
func (s *Service) ListOccurrences(ctx context.Context, from, to civiltime.Date) ([]OccurrenceView, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidRange)
	}
	if from.DaysUntil(to) > MaxRangeDays {
		return nil, fmt.Errorf("%w: span exceeds %d days", ErrInvalidRange, MaxRangeDays)
	}

	sessions, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	sched := s.Scheduler(ctx)
	now := s.engine.Now()

	var views []OccurrenceView
	for _, sess := range sessions {
		occs, err := sched.Occurrences(sess.Rule, from, to, sess.Overrides())
		if err != nil {
			// A stored rule with bad times hides that session only.
			s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("skipping session with malformed rule")
			continue
		}
		if err := s.checkDates(sess.ID, occs); err != nil {
			return nil, err
		}
		for _, occ := range occs {
			views = append(views, OccurrenceView{
				SessionID:   sess.ID,
				SessionName: sess.Name,
				ClassName:   sess.ClassName,
				Mode:        sess.Policy.Mode,
				Occurrence:  occ,
				Status:      sched.Classify(occ, now),
				IsToday:     sched.IsToday(occ, now),
			})
		}
	}

	slices.SortStableFunc(views, func(a, b OccurrenceView) int {
		if c := a.Occurrence.Start.Compare(b.Occurrence.Start); c != 0 {
			return c
		}
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return views, nil
}

// checkDates fails when an occurrence's date is not the business date of its
// start instant.
func (s *Service) checkDates(sessionID string, occs []schedule.Occurrence) error {
	for _, occ := range occs {
		err := s.engine.CheckDate(occ.Date, occ.Start)
		if err == nil {
			continue
		}
		var inv *civiltime.InvariantError
		if errors.As(err, &inv) {
			s.logger.Error().
				Str("session_id", sessionID).
				Str("displayed_date", inv.Displayed.String()).
				Str("computed_date", inv.Computed.String()).
				Time("instant", inv.Instant).
				Msg("occurrence date disagrees with its start instant")
		}
		return err
	}
	return nil
}

// Validate checks a session for malformed input.
func Validate(sess *Session) error {
	var errs []models.FieldError

	if strings.TrimSpace(sess.Name) == "" {
		errs = append(errs, models.FieldError{Field: "name", Message: "is required"})
	}

	if err := sess.Rule.Validate(); err != nil {
		var verr *schedule.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for _, fe := range verr.Errors {
			errs = append(errs, models.FieldError{Field: "rule." + fe.Field, Message: fe.Message})
		}
	}

	p := sess.Policy
	if !p.Mode.Valid() {
		errs = append(errs, models.FieldError{Field: "policy.mode", Message: "must be one of PHYSICAL, REMOTE, HYBRID"})
	}
	if p.Mode != presence.ModeRemote {
		if p.RadiusMeters <= 0 {
			errs = append(errs, models.FieldError{Field: "policy.radiusMeters", Message: "must be positive"})
		}
		if err := p.Center.Validate(); err != nil {
			errs = append(errs, models.FieldError{Field: "policy.center", Message: err.Error()})
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
