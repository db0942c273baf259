package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/featureflags"
	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/qrtoken"
	"github.com/rollcall/rollcall/internal/schedule"
	"github.com/rollcall/rollcall/internal/session"
)

// DefaultAuditTimeout bounds how long a scan waits for its audit event.
const DefaultAuditTimeout = 2 * time.Second

// SessionSource looks up sessions.
type SessionSource interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// PolicySource supplies the check-in thresholds in force.
type PolicySource interface {
	ScanPolicy(ctx context.Context) featureflags.ScanPolicy
}

// TokenVerifier checks QR scan tokens.
type TokenVerifier interface {
	Verify(value string) (*qrtoken.Claims, error)
}

// ServiceConfig holds dependencies for the attendance service.
type ServiceConfig struct {
	Sessions     SessionSource
	Engine       *civiltime.Engine
	Policy       PolicySource
	Tokens       TokenVerifier
	Records      RecordStore
	Bindings     BindingStore
	Audit        AuditPublisher
	AuditTimeout time.Duration
	Metrics      *Metrics
	Logger       zerolog.Logger
}

// Service decides and records scans.
type Service struct {
	sessions     SessionSource
	engine       *civiltime.Engine
	policy       PolicySource
	tokens       TokenVerifier
	records      RecordStore
	bindings     BindingStore
	audit        AuditPublisher
	auditTimeout time.Duration
	metrics      *Metrics
	logger       zerolog.Logger
}

// NewService creates a new attendance service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Audit == nil {
		cfg.Audit = NopPublisher{}
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = DefaultAuditTimeout
	}
	return &Service{
		sessions:     cfg.Sessions,
		engine:       cfg.Engine,
		policy:       cfg.Policy,
		tokens:       cfg.Tokens,
		records:      cfg.Records,
		bindings:     cfg.Bindings,
		audit:        cfg.Audit,
		auditTimeout: cfg.AuditTimeout,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// Scan decides a check-in attempt and records it when it succeeds.
//
// Policy failures come back as an outcome. Errors are reserved for
// malformed input (*ValidationError and the validators' equivalents),
// unknown sessions (session.ErrSessionNotFound), calendar invariant
// violations (civiltime.ErrInvariantViolation) and storage failures.
//
// The occurrence is classified at the server's current instant; the
// device-reported time is only audited.
func (s *Service) Scan(ctx context.Context, cmd ScanCommand) (*ScanOutcome, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	now := s.engine.Now()
	policy := s.scanPolicy(ctx)
	logger := s.logger.With().Str("participant_id", cmd.ParticipantID).Logger()

	sessionID, tokenDate, tokenValid := s.checkToken(cmd, policy, logger)
	if sessionID == "" {
		result := presence.Result{Outcome: presence.OutcomeFailed, Reason: presence.ReasonInvalidQR}
		out := &ScanOutcome{
			Result:  result,
			Message: s.validator(policy).Message(result, presence.Policy{}),
		}
		s.finish(ctx, cmd, "", out, now, policy, logger)
		return out, nil
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("session_id", sess.ID).Logger()

	sched := schedule.NewScheduler(s.engine, policy.Buffer)
	occ, found, err := s.resolveOccurrence(sched, sess, tokenDate, now)
	if err != nil {
		return nil, fmt.Errorf("resolve occurrence of %s: %w", sess.ID, err)
	}

	out := &ScanOutcome{
		SessionID:   sess.ID,
		SessionName: sess.Name,
		ClassName:   sess.ClassName,
	}

	var prior *Record
	if found {
		if err := s.engine.CheckDate(occ.Date, occ.Start); err != nil {
			var inv *civiltime.InvariantError
			if errors.As(err, &inv) {
				logger.Error().
					Str("displayed_date", inv.Displayed.String()).
					Str("computed_date", inv.Computed.String()).
					Time("instant", inv.Instant).
					Msg("occurrence date disagrees with its start instant")
			}
			return nil, err
		}

		date := occ.Date
		out.SessionDate = &date
		out.Status = sched.Classify(occ, now)

		prior, err = s.records.Get(ctx, RecordKey{ParticipantID: cmd.ParticipantID, SessionID: sess.ID, Date: date})
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		if prior != nil {
			out.RecordID = prior.ID
		}
	}

	effective := sess.Policy
	effective.DeviceBinding = sess.Policy.DeviceBinding && policy.DeviceBindingEnforced

	bound := ""
	if policy.DeviceBindingEnforced {
		b, err := s.bindings.GetBinding(ctx, cmd.ParticipantID)
		switch {
		case err == nil:
			bound = b.DeviceID
		case errors.Is(err, ErrBindingNotFound):
		default:
			return nil, err
		}
	}

	validator := s.validator(policy)
	result, err := validator.Validate(presence.Input{
		Attempt: presence.Attempt{
			SessionID:  sess.ID,
			DeviceID:   cmd.DeviceID,
			ReportedAt: cmd.ReportedAt,
			Location:   cmd.Location,
			Channel:    cmd.Channel,
		},
		Policy:        effective,
		Status:        out.Status,
		TokenValid:    tokenValid,
		AlreadyMarked: prior != nil,
		BoundDeviceID: bound,
	})
	if err != nil {
		return nil, err
	}
	out.Result = result

	if result.Outcome == presence.OutcomeMarked {
		if err := s.record(ctx, cmd, out, now); err != nil {
			return nil, err
		}
		if out.Result.Outcome == presence.OutcomeMarked && policy.DeviceBindingEnforced && bound == "" {
			s.bind(ctx, cmd, now, logger)
		}
	}

	out.Message = validator.Message(out.Result, effective)
	s.finish(ctx, cmd, sess.Policy.Mode, out, now, policy, logger)
	return out, nil
}

// checkToken returns the session to scan, the token's occurrence date and
// whether the token requirement is satisfied.
func (s *Service) checkToken(cmd ScanCommand, policy featureflags.ScanPolicy, logger zerolog.Logger) (string, *civiltime.Date, bool) {
	if cmd.QRToken == "" {
		return cmd.SessionID, nil, !policy.QRTokenRequired
	}
	if s.tokens == nil {
		return cmd.SessionID, nil, false
	}

	claims, err := s.tokens.Verify(cmd.QRToken)
	if err != nil {
		logger.Debug().Err(err).Msg("scan token rejected")
		return cmd.SessionID, nil, false
	}
	if cmd.SessionID != "" && cmd.SessionID != claims.SessionID {
		logger.Warn().
			Str("requested_session", cmd.SessionID).
			Str("token_session", claims.SessionID).
			Msg("scan token belongs to another session")
		return cmd.SessionID, nil, false
	}

	date := claims.Date
	return claims.SessionID, &date, true
}

// resolveOccurrence picks the occurrence a scan refers to. A token names
// its date. Otherwise today's and yesterday's occurrences are considered,
// so that an overnight occurrence that started yesterday can still be live,
// and a live one wins over today's.
func (s *Service) resolveOccurrence(sched *schedule.Scheduler, sess *session.Session, tokenDate *civiltime.Date, now time.Time) (schedule.Occurrence, bool, error) {
	if tokenDate != nil {
		return sched.Window(sess.Rule, *tokenDate, sess.Overrides())
	}

	today := s.engine.DateOf(now)
	var fallback *schedule.Occurrence
	for _, d := range []civiltime.Date{today, today.AddDays(-1)} {
		occ, ok, err := sched.Window(sess.Rule, d, sess.Overrides())
		if err != nil {
			return schedule.Occurrence{}, false, err
		}
		if !ok {
			continue
		}
		if sched.Classify(occ, now) == schedule.StatusLive {
			return occ, true, nil
		}
		if fallback == nil {
			fallback = &occ
		}
	}
	if fallback != nil {
		return *fallback, true, nil
	}
	return schedule.Occurrence{}, false, nil
}

// record stores the mark. Losing the insert race turns the outcome into
// ALREADY_MARKED.
func (s *Service) record(ctx context.Context, cmd ScanCommand, out *ScanOutcome, now time.Time) error {
	rec := &Record{
		ID:             "att_" + uuid.New().String()[:22],
		SessionID:      out.SessionID,
		OccurrenceDate: *out.SessionDate,
		ParticipantID:  cmd.ParticipantID,
		DeviceID:       cmd.DeviceID,
		Outcome:        presence.OutcomeMarked,
		DistanceMeters: out.Result.DistanceMeters,
		AccuracyMeters: out.Result.AccuracyMeters,
		MarkedAt:       now,
	}

	err := s.records.Insert(ctx, rec)
	switch {
	case err == nil:
		out.RecordID = rec.ID
		return nil
	case errors.Is(err, ErrRecordExists):
		out.Result = presence.Result{Outcome: presence.OutcomeAlreadyMarked}
		if existing, gerr := s.records.Get(ctx, rec.Key()); gerr == nil {
			out.RecordID = existing.ID
		}
		return nil
	default:
		return err
	}
}

func (s *Service) bind(ctx context.Context, cmd ScanCommand, now time.Time, logger zerolog.Logger) {
	err := s.bindings.Bind(ctx, &DeviceBinding{
		ParticipantID: cmd.ParticipantID,
		DeviceID:      cmd.DeviceID,
		BoundAt:       now,
	})
	if err != nil && !errors.Is(err, ErrBindingExists) {
		logger.Warn().Err(err).Msg("failed to bind device")
	}
}

func (s *Service) finish(ctx context.Context, cmd ScanCommand, mode presence.Mode, out *ScanOutcome, now time.Time, policy featureflags.ScanPolicy, logger zerolog.Logger) {
	s.metrics.Record(ctx, mode, out.Result)

	logger.Info().
		Str("outcome", string(out.Result.Outcome)).
		Str("reason", string(out.Result.Reason)).
		Str("status", string(out.Status)).
		Msg("scan decided")

	if policy.AuditDisabled {
		return
	}

	evt := AuditEvent{
		ID:             uuid.NewString(),
		SessionID:      out.SessionID,
		OccurrenceDate: out.SessionDate,
		ParticipantID:  cmd.ParticipantID,
		DeviceID:       cmd.DeviceID,
		UserAgent:      cmd.UserAgent,
		Channel:        cmd.Channel,
		Outcome:        out.Result.Outcome,
		Reason:         out.Result.Reason,
		DistanceMeters: out.Result.DistanceMeters,
		AccuracyMeters: out.Result.AccuracyMeters,
		ReportedAt:     cmd.ReportedAt,
		ReceivedAt:     now,
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
	defer cancel()
	if err := s.audit.Publish(auditCtx, evt); err != nil {
		logger.Warn().Err(err).Str("event_id", evt.ID).Msg("failed to publish audit event")
	}
}

func (s *Service) scanPolicy(ctx context.Context) featureflags.ScanPolicy {
	if s.policy == nil {
		return featureflags.ScanPolicy{
			Buffer:                schedule.DefaultBuffer,
			MaxAccuracyMeters:     presence.DefaultMaxAccuracyMeters,
			DeviceBindingEnforced: true,
			QRTokenRequired:       true,
		}
	}
	return s.policy.ScanPolicy(ctx)
}

func (s *Service) validator(policy featureflags.ScanPolicy) *presence.Validator {
	return presence.NewValidator(presence.Config{MaxAccuracyMeters: policy.MaxAccuracyMeters})
}
