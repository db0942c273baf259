package presence

import (
	"fmt"
	"math"

	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/geo"
	"github.com/rollcall/rollcall/internal/schedule"
)

// DefaultMaxAccuracyMeters is the coarsest GPS fix accepted.
const DefaultMaxAccuracyMeters = 30.0

// Config holds validator thresholds.
type Config struct {
	// MaxAccuracyMeters rejects fixes whose accuracy radius is larger.
	// Default: 30.
	MaxAccuracyMeters float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{MaxAccuracyMeters: DefaultMaxAccuracyMeters}
}

// Validator applies the check-in decision steps.
type Validator struct {
	config Config
}

// NewValidator creates a validator. Non-positive thresholds fall back to defaults.
func NewValidator(config Config) *Validator {
	if config.MaxAccuracyMeters <= 0 {
		config.MaxAccuracyMeters = DefaultMaxAccuracyMeters
	}
	return &Validator{config: config}
}

// MaxAccuracyMeters returns the configured accuracy ceiling.
func (v *Validator) MaxAccuracyMeters() float64 {
	return v.config.MaxAccuracyMeters
}

// Validate decides the attempt. Policy failures come back as a FAILED
// result; the error is reserved for malformed input (*ValidationError).
//
// Steps run in order and the first that applies wins:
// token, prior mark, time window, device binding, then location when the
// session needs one.
func (v *Validator) Validate(in Input) (Result, error) {
	if err := validateInput(in); err != nil {
		return Result{}, err
	}

	if !in.TokenValid {
		return failed(ReasonInvalidQR), nil
	}
	if in.AlreadyMarked {
		return Result{Outcome: OutcomeAlreadyMarked}, nil
	}
	if in.Status != schedule.StatusLive {
		return failed(ReasonTimeWindowClosed), nil
	}
	if in.Policy.DeviceBinding && in.BoundDeviceID != "" && in.BoundDeviceID != in.Attempt.DeviceID {
		return failed(ReasonDeviceMismatch), nil
	}

	if !RequiresLocation(in.Policy.Mode, in.Attempt.Channel) {
		return Result{Outcome: OutcomeMarked}, nil
	}

	loc := in.Attempt.Location
	if loc == nil {
		// Permission denied or timed out on the device.
		return Result{Outcome: OutcomeFailed}, nil
	}

	accuracy := loc.AccuracyMeters
	if accuracy > v.config.MaxAccuracyMeters {
		return Result{Outcome: OutcomeFailed, Reason: ReasonAccuracyTooLow, AccuracyMeters: &accuracy}, nil
	}

	distance := geo.Distance(loc.Point, in.Policy.Center)
	if distance > in.Policy.RadiusMeters {
		return Result{
			Outcome:        OutcomeFailed,
			Reason:         ReasonOutOfRange,
			DistanceMeters: &distance,
			AccuracyMeters: &accuracy,
		}, nil
	}

	return Result{Outcome: OutcomeMarked, DistanceMeters: &distance, AccuracyMeters: &accuracy}, nil
}

// RequiresLocation reports whether the geofence applies. HYBRID sessions
// check location only for the physical channel.
func RequiresLocation(mode Mode, channel Channel) bool {
	switch mode {
	case ModePhysical:
		return true
	case ModeHybrid:
		return channel != ChannelRemote
	default:
		return false
	}
}

// Message renders a result for the participant.
func (v *Validator) Message(r Result, policy Policy) string {
	switch r.Outcome {
	case OutcomeMarked:
		return "Attendance marked"
	case OutcomeAlreadyMarked:
		return "Attendance already marked for this session"
	}

	switch r.Reason {
	case ReasonInvalidQR:
		return "QR code is invalid or has expired"
	case ReasonTimeWindowClosed:
		return "This session is not open for check-in"
	case ReasonDeviceMismatch:
		return "Attendance must be marked from your registered device"
	case ReasonAccuracyTooLow:
		return fmt.Sprintf("Location accuracy is %s; need %s or better",
			meters(deref(r.AccuracyMeters)), meters(v.config.MaxAccuracyMeters))
	case ReasonOutOfRange:
		return fmt.Sprintf("You are %s away; move within %s",
			meters(deref(r.DistanceMeters)), meters(policy.RadiusMeters))
	default:
		return "Location is required to mark attendance"
	}
}

func failed(reason Reason) Result {
	return Result{Outcome: OutcomeFailed, Reason: reason}
}

func meters(m float64) string {
	return fmt.Sprintf("%d m", int(math.Round(m)))
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

func validateInput(in Input) error {
	var errs []models.FieldError

	if in.Attempt.DeviceID == "" {
		errs = append(errs, models.FieldError{Field: "deviceId", Message: "is required"})
	}

	if loc := in.Attempt.Location; loc != nil {
		errs = append(errs, pointErrors(loc.Point, "userLocation")...)
		if math.IsNaN(loc.AccuracyMeters) || loc.AccuracyMeters < 0 {
			errs = append(errs, models.FieldError{Field: "accuracy", Message: "must be zero or greater"})
		}
	}

	if !in.Policy.Mode.Valid() {
		errs = append(errs, models.FieldError{Field: "policy.mode", Message: "must be one of PHYSICAL, REMOTE, HYBRID"})
	} else if in.Policy.Mode != ModeRemote {
		if !(in.Policy.RadiusMeters > 0) {
			errs = append(errs, models.FieldError{Field: "policy.radiusMeters", Message: "must be greater than 0"})
		}
		errs = append(errs, pointErrors(in.Policy.Center, "policy.center")...)
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func pointErrors(p geo.Point, field string) []models.FieldError {
	var errs []models.FieldError
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		errs = append(errs, models.FieldError{Field: field + ".lat", Message: "must be between -90 and 90"})
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		errs = append(errs, models.FieldError{Field: field + ".lng", Message: "must be between -180 and 180"})
	}
	return errs
}
