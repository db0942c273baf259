// Package attendance orchestrates a check-in scan: it resolves the session
// occurrence, asks the presence validator for a decision, records the first
// successful mark exactly once and emits an audit event for every attempt.
package attendance

import (
	"errors"
	"fmt"
	"time"

	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/schedule"
)

// Store errors.
var (
	ErrRecordNotFound  = errors.New("attendance record not found")
	ErrRecordExists    = errors.New("attendance record already exists")
	ErrBindingNotFound = errors.New("device binding not found")
	ErrBindingExists   = errors.New("device binding already exists")
)

// RecordKey identifies the single record a participant may hold for one
// occurrence.
type RecordKey struct {
	ParticipantID string
	SessionID     string
	Date          civiltime.Date
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.SessionID, k.Date, k.ParticipantID)
}

// Record is a stored successful check-in.
type Record struct {
	ID             string           `json:"id"`
	SessionID      string           `json:"sessionId"`
	OccurrenceDate civiltime.Date   `json:"occurrenceDate"`
	ParticipantID  string           `json:"participantId"`
	DeviceID       string           `json:"deviceId"`
	Outcome        presence.Outcome `json:"outcome"`
	DistanceMeters *float64         `json:"distanceMeters,omitempty"`
	AccuracyMeters *float64         `json:"accuracyMeters,omitempty"`
	MarkedAt       time.Time        `json:"markedAt"`
}

// Key returns the uniqueness key of the record.
func (r *Record) Key() RecordKey {
	return RecordKey{ParticipantID: r.ParticipantID, SessionID: r.SessionID, Date: r.OccurrenceDate}
}

// DeviceBinding ties a participant to the device of their first successful scan.
type DeviceBinding struct {
	ParticipantID string    `json:"participantId"`
	DeviceID      string    `json:"deviceId"`
	BoundAt       time.Time `json:"boundAt"`
}

// AuditEvent describes one scan attempt, successful or not.
type AuditEvent struct {
	ID             string           `json:"id"`
	SessionID      string           `json:"sessionId"`
	OccurrenceDate *civiltime.Date  `json:"occurrenceDate,omitempty"`
	ParticipantID  string           `json:"participantId"`
	DeviceID       string           `json:"deviceId"`
	UserAgent      string           `json:"userAgent,omitempty"`
	Channel        presence.Channel `json:"channel,omitempty"`
	Outcome        presence.Outcome `json:"outcome"`
	Reason         presence.Reason  `json:"reason,omitempty"`
	DistanceMeters *float64         `json:"distanceMeters,omitempty"`
	AccuracyMeters *float64         `json:"accuracyMeters,omitempty"`
	ReportedAt     time.Time        `json:"reportedAt"`
	ReceivedAt     time.Time        `json:"receivedAt"`
}

// ScanCommand is a check-in request after transport decoding.
type ScanCommand struct {
	ParticipantID string
	// SessionID may be empty when QRToken is set.
	SessionID  string
	QRToken    string
	Location   *presence.Location
	DeviceID   string
	UserAgent  string
	ReportedAt time.Time
	Channel    presence.Channel
}

// ScanOutcome is the decision for a scan plus the context shown to the
// participant.
type ScanOutcome struct {
	Result      presence.Result
	Message     string
	SessionID   string
	SessionName string
	ClassName   string
	SessionDate *civiltime.Date
	Status      schedule.Status
	RecordID    string
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

func validateCommand(cmd ScanCommand) error {
	var errs []models.FieldError
	if cmd.ParticipantID == "" {
		errs = append(errs, models.FieldError{Field: "participantId", Message: "is required"})
	}
	if cmd.SessionID == "" && cmd.QRToken == "" {
		errs = append(errs, models.FieldError{Field: "sessionId", Message: "sessionId or qrToken is required"})
	}
	switch cmd.Channel {
	case "", presence.ChannelPhysical, presence.ChannelRemote:
	default:
		errs = append(errs, models.FieldError{Field: "channel", Message: "must be PHYSICAL or REMOTE"})
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
