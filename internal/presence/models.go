// Package presence decides whether a check-in attempt proves presence at a
// session.
package presence

import (
	"time"

	"github.com/rollcall/rollcall/internal/geo"
	"github.com/rollcall/rollcall/internal/schedule"
)

// Mode is how a session is delivered.
type Mode string

const (
	ModePhysical Mode = "PHYSICAL"
	ModeRemote   Mode = "REMOTE"
	ModeHybrid   Mode = "HYBRID"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePhysical || m == ModeRemote || m == ModeHybrid
}

// Channel is how a participant attends a HYBRID session.
type Channel string

const (
	ChannelPhysical Channel = "PHYSICAL"
	ChannelRemote   Channel = "REMOTE"
)

// Policy is the geofence configured on a session.
type Policy struct {
	Center        geo.Point `json:"center"`
	RadiusMeters  float64   `json:"radiusMeters"`
	Mode          Mode      `json:"mode"`
	DeviceBinding bool      `json:"deviceBinding"`
}

// Location is a GPS fix with its reported accuracy radius.
type Location struct {
	geo.Point
	AccuracyMeters float64 `json:"accuracyMeters"`
}

// Attempt is one scan by a participant.
type Attempt struct {
	SessionID  string
	DeviceID   string
	ReportedAt time.Time
	Location   *Location
	Channel    Channel
}

// Outcome is the verdict on an attempt.
type Outcome string

const (
	OutcomeMarked        Outcome = "MARKED"
	OutcomeAlreadyMarked Outcome = "ALREADY_MARKED"
	OutcomeFailed        Outcome = "FAILED"
)

// Reason explains a FAILED outcome.
type Reason string

const (
	ReasonOutOfRange       Reason = "OUT_OF_RANGE"
	ReasonDeviceMismatch   Reason = "DEVICE_MISMATCH"
	ReasonInvalidQR        Reason = "INVALID_QR"
	ReasonAccuracyTooLow   Reason = "ACCURACY_TOO_LOW"
	ReasonTimeWindowClosed Reason = "TIME_WINDOW_CLOSED"
)

// Result is the validator's verdict. Distance and accuracy are set only when
// they were measured.
type Result struct {
	Outcome        Outcome  `json:"outcome"`
	Reason         Reason   `json:"reason,omitempty"`
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
	AccuracyMeters *float64 `json:"accuracyMeters,omitempty"`
}

// Succeeded reports whether the attempt counts as attendance.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeMarked
}

// Input gathers everything the decision depends on. The caller resolves the
// token, the prior record, the occurrence status and the bound device.
type Input struct {
	Attempt       Attempt
	Policy        Policy
	Status        schedule.Status
	TokenValid    bool
	AlreadyMarked bool
	BoundDeviceID string
}
