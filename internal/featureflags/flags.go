// Package featureflags provides runtime overrides for check-in policy.
package featureflags

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/schedule"
)

// Well-known feature flag keys.
const (
	// FlagScanBufferMinutes is the grace period after a session ends during
	// which check-in stays open.
	FlagScanBufferMinutes = "scan_buffer_minutes"

	// FlagScanMaxAccuracyMeters rejects GPS fixes coarser than this radius.
	FlagScanMaxAccuracyMeters = "scan_max_accuracy_meters"

	// FlagDeviceBindingEnforced turns per-participant device binding on or off.
	FlagDeviceBindingEnforced = "device_binding_enforced"

	// FlagQRTokenRequired rejects scans that carry only a session ID.
	FlagQRTokenRequired = "qr_token_required"

	// FlagDisableAuditPublishing stops scan audit events from being published.
	FlagDisableAuditPublishing = "disable_audit_publishing"
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FlagState is one flag as stored, with the default it replaces.
type FlagState struct {
	Flag
	Overridden bool `json:"overridden"`
	Default    any  `json:"default"`
}

// FlagList represents a list of feature flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string `json:"key" validate:"required"`
	Value any    `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates" validate:"required,min=1,dive"`
	Reason  string       `json:"reason" validate:"required,max=200"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// IntValue returns the flag value as an integer.
// Returns the default value if the flag is nil or not a number.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// Float64Value returns the flag value as a float64.
// Returns the default value if the flag is nil or not a number.
func (f *Flag) Float64Value(defaultValue float64) float64 {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return defaultValue
	}
}

// JSONValue unmarshals the flag value into target.
func (f *Flag) JSONValue(target any) error {
	if f == nil {
		return nil
	}
	data, err := json.Marshal(f.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// kind is the JSON type a known flag accepts.
type kind int

const (
	kindBool kind = iota
	kindNonNegativeNumber
	kindPositiveNumber
)

var knownFlags = map[string]kind{
	FlagScanBufferMinutes:      kindNonNegativeNumber,
	FlagScanMaxAccuracyMeters:  kindPositiveNumber,
	FlagDeviceBindingEnforced:  kindBool,
	FlagQRTokenRequired:        kindBool,
	FlagDisableAuditPublishing: kindBool,
}

// CheckValue verifies that value has the right type for key.
func CheckValue(key string, value any) error {
	k, ok := knownFlags[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}
	switch k {
	case kindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: %s must be a boolean", ErrInvalidValue, key)
		}
	case kindNonNegativeNumber, kindPositiveNumber:
		n, ok := value.(float64)
		if !ok {
			return fmt.Errorf("%w: %s must be a number", ErrInvalidValue, key)
		}
		if n < 0 || (k == kindPositiveNumber && n == 0) {
			return fmt.Errorf("%w: %s out of range", ErrInvalidValue, key)
		}
	}
	return nil
}

// Defaults are the values used when no override is stored.
type Defaults struct {
	ScanBufferMinutes     int
	ScanMaxAccuracyMeters float64
}

// BuiltinDefaults are the check-in thresholds used when the environment sets
// none.
var BuiltinDefaults = Defaults{
	ScanBufferMinutes:     int(schedule.DefaultBuffer / time.Minute),
	ScanMaxAccuracyMeters: presence.DefaultMaxAccuracyMeters,
}

// DefaultFlags returns the default feature flags for the application.
func DefaultFlags(d Defaults) map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagScanBufferMinutes: {
			Key:       FlagScanBufferMinutes,
			Value:     float64(d.ScanBufferMinutes),
			UpdatedAt: now,
		},
		FlagScanMaxAccuracyMeters: {
			Key:       FlagScanMaxAccuracyMeters,
			Value:     d.ScanMaxAccuracyMeters,
			UpdatedAt: now,
		},
		FlagDeviceBindingEnforced: {
			Key:       FlagDeviceBindingEnforced,
			Value:     true,
			UpdatedAt: now,
		},
		FlagQRTokenRequired: {
			Key:       FlagQRTokenRequired,
			Value:     true,
			UpdatedAt: now,
		},
		FlagDisableAuditPublishing: {
			Key:       FlagDisableAuditPublishing,
			Value:     false,
			UpdatedAt: now,
		},
	}
}
