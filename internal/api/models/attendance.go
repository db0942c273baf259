package models

// ScanRequest is the body of POST /v1/attendance/scan. Either SessionID or
// QRToken identifies the session.
type ScanRequest struct {
	SessionID    string      `json:"sessionId" validate:"required_without=QRToken,max=64"`
	QRToken      string      `json:"qrToken" validate:"required_without=SessionID,max=2048"`
	UserLocation *Point      `json:"userLocation" validate:"omitempty"`
	Accuracy     *float64    `json:"accuracy" validate:"required_with=UserLocation,omitempty,gte=0"`
	DeviceID     string      `json:"deviceId" validate:"required,max=128"`
	UserAgent    string      `json:"userAgent" validate:"max=512"`
	Timestamp    EpochMillis `json:"timestamp" validate:"gte=0"`
	Channel      string      `json:"channel" validate:"omitempty,oneof=PHYSICAL REMOTE"`
}

// ScanResponse is the decision on a scan.
type ScanResponse struct {
	Status         string   `json:"status"`
	Reason         string   `json:"reason,omitempty"`
	Message        string   `json:"msg"`
	SessionID      string   `json:"sessionId,omitempty"`
	SessionName    string   `json:"sessionName,omitempty"`
	ClassName      string   `json:"className,omitempty"`
	SessionDate    string   `json:"sessionDate,omitempty"`
	SessionStatus  string   `json:"sessionStatus,omitempty"`
	RecordID       string   `json:"recordId,omitempty"`
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
	AccuracyMeters *float64 `json:"accuracyMeters,omitempty"`
}
