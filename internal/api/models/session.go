package models

// Rule is a recurrence rule on the wire. Dates are YYYY-MM-DD and times
// HH:MM in the business zone.
type Rule struct {
	Frequency   string   `json:"frequency" validate:"required,oneof=ONE_TIME DAILY WEEKLY MONTHLY CUSTOM_DATES"`
	StartDate   string   `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate     string   `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	WeeklyDays  []int    `json:"weeklyDays,omitempty" validate:"omitempty,dive,gte=0,lte=6"`
	MonthlyDay  int      `json:"monthlyDay,omitempty" validate:"gte=0,lte=31"`
	CustomDates []string `json:"customDates,omitempty" validate:"omitempty,dive,datetime=2006-01-02"`
	StartTime   string   `json:"startTime" validate:"required,datetime=15:04"`
	EndTime     string   `json:"endTime" validate:"required,datetime=15:04"`
}

// Policy is a session's geofence on the wire.
type Policy struct {
	Center        Point   `json:"center"`
	RadiusMeters  float64 `json:"radiusMeters" validate:"gte=0"`
	Mode          string  `json:"mode" validate:"required,oneof=PHYSICAL REMOTE HYBRID"`
	DeviceBinding bool    `json:"deviceBinding"`
}

// SessionUpsertRequest is the body of PUT /v1/admin/sessions/{sessionId}.
type SessionUpsertRequest struct {
	Name           string   `json:"name" validate:"required,max=200"`
	ClassName      string   `json:"className" validate:"max=200"`
	Rule           Rule     `json:"rule"`
	Policy         Policy   `json:"policy"`
	CancelledDates []string `json:"cancelledDates,omitempty" validate:"omitempty,dive,datetime=2006-01-02"`
	CompletedDates []string `json:"completedDates,omitempty" validate:"omitempty,dive,datetime=2006-01-02"`
}

// Geofence is the outline of a session's check-in area.
type Geofence struct {
	Polyline        string  `json:"polyline"`
	RadiusMeters    float64 `json:"radiusMeters"`
	PerimeterMeters float64 `json:"perimeterMeters"`
	Center          Point   `json:"center"`
}

// Session is a session detail.
type Session struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ClassName      string    `json:"className,omitempty"`
	Rule           Rule      `json:"rule"`
	Policy         Policy    `json:"policy"`
	Geofence       *Geofence `json:"geofence,omitempty"`
	CancelledDates []string  `json:"cancelledDates,omitempty"`
	CompletedDates []string  `json:"completedDates,omitempty"`
	CreatedAt      Timestamp `json:"createdAt"`
	UpdatedAt      Timestamp `json:"updatedAt"`
}

// Occurrence is one dated occurrence of a session with its badge.
type Occurrence struct {
	SessionID      string    `json:"sessionId"`
	SessionName    string    `json:"sessionName"`
	ClassName      string    `json:"className,omitempty"`
	Mode           string    `json:"mode"`
	OccurrenceDate string    `json:"occurrenceDate"`
	StartInstant   Timestamp `json:"startInstant"`
	EndInstant     Timestamp `json:"endInstant"`
	Status         string    `json:"status"`
	IsToday        bool      `json:"isToday"`
	IsCancelled    bool      `json:"isCancelled"`
	IsCompleted    bool      `json:"isCompleted"`
}

// PagedOccurrences is the response of GET /v1/sessions.
type PagedOccurrences struct {
	Items []Occurrence      `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// QRToken is a freshly issued scan token.
type QRToken struct {
	Token      string    `json:"token"`
	SessionID  string    `json:"sessionId"`
	Date       string    `json:"date"`
	ExpiresAt  Timestamp `json:"expiresAt"`
	TTLSeconds int       `json:"ttlSeconds"`
}
