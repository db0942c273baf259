package models

import (
	"encoding/json"
	"net/http"
)

// ProblemBase prefixes every problem type URI.
const ProblemBase = "https://api.rollcall.app/problems/"

// Problem types. The path segment is stable; clients may switch on it.
const (
	ProblemTypeValidation       = ProblemBase + "validation-error"
	ProblemTypeUnauthorized     = ProblemBase + "unauthorized"
	ProblemTypeForbidden        = ProblemBase + "forbidden"
	ProblemTypeNotFound         = ProblemBase + "not-found"
	ProblemTypeSessionNotFound  = ProblemBase + "session-not-found"
	ProblemTypeMethod           = ProblemBase + "method-not-allowed"
	ProblemTypeUnsupportedMedia = ProblemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests  = ProblemBase + "too-many-requests"
	ProblemTypeTLSRequired      = ProblemBase + "tls-required"
	ProblemTypeCalendar         = ProblemBase + "calendar-inconsistency"
	ProblemTypeInternal         = ProblemBase + "internal-error"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points at one invalid request field, using the JSON path of
// the field (for example "rule.startTime").
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewProblem creates a Problem with no detail.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail sets Detail.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance sets Instance, normally the request path.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors sets the field errors.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write serializes the problem with its status code. The trace ID is
// echoed as X-Request-Id.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func newWithDetail(problemType, title string, status int, traceID, detail string) *Problem {
	return NewProblem(problemType, title, status, traceID).WithDetail(detail)
}

// NewBadRequest is a 400 carrying field errors.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return newWithDetail(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID, detail).WithErrors(errors)
}

// NewUnauthorized is a 401 for a missing or rejected bearer token.
func NewUnauthorized(traceID, detail string) *Problem {
	return newWithDetail(ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, traceID, detail)
}

// NewForbidden is a 403 for a caller whose role lacks a capability.
func NewForbidden(traceID, detail string) *Problem {
	return newWithDetail(ProblemTypeForbidden, "Forbidden", http.StatusForbidden, traceID, detail)
}

// NewNotFound is a generic 404.
func NewNotFound(traceID, detail string) *Problem {
	return newWithDetail(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID, detail)
}

// NewSessionNotFound is a 404 naming the missing session when known.
func NewSessionNotFound(traceID, sessionID string) *Problem {
	detail := "session not found"
	if sessionID != "" {
		detail = "no session with id " + sessionID
	}
	return newWithDetail(ProblemTypeSessionNotFound, "Session not found", http.StatusNotFound, traceID, detail)
}

// NewMethodNotAllowed is a 405.
func NewMethodNotAllowed(traceID, method string) *Problem {
	return newWithDetail(ProblemTypeMethod, "Method not allowed", http.StatusMethodNotAllowed, traceID,
		method+" is not supported on this resource")
}

// NewUnsupportedMediaType is a 415 for a body that is not JSON.
func NewUnsupportedMediaType(traceID, got string) *Problem {
	return newWithDetail(ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType, traceID,
		"Content-Type must be application/json, got "+got)
}

// NewTooManyRequests is a 429.
func NewTooManyRequests(traceID, detail string) *Problem {
	return newWithDetail(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID, detail)
}

// NewTLSRequired is a 403 for plain HTTP behind a TLS-terminating proxy.
func NewTLSRequired(traceID string) *Problem {
	return newWithDetail(ProblemTypeTLSRequired, "TLS required", http.StatusForbidden, traceID, "This endpoint requires HTTPS")
}

// NewCalendarInconsistency is a 500 raised when the civil-time engine
// detects a broken invariant. It is never the caller's fault.
func NewCalendarInconsistency(traceID string) *Problem {
	return newWithDetail(ProblemTypeCalendar, "Calendar inconsistency", http.StatusInternalServerError, traceID,
		"internal calendar inconsistency")
}

// NewInternalError is a 500.
func NewInternalError(traceID, detail string) *Problem {
	return newWithDetail(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID, detail)
}
