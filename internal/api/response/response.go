// Package response writes JSON bodies, images and problem details.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rollcall/rollcall/internal/api/middleware"
	"github.com/rollcall/rollcall/internal/api/models"
)

func withRequestID(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
}

// JSON writes data as application/json. A nil data writes headers only.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	withRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// PNG writes an image that must not be cached, since it encodes a
// short-lived token.
func PNG(w http.ResponseWriter, r *http.Request, img []byte) {
	withRequestID(w, r)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// NoContent writes 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	withRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Error writes problem with the request path as its instance.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// BadRequest writes a 400 with optional field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(traceID(r), detail, errors))
}

// NotFound writes a generic 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(traceID(r), detail))
}

// RouteNotFound is the router's fallback for unknown paths.
func RouteNotFound(w http.ResponseWriter, r *http.Request) {
	NotFound(w, r, "no route for "+r.URL.Path)
}

// MethodNotAllowed is the router's fallback for known paths.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Error(w, r, models.NewMethodNotAllowed(traceID(r), r.Method))
}

// SessionNotFound writes a 404 naming the {sessionId} route parameter when
// the route has one.
func SessionNotFound(w http.ResponseWriter, r *http.Request) {
	Error(w, r, models.NewSessionNotFound(traceID(r), chi.URLParam(r, "sessionId")))
}

// CalendarInconsistency writes the 500 reserved for broken civil-time
// invariants.
func CalendarInconsistency(w http.ResponseWriter, r *http.Request) {
	Error(w, r, models.NewCalendarInconsistency(traceID(r)))
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(traceID(r), detail))
}
