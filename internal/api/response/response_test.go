package response_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/rollcall/internal/api/middleware"
	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/api/response"
)

// serve runs write behind the RequestID middleware so the request carries
// an ID, the way it does in the router.
func serve(t *testing.T, method, path string, write http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	middleware.RequestID(write).ServeHTTP(rec, httptest.NewRequest(method, path, http.NoBody))
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestJSON(t *testing.T) {
	rec := serve(t, http.MethodGet, "/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "LIVE"})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.JSONEq(t, `{"status":"LIVE"}`, rec.Body.String())
}

func TestJSON_NilData(t *testing.T) {
	rec := serve(t, http.MethodGet, "/", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusAccepted, nil)
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestJSON_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody).WithContext(context.Background())

	response.JSON(rec, req, http.StatusOK, map[string]int{"n": 1})

	_, present := rec.Header()[middleware.RequestIDHeader]
	assert.False(t, present)
}

func TestPNG(t *testing.T) {
	img := []byte{0x89, 'P', 'N', 'G'}
	rec := serve(t, http.MethodGet, "/v1/sessions/ses_1/qr.png", func(w http.ResponseWriter, r *http.Request) {
		response.PNG(w, r, img)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, img, rec.Body.Bytes())
}

func TestNoContent(t *testing.T) {
	rec := serve(t, http.MethodPost, "/v1/admin/feature-flags/invalidate", func(w http.ResponseWriter, r *http.Request) {
		response.NoContent(w, r)
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestProblems(t *testing.T) {
	tests := []struct {
		name   string
		write  http.HandlerFunc
		status int
		typ    string
	}{
		{
			name: "bad request",
			write: func(w http.ResponseWriter, r *http.Request) {
				response.BadRequest(w, r, "request validation failed", []models.FieldError{{Field: "sessionId", Message: "required"}})
			},
			status: http.StatusBadRequest,
			typ:    models.ProblemTypeValidation,
		},
		{
			name:   "route not found",
			write:  response.RouteNotFound,
			status: http.StatusNotFound,
			typ:    models.ProblemTypeNotFound,
		},
		{
			name:   "method not allowed",
			write:  response.MethodNotAllowed,
			status: http.StatusMethodNotAllowed,
			typ:    models.ProblemTypeMethod,
		},
		{
			name:   "session not found",
			write:  response.SessionNotFound,
			status: http.StatusNotFound,
			typ:    models.ProblemTypeSessionNotFound,
		},
		{
			name:   "calendar inconsistency",
			write:  response.CalendarInconsistency,
			status: http.StatusInternalServerError,
			typ:    models.ProblemTypeCalendar,
		},
		{
			name: "internal",
			write: func(w http.ResponseWriter, r *http.Request) {
				response.InternalError(w, r, "an unexpected error occurred")
			},
			status: http.StatusInternalServerError,
			typ:    models.ProblemTypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, http.MethodPost, "/v1/attendance/scan", tt.write)

			assert.Equal(t, tt.status, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, "/v1/attendance/scan", p.Instance)
			assert.Equal(t, rec.Header().Get(middleware.RequestIDHeader), p.TraceID)
		})
	}
}

func TestSessionNotFound_NamesRouteParam(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/v1/sessions/{sessionId}", response.SessionNotFound)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/ses_gone", http.NoBody))

	p := decodeProblem(t, rec)
	assert.Equal(t, "no session with id ses_gone", p.Detail)
}

func TestRequestIDPropagation(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", http.NoBody)
	req.Header.Set(middleware.RequestIDHeader, "client-request-123")
	rec := httptest.NewRecorder()

	middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.BadRequest(w, r, "invalid query parameter", nil)
	})).ServeHTTP(rec, req)

	assert.Equal(t, "client-request-123", rec.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "client-request-123", decodeProblem(t, rec).TraceID)
}
