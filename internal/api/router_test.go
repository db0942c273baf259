package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/rollcall/internal/api"
	"github.com/rollcall/rollcall/internal/api/handler"
	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/attendance"
	"github.com/rollcall/rollcall/internal/auth"
	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/featureflags"
	"github.com/rollcall/rollcall/internal/geo"
	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/qrtoken"
	"github.com/rollcall/rollcall/internal/resilience"
	"github.com/rollcall/rollcall/internal/schedule"
	"github.com/rollcall/rollcall/internal/session"
)

var (
	student = auth.Principal{UserID: "stu_asha", Role: auth.RoleStudent}
	teacher = auth.Principal{UserID: "tch_rao", Role: auth.RoleTeacher}
	admin   = auth.Principal{UserID: "adm_root", Role: auth.RoleAdmin}

	campus = geo.Point{Lat: 12.9716, Lng: 77.5946}
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	router http.Handler
	jwt    *auth.JWTService
	audit  *attendance.InMemoryAuditRepository
}

// newTestEnv wires the API against in-memory stores. The business clock is
// fixed at Wednesday 2026-01-07 15:15 IST, inside the lecture.
func newTestEnv(t *testing.T, checks ...handler.Check) *testEnv {
	t.Helper()

	now := time.Date(2026, time.January, 7, 15, 15, 0, 0, civiltime.MustEngine(civiltime.DefaultZone, nil).Location())
	engine := civiltime.MustEngine(civiltime.DefaultZone, civiltime.FixedClock(now))
	logger := zerolog.New(io.Discard)

	jwt := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://id.rollcall.test",
		Audience:   "rollcall-api",
	})
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     logger,
	})
	sessions := session.NewService(session.ServiceConfig{
		Repository: session.NewInMemoryRepository(&session.Session{
			ID:        "ses_lecture",
			Name:      "Data Structures",
			ClassName: "CS-201",
			Rule: schedule.Rule{
				Frequency: schedule.FrequencyDaily,
				StartDate: civiltime.MustDate(2026, time.January, 1),
				StartTime: "15:00",
				EndTime:   "16:00",
			},
			Policy: presence.Policy{Center: campus, RadiusMeters: 100, Mode: presence.ModePhysical},
		}),
		Engine: engine,
		Buffer: flags,
		Logger: logger,
	})
	qr := qrtoken.NewIssuer(qrtoken.Config{SigningKey: "qr-test-key", Issuer: "rollcall-test", Clock: civiltime.FixedClock(now)})
	store := attendance.NewInMemoryStore()
	audit := attendance.NewInMemoryAuditRepository()

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2026-01-01T00:00:00Z",
		Logger:    logger,
		Tokens:    jwt,
		Attendance: attendance.NewService(attendance.ServiceConfig{
			Sessions: sessions,
			Engine:   engine,
			Policy:   flags,
			Tokens:   qr,
			Records:  store,
			Bindings: store,
			Audit:    audit,
			Logger:   logger,
		}),
		Sessions: sessions,
		QR:       qr,
		Flags:    flags,
		Registry: resilience.NewRegistry(),
		Checks:   checks,
	})

	return &testEnv{router: router, jwt: jwt, audit: audit}
}

func (e *testEnv) do(t *testing.T, method, path string, as *auth.Principal, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		token, _, err := e.jwt.GenerateAccessToken(*as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func scanBody(token string, p geo.Point) map[string]any {
	return map[string]any{
		"sessionId":    "ses_lecture",
		"qrToken":      token,
		"userLocation": map[string]float64{"lat": p.Lat, "lng": p.Lng},
		"accuracy":     12,
		"deviceId":     "dev_pixel",
	}
}

func (e *testEnv) qrToken(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/v1/sessions/ses_lecture/qr", &teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[models.QRToken](t, rec).Token
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/ops/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	health := decodeBody[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodGet, "/v1/ops/ready", nil, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.HealthStatusOK, decodeBody[models.Readiness](t, rec).Status)
	})

	t.Run("store down", func(t *testing.T) {
		env := newTestEnv(t, handler.Check{Name: "postgres", Pinger: failingPinger{}})

		rec := env.do(t, http.MethodGet, "/v1/ops/ready", nil, nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		ready := decodeBody[models.Readiness](t, rec)
		assert.Equal(t, models.HealthStatusFail, ready.Status)
		require.Len(t, ready.Subsystems, 1)
		assert.Equal(t, "postgres", ready.Subsystems[0].Name)
		assert.Equal(t, models.HealthStatusFail, ready.Subsystems[0].Status)
	})
}

func TestRouter_Authorization(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		as         *auth.Principal
		body       any
		wantStatus int
	}{
		{name: "anonymous listing", method: http.MethodGet, path: "/v1/sessions", wantStatus: http.StatusUnauthorized},
		{name: "anonymous scan", method: http.MethodPost, path: "/v1/attendance/scan", body: map[string]any{}, wantStatus: http.StatusUnauthorized},
		{name: "teacher cannot scan", method: http.MethodPost, path: "/v1/attendance/scan", as: &teacher, body: map[string]any{}, wantStatus: http.StatusForbidden},
		{name: "student cannot present", method: http.MethodGet, path: "/v1/sessions/ses_lecture/qr", as: &student, wantStatus: http.StatusForbidden},
		{name: "teacher cannot manage", method: http.MethodPut, path: "/v1/admin/sessions/ses_lecture", as: &teacher, body: map[string]any{}, wantStatus: http.StatusForbidden},
		{name: "teacher cannot touch flags", method: http.MethodGet, path: "/v1/admin/feature-flags", as: &teacher, wantStatus: http.StatusForbidden},
		{name: "student lists sessions", method: http.MethodGet, path: "/v1/sessions", as: &student, wantStatus: http.StatusOK},
	}

	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.as, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_Scan(t *testing.T) {
	env := newTestEnv(t)
	token := env.qrToken(t)

	rec := env.do(t, http.MethodPost, "/v1/attendance/scan", &student, scanBody(token, campus))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[models.ScanResponse](t, rec)
	assert.Equal(t, "MARKED", resp.Status)
	assert.Equal(t, "ses_lecture", resp.SessionID)
	assert.Equal(t, "2026-01-07", resp.SessionDate)
	assert.Equal(t, "LIVE", resp.SessionStatus)
	assert.NotEmpty(t, resp.RecordID)

	again := decodeBody[models.ScanResponse](t, env.do(t, http.MethodPost, "/v1/attendance/scan", &student, scanBody(token, campus)))
	assert.Equal(t, "ALREADY_MARKED", again.Status)
	assert.Equal(t, resp.RecordID, again.RecordID)

	assert.Len(t, env.audit.Events(), 2)
}

func TestRouter_Scan_PolicyFailureIsOK(t *testing.T) {
	env := newTestEnv(t)
	far := geo.Point{Lat: campus.Lat + 0.01, Lng: campus.Lng}

	rec := env.do(t, http.MethodPost, "/v1/attendance/scan", &student, scanBody(env.qrToken(t), far))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[models.ScanResponse](t, rec)
	assert.Equal(t, "FAILED", resp.Status)
	assert.Equal(t, "OUT_OF_RANGE", resp.Reason)
	assert.Empty(t, resp.RecordID)
}

func TestRouter_Scan_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	token := env.qrToken(t)

	badLat := scanBody(token, campus)
	badLat["userLocation"] = map[string]float64{"lat": 123, "lng": 77.5}

	noTarget := scanBody("", campus)
	delete(noTarget, "sessionId")
	delete(noTarget, "qrToken")

	noAccuracy := scanBody(token, campus)
	delete(noAccuracy, "accuracy")

	unknownField := scanBody(token, campus)
	unknownField["seat"] = "A1"

	tests := []struct {
		name      string
		body      any
		wantField string
	}{
		{name: "latitude out of range", body: badLat, wantField: "userLocation.lat"},
		{name: "neither session nor token", body: noTarget, wantField: "sessionId"},
		{name: "location without accuracy", body: noAccuracy, wantField: "accuracy"},
		{name: "unknown field", body: unknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/attendance/scan", &student, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			problem := decodeBody[models.Problem](t, rec)
			if tt.wantField == "" {
				return
			}
			fields := make([]string, 0, len(problem.Errors))
			for _, fe := range problem.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestRouter_Scan_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	body := scanBody("", campus)
	body["sessionId"] = "ses_missing"
	delete(body, "qrToken")

	rec := env.do(t, http.MethodPost, "/v1/attendance/scan", &student, body)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Scan_RequiresJSON(t *testing.T) {
	env := newTestEnv(t)
	token, _, err := env.jwt.GenerateAccessToken(student)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/attendance/scan", bytes.NewBufferString("sessionId=ses_lecture"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_ListOccurrences(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/sessions?from=2026-01-06&to=2026-01-08", &student, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	page := decodeBody[models.PagedOccurrences](t, rec)
	assert.Equal(t, models.PagedResponseMeta{From: "2026-01-06", To: "2026-01-08", Count: 3}, page.Meta)
	require.Len(t, page.Items, 3)

	statuses := map[string]string{}
	for _, item := range page.Items {
		statuses[item.OccurrenceDate] = item.Status
	}
	assert.Equal(t, map[string]string{
		"2026-01-06": "PAST",
		"2026-01-07": "LIVE",
		"2026-01-08": "UPCOMING",
	}, statuses)
}

func TestRouter_ListOccurrences_BadRange(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
	}{
		{name: "malformed date", query: "?from=07-01-2026"},
		{name: "reversed", query: "?from=2026-01-08&to=2026-01-07"},
		{name: "too long", query: "?from=2026-01-01&to=2026-06-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/v1/sessions"+tt.query, &student, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_GetSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/sessions/ses_lecture", &student, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sess := decodeBody[models.Session](t, rec)
	assert.Equal(t, "Data Structures", sess.Name)
	assert.Equal(t, "DAILY", sess.Rule.Frequency)
	require.NotNil(t, sess.Geofence)
	assert.NotEmpty(t, sess.Geofence.Polyline)
	// The drawn polygon sits just inside the 100 m circle.
	assert.InDelta(t, 2*math.Pi*100, sess.Geofence.PerimeterMeters, 1)
	assert.Less(t, sess.Geofence.PerimeterMeters, 2*math.Pi*100)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/sessions/ses_missing", &student, nil).Code)
}

func TestRouter_QRImage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/sessions/ses_lecture/qr.png?size=200", &teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/sessions/ses_lecture/qr.png?size=5000", &teacher, nil).Code)
}

func TestRouter_UpsertSession(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"name": "Operating Systems",
		"rule": map[string]any{
			"frequency":  "WEEKLY",
			"startDate":  "2026-01-05",
			"weeklyDays": []int{1, 3},
			"startTime":  "22:00",
			"endTime":    "01:00",
		},
		"policy": map[string]any{"mode": "REMOTE"},
	}

	rec := env.do(t, http.MethodPut, "/v1/admin/sessions/ses_os", &admin, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sess := decodeBody[models.Session](t, rec)
	assert.Equal(t, "ses_os", sess.ID)
	assert.Nil(t, sess.Geofence)

	got := env.do(t, http.MethodGet, "/v1/sessions/ses_os", &student, nil)
	assert.Equal(t, http.StatusOK, got.Code)

	body["rule"].(map[string]any)["startTime"] = "25:00"
	bad := env.do(t, http.MethodPut, "/v1/admin/sessions/ses_os", &admin, body)
	require.Equal(t, http.StatusBadRequest, bad.Code)
	problem := decodeBody[models.Problem](t, bad)
	require.NotEmpty(t, problem.Errors)
	assert.Equal(t, "rule.startTime", problem.Errors[0].Field)
}

func TestRouter_FeatureFlags(t *testing.T) {
	env := newTestEnv(t)

	list := env.do(t, http.MethodGet, "/v1/admin/feature-flags", &admin, nil)
	require.Equal(t, http.StatusOK, list.Code)
	flags := decodeBody[featureflags.FlagList](t, list)
	require.NotEmpty(t, flags.Items)
	assert.Equal(t, featureflags.FlagDeviceBindingEnforced, flags.Items[0].Key)

	update := map[string]any{
		"updates": []map[string]any{{"key": featureflags.FlagScanBufferMinutes, "value": 20}},
		"reason":  "exam week",
	}
	rec := env.do(t, http.MethodPut, "/v1/admin/feature-flags", &admin, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	update["updates"] = []map[string]any{{"key": "no_such_flag", "value": true}}
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/v1/admin/feature-flags", &admin, update).Code)

	inv := env.do(t, http.MethodPost, "/v1/admin/feature-flags/invalidate", &admin, nil)
	assert.Equal(t, http.StatusNoContent, inv.Code)

	one := env.do(t, http.MethodGet, "/v1/admin/feature-flags/"+featureflags.FlagScanBufferMinutes, &admin, nil)
	require.Equal(t, http.StatusOK, one.Code, one.Body.String())
	state := decodeBody[featureflags.FlagState](t, one)
	assert.True(t, state.Overridden)
	assert.Equal(t, 20.0, state.Value)

	reset := env.do(t, http.MethodDelete, "/v1/admin/feature-flags/"+featureflags.FlagScanBufferMinutes, &admin, nil)
	assert.Equal(t, http.StatusNoContent, reset.Code)

	state = decodeBody[featureflags.FlagState](t, env.do(t, http.MethodGet, "/v1/admin/feature-flags/"+featureflags.FlagScanBufferMinutes, &admin, nil))
	assert.False(t, state.Overridden)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/admin/feature-flags/no_such_flag", &admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, "/v1/admin/feature-flags/"+featureflags.FlagScanBufferMinutes, &teacher, nil).Code)
}

func TestRouter_RequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/ops/health", nil, nil)

	assert.Contains(t, rec.Header().Get("X-Request-Id"), "req_")
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/nonexistent", &student, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	problem := decodeBody[models.Problem](t, rec)
	assert.Equal(t, models.ProblemTypeNotFound, problem.Type)
	assert.Equal(t, "/v1/nonexistent", problem.Instance)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/v1/ops/health", nil, nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
