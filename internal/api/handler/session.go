package handler

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/api/response"
	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/geo"
	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/qrtoken"
	"github.com/rollcall/rollcall/internal/schedule"
	"github.com/rollcall/rollcall/internal/session"
)

const (
	geofenceSegments = 48
	minPNGSize       = 128
	maxPNGSize       = 1024
)

// SessionHandler handles session listing, detail, QR and admin endpoints.
type SessionHandler struct {
	service *session.Service
	tokens  *qrtoken.Issuer
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(service *session.Service, tokens *qrtoken.Issuer) *SessionHandler {
	return &SessionHandler{service: service, tokens: tokens}
}

// ListOccurrences handles GET /v1/sessions?from=&to=. Both bounds default
// to today in the business zone.
func (h *SessionHandler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	today := h.service.Engine().Today()

	from, ok := dateParam(w, r, "from", today)
	if !ok {
		return
	}
	to, ok := dateParam(w, r, "to", from)
	if !ok {
		return
	}

	views, err := h.service.ListOccurrences(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]models.Occurrence, 0, len(views))
	for _, v := range views {
		items = append(items, models.Occurrence{
			SessionID:      v.SessionID,
			SessionName:    v.SessionName,
			ClassName:      v.ClassName,
			Mode:           string(v.Mode),
			OccurrenceDate: v.Occurrence.Date.String(),
			StartInstant:   models.Timestamp(v.Occurrence.Start),
			EndInstant:     models.Timestamp(v.Occurrence.End),
			Status:         string(v.Status),
			IsToday:        v.IsToday,
			IsCancelled:    v.Occurrence.Cancelled,
			IsCompleted:    v.Occurrence.Completed,
		})
	}

	response.JSON(w, r, http.StatusOK, models.PagedOccurrences{
		Items: items,
		Meta:  models.PagedResponseMeta{From: from.String(), To: to.String(), Count: len(items)},
	})
}

// GetSession handles GET /v1/sessions/{sessionId}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionResponse(sess))
}

// GetQRToken handles GET /v1/sessions/{sessionId}/qr. The token names
// today's occurrence unless ?date= is given.
func (h *SessionHandler) GetQRToken(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.issue(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, models.QRToken{
		Token:      tok.Value,
		SessionID:  tok.SessionID,
		Date:       tok.Date.String(),
		ExpiresAt:  models.Timestamp(tok.ExpiresAt),
		TTLSeconds: int(h.tokens.TTL().Seconds()),
	})
}

// GetQRImage handles GET /v1/sessions/{sessionId}/qr.png.
func (h *SessionHandler) GetQRImage(w http.ResponseWriter, r *http.Request) {
	size := qrtoken.DefaultPNGSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minPNGSize || n > maxPNGSize {
			response.BadRequest(w, r, "invalid size", []models.FieldError{{
				Field:   "size",
				Message: fmt.Sprintf("must be an integer between %d and %d", minPNGSize, maxPNGSize),
			}})
			return
		}
		size = n
	}

	tok, ok := h.issue(w, r)
	if !ok {
		return
	}

	png, err := qrtoken.PNG(tok.Value, size)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.PNG(w, r, png)
}

// UpsertSession handles PUT /v1/admin/sessions/{sessionId}.
func (h *SessionHandler) UpsertSession(w http.ResponseWriter, r *http.Request) {
	var req models.SessionUpsertRequest
	if !decode(w, r, &req) {
		return
	}

	sess, err := sessionFromRequest(chi.URLParam(r, "sessionId"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	stored, err := h.service.Upsert(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionResponse(stored))
}

func (h *SessionHandler) issue(w http.ResponseWriter, r *http.Request) (qrtoken.Token, bool) {
	sess, err := h.service.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, r, err)
		return qrtoken.Token{}, false
	}

	date, ok := dateParam(w, r, "date", h.service.Engine().Today())
	if !ok {
		return qrtoken.Token{}, false
	}

	tok, err := h.tokens.Issue(sess.ID, date)
	if err != nil {
		writeError(w, r, err)
		return qrtoken.Token{}, false
	}
	return tok, true
}

// dateParam reads a YYYY-MM-DD query parameter, writing a 400 when it is
// malformed.
func dateParam(w http.ResponseWriter, r *http.Request, name string, fallback civiltime.Date) (civiltime.Date, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	d, err := civiltime.ParseDate(raw)
	if err != nil {
		response.BadRequest(w, r, "invalid query parameter", []models.FieldError{{Field: name, Message: "must match YYYY-MM-DD"}})
		return civiltime.Date{}, false
	}
	return d, true
}

func sessionResponse(s *session.Session) models.Session {
	resp := models.Session{
		ID:        s.ID,
		Name:      s.Name,
		ClassName: s.ClassName,
		Rule:      ruleResponse(s.Rule),
		Policy: models.Policy{
			Center:        models.Point{Lat: s.Policy.Center.Lat, Lng: s.Policy.Center.Lng},
			RadiusMeters:  s.Policy.RadiusMeters,
			Mode:          string(s.Policy.Mode),
			DeviceBinding: s.Policy.DeviceBinding,
		},
		CancelledDates: dateStrings(s.CancelledDates),
		CompletedDates: dateStrings(s.CompletedDates),
		CreatedAt:      models.Timestamp(s.CreatedAt),
		UpdatedAt:      models.Timestamp(s.UpdatedAt),
	}

	if s.Policy.Mode != presence.ModeRemote && s.Policy.RadiusMeters > 0 {
		outline := geo.Circle(s.Policy.Center, s.Policy.RadiusMeters, geofenceSegments)
		resp.Geofence = &models.Geofence{
			Polyline:        geo.EncodePath(outline),
			RadiusMeters:    s.Policy.RadiusMeters,
			PerimeterMeters: math.Round(geo.PathLength(outline)*10) / 10,
			Center:          resp.Policy.Center,
		}
	}
	return resp
}

func ruleResponse(r schedule.Rule) models.Rule {
	out := models.Rule{
		Frequency:   string(r.Frequency),
		StartDate:   r.StartDate.String(),
		WeeklyDays:  r.WeeklyDays,
		MonthlyDay:  r.MonthlyDay,
		CustomDates: dateStrings(r.CustomDates),
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
	}
	if r.EndDate != nil {
		out.EndDate = r.EndDate.String()
	}
	return out
}

func dateStrings(dates []civiltime.Date) []string {
	if len(dates) == 0 {
		return nil
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	return out
}

// sessionFromRequest converts a validated request. Date fields already
// passed the datetime tag, so parse errors only come from impossible dates
// such as 2026-02-30.
func sessionFromRequest(id string, req models.SessionUpsertRequest) (*session.Session, error) {
	var errs []models.FieldError
	parse := func(field, raw string) civiltime.Date {
		d, err := civiltime.ParseDate(raw)
		if err != nil {
			errs = append(errs, models.FieldError{Field: field, Message: "is not a valid date"})
		}
		return d
	}
	parseAll := func(field string, raw []string) []civiltime.Date {
		if len(raw) == 0 {
			return nil
		}
		out := make([]civiltime.Date, len(raw))
		for i, s := range raw {
			out[i] = parse(fmt.Sprintf("%s[%d]", field, i), s)
		}
		return out
	}

	rule := schedule.Rule{
		Frequency:   schedule.Frequency(req.Rule.Frequency),
		StartDate:   parse("rule.startDate", req.Rule.StartDate),
		WeeklyDays:  req.Rule.WeeklyDays,
		MonthlyDay:  req.Rule.MonthlyDay,
		CustomDates: parseAll("rule.customDates", req.Rule.CustomDates),
		StartTime:   req.Rule.StartTime,
		EndTime:     req.Rule.EndTime,
	}
	if req.Rule.EndDate != "" {
		end := parse("rule.endDate", req.Rule.EndDate)
		rule.EndDate = &end
	}

	sess := &session.Session{
		ID:        id,
		Name:      req.Name,
		ClassName: req.ClassName,
		Rule:      rule,
		Policy: presence.Policy{
			Center:        geo.Point{Lat: req.Policy.Center.Lat, Lng: req.Policy.Center.Lng},
			RadiusMeters:  req.Policy.RadiusMeters,
			Mode:          presence.Mode(req.Policy.Mode),
			DeviceBinding: req.Policy.DeviceBinding,
		},
		CancelledDates: parseAll("cancelledDates", req.CancelledDates),
		CompletedDates: parseAll("completedDates", req.CompletedDates),
	}

	if len(errs) > 0 {
		return nil, &session.ValidationError{Errors: errs}
	}
	return sess, nil
}
