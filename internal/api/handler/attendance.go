package handler

import (
	"net/http"

	"github.com/rollcall/rollcall/internal/api/middleware"
	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/api/response"
	"github.com/rollcall/rollcall/internal/attendance"
	"github.com/rollcall/rollcall/internal/geo"
	"github.com/rollcall/rollcall/internal/presence"
)

// AttendanceHandler handles check-in scans.
type AttendanceHandler struct {
	service *attendance.Service
}

// NewAttendanceHandler creates a new AttendanceHandler.
func NewAttendanceHandler(service *attendance.Service) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// Scan handles POST /v1/attendance/scan. Every decided outcome, including
// FAILED, is a 200.
func (h *AttendanceHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if !decode(w, r, &req) {
		return
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = r.UserAgent()
	}

	cmd := attendance.ScanCommand{
		ParticipantID: middleware.GetUserID(r.Context()),
		SessionID:     req.SessionID,
		QRToken:       req.QRToken,
		DeviceID:      req.DeviceID,
		UserAgent:     userAgent,
		ReportedAt:    req.Timestamp.Time(),
		Channel:       presence.Channel(req.Channel),
	}
	if req.UserLocation != nil {
		loc := &presence.Location{Point: geo.Point{Lat: req.UserLocation.Lat, Lng: req.UserLocation.Lng}}
		if req.Accuracy != nil {
			loc.AccuracyMeters = *req.Accuracy
		}
		cmd.Location = loc
	}

	out, err := h.service.Scan(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, scanResponse(out))
}

func scanResponse(out *attendance.ScanOutcome) models.ScanResponse {
	resp := models.ScanResponse{
		Status:         string(out.Result.Outcome),
		Reason:         string(out.Result.Reason),
		Message:        out.Message,
		SessionID:      out.SessionID,
		SessionName:    out.SessionName,
		ClassName:      out.ClassName,
		SessionStatus:  string(out.Status),
		RecordID:       out.RecordID,
		DistanceMeters: out.Result.DistanceMeters,
		AccuracyMeters: out.Result.AccuracyMeters,
	}
	if out.SessionDate != nil {
		resp.SessionDate = out.SessionDate.String()
	}
	return resp
}
