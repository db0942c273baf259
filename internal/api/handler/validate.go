package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rollcall/rollcall/internal/api/middleware"
	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/api/response"
	"github.com/rollcall/rollcall/internal/attendance"
	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/schedule"
	"github.com/rollcall/rollcall/internal/session"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		response.BadRequest(w, r, "request validation failed", fieldErrors(err))
		return false
	}
	return true
}

// fieldErrors converts validator errors into problem field errors keyed by
// the JSON path, without the root struct name.
func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Field: "body", Message: err.Error()}}
	}

	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out = append(out, models.FieldError{Field: field, Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return fmt.Sprintf("is required with %s", lowerFirst(fe.Param()))
	case "required_without":
		return fmt.Sprintf("is required when %s is absent", lowerFirst(fe.Param()))
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "datetime":
		return "must match " + layoutName(fe.Param())
	default:
		return "is invalid"
	}
}

func layoutName(layout string) string {
	switch layout {
	case "2006-01-02":
		return "YYYY-MM-DD"
	case "15:04":
		return "HH:MM"
	default:
		return layout
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// writeError maps service errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		attendanceErr *attendance.ValidationError
		presenceErr   *presence.ValidationError
		sessionErr    *session.ValidationError
		scheduleErr   *schedule.ValidationError
	)

	switch {
	case errors.As(err, &attendanceErr):
		response.BadRequest(w, r, "request validation failed", attendanceErr.Errors)
	case errors.As(err, &presenceErr):
		response.BadRequest(w, r, "request validation failed", presenceErr.Errors)
	case errors.As(err, &sessionErr):
		response.BadRequest(w, r, "request validation failed", sessionErr.Errors)
	case errors.As(err, &scheduleErr):
		response.BadRequest(w, r, "request validation failed", scheduleErr.Errors)
	case errors.Is(err, session.ErrInvalidRange):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, session.ErrSessionNotFound):
		response.SessionNotFound(w, r)
	case errors.Is(err, civiltime.ErrInvariantViolation):
		middleware.LoggerFrom(r.Context()).Error().Err(err).Msg("calendar invariant violated")
		response.CalendarInconsistency(w, r)
	default:
		middleware.LoggerFrom(r.Context()).Error().Err(err).Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
