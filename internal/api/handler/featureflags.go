package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rollcall/rollcall/internal/api/middleware"
	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/api/response"
	"github.com/rollcall/rollcall/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags. Values are the
// effective ones: stored overrides merged over defaults.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, featureflags.FlagList{Items: h.service.List(r.Context())})
}

// GetFeatureFlag handles GET /v1/admin/feature-flags/{key}.
func (h *FeatureFlagsHandler) GetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.Inspect(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.writeFlagError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}

// ResetFeatureFlag handles DELETE /v1/admin/feature-flags/{key}.
func (h *FeatureFlagsHandler) ResetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.service.Reset(r.Context(), key); err != nil {
		h.writeFlagError(w, r, err)
		return
	}

	middleware.LoggerFrom(r.Context()).Info().
		Str("actor", middleware.GetUserID(r.Context())).
		Str("flag", key).
		Msg("feature flag reset by operator")
	response.NoContent(w, r)
}

func (h *FeatureFlagsHandler) writeFlagError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, featureflags.ErrUnknownFlag) {
		response.NotFound(w, r, err.Error())
		return
	}
	writeError(w, r, err)
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	if !decode(w, r, &req) {
		return
	}

	flags, err := h.service.Apply(r.Context(), req)
	if err != nil {
		if errors.Is(err, featureflags.ErrUnknownFlag) || errors.Is(err, featureflags.ErrInvalidValue) {
			response.BadRequest(w, r, "invalid flag update", []models.FieldError{{Field: "updates", Message: err.Error()}})
			return
		}
		writeError(w, r, err)
		return
	}

	middleware.LoggerFrom(r.Context()).Info().
		Str("actor", middleware.GetUserID(r.Context())).
		Int("count", len(flags)).
		Msg("feature flags changed by operator")

	list := featureflags.FlagList{Items: make([]featureflags.Flag, 0, len(flags))}
	for _, f := range flags {
		list.Items = append(list.Items, *f)
	}
	response.JSON(w, r, http.StatusOK, list)
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
