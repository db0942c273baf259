// Package handler provides HTTP handlers for the rollcall API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rollcall/rollcall/internal/api/models"
	"github.com/rollcall/rollcall/internal/api/response"
	"github.com/rollcall/rollcall/internal/resilience"
)

const readinessTimeout = 2 * time.Second

// Pinger is a backing store that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is a named readiness probe.
type Check struct {
	Name   string
	Pinger Pinger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	checks    []Check
	registry  *resilience.Registry
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. Checks with a nil Pinger are
// skipped.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry, checks ...Check) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		checks:    checks,
		registry:  registry,
		now:       time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. A failed store makes the
// service unready; an open circuit only degrades it.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	ready := models.Readiness{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: make([]models.SubsystemStatus, 0, len(h.checks)),
	}

	for _, c := range h.checks {
		if c.Pinger == nil {
			continue
		}
		sub := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err := c.Pinger.Ping(ctx); err != nil {
			detail := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
			ready.Status = models.HealthStatusFail
		}
		ready.Subsystems = append(ready.Subsystems, sub)
	}

	if h.registry != nil {
		for _, dh := range h.registry.GetAllHealth() {
			dep := dependencyStatus(dh)
			if dep.Status != models.HealthStatusOK && ready.Status == models.HealthStatusOK {
				ready.Status = models.HealthStatusDegraded
			}
			ready.Dependencies = append(ready.Dependencies, dep)
		}
	}

	status := http.StatusOK
	if ready.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, ready)
}

func dependencyStatus(dh *resilience.DependencyHealth) models.DependencyStatus {
	dep := models.DependencyStatus{Name: dh.Name, Status: models.HealthStatusOK}
	switch {
	case dh.IsUnhealthy():
		dep.Status = models.HealthStatusFail
	case dh.IsDegraded():
		dep.Status = models.HealthStatusDegraded
	}
	if dh.LastSuccessAt != nil {
		ts := models.Timestamp(*dh.LastSuccessAt)
		dep.LastSuccessAt = &ts
	}
	if dh.LastFailureAt != nil {
		ts := models.Timestamp(*dh.LastFailureAt)
		dep.LastFailureAt = &ts
	}
	if dh.LastError != "" {
		msg := dh.LastError
		dep.Message = &msg
	}
	return dep
}
