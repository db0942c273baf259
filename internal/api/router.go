// Package api provides the HTTP API for rollcall.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/rollcall/rollcall/internal/api/handler"
	"github.com/rollcall/rollcall/internal/api/middleware"
	"github.com/rollcall/rollcall/internal/api/response"
	"github.com/rollcall/rollcall/internal/attendance"
	"github.com/rollcall/rollcall/internal/auth"
	"github.com/rollcall/rollcall/internal/featureflags"
	"github.com/rollcall/rollcall/internal/qrtoken"
	"github.com/rollcall/rollcall/internal/resilience"
	"github.com/rollcall/rollcall/internal/session"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Tokens     middleware.TokenValidator
	Attendance *attendance.Service
	Sessions   *session.Service
	QR         *qrtoken.Issuer
	Flags      *featureflags.Service

	// Registry and Checks feed the readiness endpoint.
	Registry *resilience.Registry
	Checks   []handler.Check

	// Requests per minute. Zero means the package defaults.
	RateLimitPerIP   int
	RateLimitPerUser int
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "rollcall-api"
	}

	// Order matters: the request ID must exist before tracing and logging,
	// and recovery must sit inside the logger so panics are summarised.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(response.RouteNotFound)
	r.MethodNotAllowed(response.MethodNotAllowed)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.Checks...)
	attendanceHandler := handler.NewAttendanceHandler(cfg.Attendance)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions, cfg.QR)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.Flags)

	authenticate := middleware.Auth(cfg.Tokens)
	perIP := middleware.RateLimitByIP(middleware.PerMinute(cfg.RateLimitPerIP))
	scanLimit := middleware.ScanRateLimit
	if cfg.RateLimitPerUser > 0 {
		scanLimit = middleware.PerMinute(cfg.RateLimitPerUser)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		r.Group(func(r chi.Router) {
			r.Use(perIP)
			r.Use(authenticate)

			r.Route("/attendance", func(r chi.Router) {
				r.Use(middleware.Require(auth.CapScan))
				r.Use(middleware.RateLimitByUser(scanLimit))
				r.Use(middleware.RequireJSON)
				r.Post("/scan", attendanceHandler.Scan)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.With(middleware.Require(auth.CapSessionRead)).Get("/", sessionHandler.ListOccurrences)
				r.Route("/{sessionId}", func(r chi.Router) {
					r.With(middleware.Require(auth.CapSessionRead)).Get("/", sessionHandler.GetSession)

					r.Group(func(r chi.Router) {
						r.Use(middleware.Require(auth.CapSessionPresent))
						r.Get("/qr", sessionHandler.GetQRToken)
						r.Get("/qr.png", sessionHandler.GetQRImage)
					})
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RateLimitByUser(middleware.AdminRateLimit))
				r.Use(middleware.RequireJSON)

				r.With(middleware.Require(auth.CapSessionManage)).Put("/sessions/{sessionId}", sessionHandler.UpsertSession)

				r.Route("/feature-flags", func(r chi.Router) {
					r.Use(middleware.Require(auth.CapFlagsManage))
					r.Get("/", featureFlagsHandler.ListFeatureFlags)
					r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
					r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
					r.Get("/{key}", featureFlagsHandler.GetFeatureFlag)
					r.Delete("/{key}", featureFlagsHandler.ResetFeatureFlag)
				})
			})
		})
	})

	return r
}
