// Package main provides the entrypoint for the rollcall API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/rollcall/rollcall/internal/api"
	"github.com/rollcall/rollcall/internal/api/handler"
	"github.com/rollcall/rollcall/internal/api/middleware"
	"github.com/rollcall/rollcall/internal/attendance"
	"github.com/rollcall/rollcall/internal/auth"
	"github.com/rollcall/rollcall/internal/cache"
	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/config"
	"github.com/rollcall/rollcall/internal/database"
	"github.com/rollcall/rollcall/internal/featureflags"
	"github.com/rollcall/rollcall/internal/qrtoken"
	"github.com/rollcall/rollcall/internal/resilience"
	"github.com/rollcall/rollcall/internal/session"
	"github.com/rollcall/rollcall/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type stores struct {
	records  attendance.RecordStore
	bindings attendance.BindingStore
}

func main() {
	const serviceName = "rollcall-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting rollcall API")

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		BusinessZone:   cfg.Scan.Zone,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http metrics")
	}
	scanMetrics, err := attendance.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize scan metrics")
	}

	engine, err := civiltime.NewEngine(cfg.Scan.Zone, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load business timezone")
	}

	var (
		pool   *pgxpool.Pool
		rdb    *cache.Redis
		checks []handler.Check
	)

	if cfg.RecordStore != config.StoreMemory {
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		checks = append(checks, handler.Check{Name: "postgres", Pinger: pool})
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	}

	if cfg.Redis.Addr != "" {
		rdb, err = cache.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to redis")
		}
		defer func() { _ = rdb.Close() }()
		checks = append(checks, handler.Check{Name: "redis", Pinger: rdb})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}

	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: flagRepository(pool, rdb),
		Logger:     log,
		CacheTTL:   time.Minute,
		DefaultFlags: featureflags.DefaultFlags(featureflags.Defaults{
			ScanBufferMinutes:     cfg.Scan.BufferMinutes,
			ScanMaxAccuracyMeters: cfg.Scan.MaxAccuracyMeters,
		}),
	})

	var sessionRepo session.Repository = session.NewInMemoryRepository()
	if pool != nil {
		sessionRepo = session.NewPostgresRepository(pool)
	}
	sessions := session.NewService(session.ServiceConfig{
		Repository: sessionRepo,
		Engine:     engine,
		Buffer:     flags,
		Logger:     log,
	})

	qr := qrtoken.NewIssuer(qrtoken.Config{
		SigningKey: cfg.Scan.QRSigningKey,
		Issuer:     cfg.Auth.Issuer,
		TTL:        cfg.Scan.QRTokenTTL,
	})

	st := recordStores(cfg, pool, rdb, engine)
	log.Info().Str("record_store", cfg.RecordStore).Msg("attendance store selected")

	registry := resilience.NewRegistry()

	var audit attendance.AuditPublisher = attendance.NopPublisher{}
	if cfg.PubSub.Enabled() {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub client")
		}
		defer func() { _ = client.Close() }()

		guardCfg := resilience.DefaultGuardConfig("audit-publisher")
		guardCfg.Registry = registry
		publisher := attendance.NewPubSubPublisher(client, cfg.PubSub.AuditTopic, resilience.NewGuard(guardCfg))
		defer publisher.Stop()
		audit = publisher
		log.Info().Str("topic", cfg.PubSub.AuditTopic).Msg("audit publishing enabled")
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - scan audit events are discarded")
	}

	attendanceService := attendance.NewService(attendance.ServiceConfig{
		Sessions: sessions,
		Engine:   engine,
		Policy:   flags,
		Tokens:   qr,
		Records:  st.records,
		Bindings: st.bindings,
		Audit:    audit,
		Metrics:  scanMetrics,
		Logger:   log,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		RequireTLS:  cfg.RequireTLS,
		Tokens: auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.Auth.SigningKey,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		}),
		Attendance:       attendanceService,
		Sessions:         sessions,
		QR:               qr,
		Flags:            flags,
		Registry:         registry,
		Checks:           checks,
		RateLimitPerIP:   cfg.RateLimit.PerIP,
		RateLimitPerUser: cfg.RateLimit.PerUser,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("zone", engine.Location().String()).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// flagRepository keeps overrides in Redis when available so every replica
// sees the same policy.
func flagRepository(pool *pgxpool.Pool, rdb *cache.Redis) featureflags.Repository {
	switch {
	case rdb != nil:
		return featureflags.NewRedisRepository(rdb.Client, "")
	case pool != nil:
		return featureflags.NewPostgresRepository(pool)
	default:
		return featureflags.NewInMemoryRepository()
	}
}

func recordStores(cfg config.Config, pool *pgxpool.Pool, rdb *cache.Redis, engine *civiltime.Engine) stores {
	switch cfg.RecordStore {
	case config.StoreRedis:
		s := attendance.NewRedisStore(attendance.RedisStoreConfig{Client: rdb.Client, Engine: engine})
		return stores{records: s, bindings: s}
	case config.StoreMemory:
		s := attendance.NewInMemoryStore()
		return stores{records: s, bindings: s}
	default:
		s := attendance.NewPostgresStore(pool)
		return stores{records: s, bindings: s}
	}
}
