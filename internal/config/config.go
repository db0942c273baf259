// Package config loads runtime configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/rollcall/rollcall/internal/cache"
	"github.com/rollcall/rollcall/internal/civiltime"
	"github.com/rollcall/rollcall/internal/database"
	"github.com/rollcall/rollcall/internal/featureflags"
)

// Record store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

const devSigningKey = "local-dev-signing-key-change-in-production"

// Config holds the runtime configuration of the API and worker.
type Config struct {
	Env  string
	Port string

	// RequireTLS rejects proxied plain-HTTP requests.
	RequireTLS bool

	Telemetry TelemetryConfig
	Database  database.Config
	Redis     cache.Config
	Auth      AuthConfig
	Scan      ScanConfig
	PubSub    PubSubConfig
	RateLimit RateLimitConfig

	// RecordStore selects where attendance records and device bindings live.
	RecordStore string
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool
	OTLPEndpoint   string
	SampleRatio    float64
	MetricInterval time.Duration
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// ScanConfig holds the attendance policy defaults. Runtime overrides come
// from feature flags.
type ScanConfig struct {
	Zone              string
	BufferMinutes     int
	MaxAccuracyMeters float64
	QRSigningKey      string
	QRTokenTTL        time.Duration
}

// PubSubConfig configures the audit topic.
type PubSubConfig struct {
	ProjectID         string
	AuditTopic        string
	AuditSubscription string
}

// Enabled reports whether audit events are published.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.AuditTopic != ""
}

// RateLimitConfig holds requests-per-minute limits.
type RateLimitConfig struct {
	PerIP   int
	PerUser int
}

// Load reads a .env file if present (ENV_FILE overrides the path) and then
// the environment. Invalid numeric values fall back to their defaults with
// a warning.
func Load(log zerolog.Logger) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	env := envOr("APP_ENV", "development")
	l := loader{log: log}

	cfg := Config{
		Env:        env,
		Port:       envOr("APP_PORT", "8080"),
		RequireTLS: os.Getenv("REQUIRE_TLS") == "true",
		Telemetry: TelemetryConfig{
			Enabled:        os.Getenv("OTEL_ENABLED") == "true",
			OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:    l.float("OTEL_TRACES_SAMPLER_ARG", 1),
			MetricInterval: l.duration("OTEL_METRIC_EXPORT_INTERVAL", 15*time.Second),
		},
		Database: database.ConfigFromEnv(),
		Redis: cache.Config{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       l.int("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			SigningKey: os.Getenv("JWT_SIGNING_KEY"),
			Issuer:     envOr("JWT_ISSUER", "https://id.rollcall.app"),
			Audience:   envOr("JWT_AUDIENCE", "rollcall-api"),
		},
		Scan: ScanConfig{
			Zone:              envOr("BUSINESS_TIMEZONE", civiltime.DefaultZone),
			BufferMinutes:     l.int("SCAN_BUFFER_MINUTES", featureflags.BuiltinDefaults.ScanBufferMinutes),
			MaxAccuracyMeters: l.float("SCAN_MAX_ACCURACY_METERS", featureflags.BuiltinDefaults.ScanMaxAccuracyMeters),
			QRSigningKey:      os.Getenv("QR_SIGNING_KEY"),
			QRTokenTTL:        l.duration("QR_TOKEN_TTL", 2*time.Minute),
		},
		PubSub: PubSubConfig{
			ProjectID:         os.Getenv("PUBSUB_PROJECT_ID"),
			AuditTopic:        envOr("PUBSUB_AUDIT_TOPIC", "scan-audit"),
			AuditSubscription: envOr("PUBSUB_AUDIT_SUBSCRIPTION", "scan-audit-worker"),
		},
		RateLimit: RateLimitConfig{
			PerIP:   l.int("RATE_LIMIT_PER_IP", 100),
			PerUser: l.int("RATE_LIMIT_PER_USER", 60),
		},
		RecordStore: envOr("RECORD_STORE", StorePostgres),
	}

	if cfg.Auth.SigningKey == "" {
		if cfg.IsProduction() {
			return Config{}, errors.New("JWT_SIGNING_KEY is required in production")
		}
		cfg.Auth.SigningKey = devSigningKey
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	if cfg.Scan.QRSigningKey == "" {
		cfg.Scan.QRSigningKey = cfg.Auth.SigningKey + ":qr"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks values that have no safe fallback.
func (c Config) Validate() error {
	switch c.RecordStore {
	case StorePostgres, StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("RECORD_STORE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown RECORD_STORE %q", c.RecordStore)
	}
	if c.Scan.BufferMinutes < 0 {
		return errors.New("SCAN_BUFFER_MINUTES must not be negative")
	}
	if c.Scan.MaxAccuracyMeters <= 0 {
		return errors.New("SCAN_MAX_ACCURACY_METERS must be positive")
	}
	if _, err := civiltime.NewEngine(c.Scan.Zone, nil); err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE: %w", err)
	}
	return nil
}

func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || (errors.Is(err, fs.ErrNotExist) && os.Getenv("ENV_FILE") == "") {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type loader struct {
	log zerolog.Logger
}

func (l loader) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.log.Warn().Str("key", key).Str("value", v).Int("fallback", fallback).Msg("invalid integer in environment")
		return fallback
	}
	return n
}

func (l loader) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.log.Warn().Str("key", key).Str("value", v).Float64("fallback", fallback).Msg("invalid number in environment")
		return fallback
	}
	return f
}

func (l loader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.log.Warn().Str("key", key).Str("value", v).Dur("fallback", fallback).Msg("invalid duration in environment")
		return fallback
	}
	return d
}
