package featureflags

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rollcall/rollcall/internal/presence"
	"github.com/rollcall/rollcall/internal/schedule"
)

// DefaultCacheTTL is how long a loaded set of overrides is trusted.
const DefaultCacheTTL = time.Minute

// reloadRetryDelay bounds how often a failing repository is retried.
const reloadRetryDelay = 5 * time.Second

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration
	DefaultFlags map[string]*Flag

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service resolves policy flags: stored overrides win over defaults.
//
// Overrides are loaded as one snapshot and reused until CacheTTL passes.
// A failed reload keeps serving the previous snapshot.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	ttl      time.Duration
	defaults map[string]*Flag
	now      func() time.Time

	mu        sync.RWMutex
	overrides map[string]*Flag
	expiresAt time.Time
}

// NewService creates a service. Missing defaults use the built-in policy.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		ttl:      cmp.Or(cfg.CacheTTL, DefaultCacheTTL),
		defaults: cfg.DefaultFlags,
		now:      cfg.Now,
	}
	if s.defaults == nil {
		s.defaults = DefaultFlags(BuiltinDefaults)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// snapshot returns the current overrides, reloading them when expired.
func (s *Service) snapshot(ctx context.Context) map[string]*Flag {
	now := s.now()

	s.mu.RLock()
	overrides, fresh := s.overrides, now.Before(s.expiresAt)
	s.mu.RUnlock()
	if fresh {
		return overrides
	}

	loaded, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Bool("stale", overrides != nil).Msg("failed to load feature flags")
		s.mu.Lock()
		s.expiresAt = now.Add(min(s.ttl, reloadRetryDelay))
		s.mu.Unlock()
		return overrides
	}

	s.mu.Lock()
	s.overrides = loaded
	s.expiresAt = now.Add(s.ttl)
	s.mu.Unlock()
	return loaded
}

// GetFlag returns the effective flag, or nil for a key with neither an
// override nor a default.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag, ok := s.snapshot(ctx)[key]; ok {
		return flag
	}
	return s.defaults[key]
}

// GetAllFlags returns every effective flag keyed by name.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	out := maps.Clone(s.defaults)
	maps.Copy(out, s.snapshot(ctx))
	return out
}

// List returns the effective flags sorted by key.
func (s *Service) List(ctx context.Context) []Flag {
	all := s.GetAllFlags(ctx)
	list := make([]Flag, 0, len(all))
	for _, f := range all {
		list = append(list, *f)
	}
	slices.SortFunc(list, func(a, b Flag) int { return cmp.Compare(a.Key, b.Key) })
	return list
}

// Inspect reads one flag straight from storage, bypassing the cache, and
// reports whether the value is an override.
func (s *Service) Inspect(ctx context.Context, key string) (FlagState, error) {
	def, known := s.defaults[key]
	if !known {
		return FlagState{}, fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}

	stored, err := s.repo.GetFlag(ctx, key)
	switch {
	case err == nil:
		return FlagState{Flag: *stored, Overridden: true, Default: def.Value}, nil
	case errors.Is(err, ErrFlagNotFound):
		return FlagState{Flag: *def, Default: def.Value}, nil
	default:
		return FlagState{}, err
	}
}

// SetFlags stores overrides and makes them visible to this replica at once.
// Other replicas see them when their cache expires.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	now := s.now()
	for _, flag := range flags {
		flag.UpdatedAt = now
	}
	if err := s.repo.SetFlags(ctx, flags); err != nil {
		return err
	}

	s.mu.Lock()
	if s.overrides != nil {
		s.overrides = maps.Clone(s.overrides)
		for _, flag := range flags {
			s.overrides[flag.Key] = flag
		}
	}
	s.mu.Unlock()
	return nil
}

// Apply validates and stores a batch of operator updates. Nothing is stored
// when any update is invalid.
func (s *Service) Apply(ctx context.Context, req FlagUpdateRequest) ([]*Flag, error) {
	flags := make([]*Flag, 0, len(req.Updates))
	for _, u := range req.Updates {
		if err := CheckValue(u.Key, u.Value); err != nil {
			return nil, err
		}
		flags = append(flags, &Flag{Key: u.Key, Value: u.Value})
	}

	if err := s.SetFlags(ctx, flags); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("count", len(flags)).
		Str("reason", req.Reason).
		Msg("feature flags updated")
	return flags, nil
}

// Reset removes the override for key so the default applies again.
func (s *Service) Reset(ctx context.Context, key string) error {
	if _, ok := knownFlags[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}
	if err := s.repo.DeleteFlag(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.overrides[key]; ok {
		s.overrides = maps.Clone(s.overrides)
		delete(s.overrides, key)
	}
	s.mu.Unlock()

	s.logger.Info().Str("flag", key).Msg("feature flag reset to default")
	return nil
}

// InvalidateCache forces the next read to reload from storage.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// IsEnabled reports a boolean flag, false when unset.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

// ScanPolicy is the set of check-in thresholds in force at one moment.
type ScanPolicy struct {
	Buffer                time.Duration
	MaxAccuracyMeters     float64
	DeviceBindingEnforced bool
	QRTokenRequired       bool
	AuditDisabled         bool
}

// ScanPolicy reads every check-in threshold.
func (s *Service) ScanPolicy(ctx context.Context) ScanPolicy {
	return ScanPolicy{
		Buffer:                s.ScanBuffer(ctx),
		MaxAccuracyMeters:     s.MaxAccuracyMeters(ctx),
		DeviceBindingEnforced: s.IsDeviceBindingEnforced(ctx),
		QRTokenRequired:       s.IsQRTokenRequired(ctx),
		AuditDisabled:         s.IsAuditPublishingDisabled(ctx),
	}
}

// ScanBuffer is the grace period after an occurrence ends.
func (s *Service) ScanBuffer(ctx context.Context) time.Duration {
	fallback := int(schedule.DefaultBuffer / time.Minute)
	minutes := max(s.GetFlag(ctx, FlagScanBufferMinutes).IntValue(fallback), 0)
	return time.Duration(minutes) * time.Minute
}

func (s *Service) MaxAccuracyMeters(ctx context.Context) float64 {
	return s.GetFlag(ctx, FlagScanMaxAccuracyMeters).Float64Value(presence.DefaultMaxAccuracyMeters)
}

func (s *Service) IsDeviceBindingEnforced(ctx context.Context) bool {
	return s.GetFlag(ctx, FlagDeviceBindingEnforced).BoolValue(true)
}

func (s *Service) IsQRTokenRequired(ctx context.Context) bool {
	return s.GetFlag(ctx, FlagQRTokenRequired).BoolValue(true)
}

func (s *Service) IsAuditPublishingDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableAuditPublishing)
}
