package featureflags

import (
	"context"
	"errors"
)

var (
	// ErrFlagNotFound means no override is stored for the key.
	ErrFlagNotFound = errors.New("feature flag not found")
	// ErrUnknownFlag rejects keys the policy does not read.
	ErrUnknownFlag = errors.New("unknown feature flag")
	// ErrInvalidValue rejects values of the wrong JSON type or range.
	ErrInvalidValue = errors.New("invalid feature flag value")
)

// Repository stores operator overrides. Keys without an override fall back
// to the service defaults, so an empty repository is a valid state.
type Repository interface {
	GetFlag(ctx context.Context, key string) (*Flag, error)
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)
	// SetFlags upserts every flag or none.
	SetFlags(ctx context.Context, flags []*Flag) error
	// DeleteFlag is a no-op for keys without an override.
	DeleteFlag(ctx context.Context, key string) error
}
