package featureflags

import (
	"context"
	"maps"
	"sync"
)

// InMemoryRepository keeps overrides for single-process runs and tests.
// Flags are stored by value so callers cannot mutate what was saved.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{flags: map[string]Flag{}}
}

func (r *InMemoryRepository) GetFlag(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	flag, ok := r.flags[key]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrFlagNotFound
	}
	return &flag, nil
}

func (r *InMemoryRepository) GetAllFlags(context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	snapshot := maps.Clone(r.flags)
	r.mu.RUnlock()

	out := make(map[string]*Flag, len(snapshot))
	for key, flag := range snapshot {
		out[key] = &flag
	}
	return out, nil
}

func (r *InMemoryRepository) SetFlags(_ context.Context, flags []*Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, flag := range flags {
		r.flags[flag.Key] = *flag
	}
	return nil
}

func (r *InMemoryRepository) DeleteFlag(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.flags, key)
	r.mu.Unlock()
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
