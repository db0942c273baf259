package session

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryRepository creates a new in-memory session repository.
func NewInMemoryRepository(seed ...*Session) *InMemoryRepository {
	r := &InMemoryRepository{sessions: make(map[string]*Session, len(seed))}
	for _, s := range seed {
		r.sessions[s.ID] = s.Clone()
	}
	return r
}

// Get retrieves a session by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// List retrieves every session ordered by ID.
func (r *InMemoryRepository) List(_ context.Context) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	slices.SortFunc(out, func(a, b *Session) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Upsert creates or replaces a session.
func (r *InMemoryRepository) Upsert(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[s.ID]; ok {
		s.CreatedAt = prev.CreatedAt
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
