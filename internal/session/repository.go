package session

import "context"

// Repository defines the interface for session storage.
type Repository interface {
	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*Session, error)

	// List retrieves every session ordered by ID.
	List(ctx context.Context) ([]*Session, error)

	// Upsert creates or replaces a session.
	Upsert(ctx context.Context, s *Session) error
}
