package attendance

import (
	"context"
	"sync"
)

// InMemoryStore is an in-memory RecordStore and BindingStore.
// This is intended for testing and local runs.
type InMemoryStore struct {
	mu       sync.Mutex
	records  map[RecordKey]*Record
	bindings map[string]*DeviceBinding
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:  make(map[RecordKey]*Record),
		bindings: make(map[string]*DeviceBinding),
	}
}

// Get retrieves the record for key.
func (s *InMemoryStore) Get(_ context.Context, key RecordKey) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cpy := *rec
	return &cpy, nil
}

// Insert stores rec unless a record with the same key exists.
func (s *InMemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if _, ok := s.records[key]; ok {
		return ErrRecordExists
	}
	cpy := *rec
	s.records[key] = &cpy
	return nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// GetBinding retrieves the binding of a participant.
func (s *InMemoryStore) GetBinding(_ context.Context, participantID string) (*DeviceBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[participantID]
	if !ok {
		return nil, ErrBindingNotFound
	}
	cpy := *b
	return &cpy, nil
}

// Bind stores b unless the participant is already bound.
func (s *InMemoryStore) Bind(_ context.Context, b *DeviceBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bindings[b.ParticipantID]; ok {
		return ErrBindingExists
	}
	cpy := *b
	s.bindings[b.ParticipantID] = &cpy
	return nil
}

var (
	_ RecordStore  = (*InMemoryStore)(nil)
	_ BindingStore = (*InMemoryStore)(nil)
)
