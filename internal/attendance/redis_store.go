package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rollcall/rollcall/internal/civiltime"
)

// Redis store defaults.
const (
	DefaultRedisPrefix     = "rollcall"
	DefaultRecordRetention = 7 * 24 * time.Hour
)

// RedisStoreConfig holds configuration for RedisStore.
type RedisStoreConfig struct {
	Client redis.UniversalClient
	Engine *civiltime.Engine

	// Prefix namespaces every key. Default: "rollcall".
	Prefix string

	// Retention is how long a record outlives the end of its occurrence date.
	Retention time.Duration
}

// RedisStore is a RecordStore and BindingStore on Redis. Records use SET NX
// with an expiry past the occurrence's business day; bindings never expire.
type RedisStore struct {
	client    redis.UniversalClient
	engine    *civiltime.Engine
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a Redis-backed attendance store.
func NewRedisStore(cfg RedisStoreConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRecordRetention
	}
	return &RedisStore{
		client:    cfg.Client,
		engine:    cfg.Engine,
		prefix:    cfg.Prefix,
		retention: cfg.Retention,
	}
}

func (s *RedisStore) recordKey(k RecordKey) string {
	return fmt.Sprintf("%s:attendance:%s:%s:%s", s.prefix, k.SessionID, k.Date, k.ParticipantID)
}

func (s *RedisStore) bindingKey(participantID string) string {
	return s.prefix + ":binding:" + participantID
}

// TTL returns the expiry applied to a record for date.
func (s *RedisStore) TTL(date civiltime.Date) time.Duration {
	ttl := s.engine.DayEnd(date).Add(s.retention).Sub(s.engine.Now())
	if ttl < time.Minute {
		return time.Minute
	}
	return ttl
}

// Get retrieves the record for key.
func (s *RedisStore) Get(ctx context.Context, key RecordKey) (*Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get attendance record %s: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode attendance record %s: %w", key, err)
	}
	return &rec, nil
}

// Insert stores rec unless a record with the same key exists.
func (s *RedisStore) Insert(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode attendance record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.recordKey(rec.Key()), raw, s.TTL(rec.OccurrenceDate)).Result()
	if err != nil {
		return fmt.Errorf("insert attendance record %s: %w", rec.Key(), err)
	}
	if !ok {
		return ErrRecordExists
	}
	return nil
}

// GetBinding retrieves the binding of a participant.
func (s *RedisStore) GetBinding(ctx context.Context, participantID string) (*DeviceBinding, error) {
	raw, err := s.client.Get(ctx, s.bindingKey(participantID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("get device binding: %w", err)
	}

	var b DeviceBinding
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode device binding: %w", err)
	}
	return &b, nil
}

// Bind stores b unless the participant is already bound.
func (s *RedisStore) Bind(ctx context.Context, b *DeviceBinding) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode device binding: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.bindingKey(b.ParticipantID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("insert device binding: %w", err)
	}
	if !ok {
		return ErrBindingExists
	}
	return nil
}

var (
	_ RecordStore  = (*RedisStore)(nil)
	_ BindingStore = (*RedisStore)(nil)
)
