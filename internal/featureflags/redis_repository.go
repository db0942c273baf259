package featureflags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding all flag overrides.
const DefaultRedisKey = "rollcall:policy_flags"

// RedisRepository stores flags as JSON fields of a single Redis hash so that
// every API replica sees the same overrides.
type RedisRepository struct {
	client redis.UniversalClient
	key    string
}

// NewRedisRepository creates a repository on client. An empty key uses DefaultRedisKey.
func NewRedisRepository(client redis.UniversalClient, key string) *RedisRepository {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRepository{client: client, key: key}
}

type redisFlag struct {
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// GetFlag retrieves a single feature flag by key.
func (r *RedisRepository) GetFlag(ctx context.Context, key string) (*Flag, error) {
	raw, err := r.client.HGet(ctx, r.key, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrFlagNotFound
		}
		return nil, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return decodeRedisFlag(key, raw)
}

// GetAllFlags retrieves all stored feature flags.
func (r *RedisRepository) GetAllFlags(ctx context.Context) (map[string]*Flag, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	flags := make(map[string]*Flag, len(all))
	for k, raw := range all {
		flag, err := decodeRedisFlag(k, []byte(raw))
		if err != nil {
			return nil, err
		}
		flags[k] = flag
	}
	return flags, nil
}

// SetFlags writes all flags in one MULTI/EXEC transaction.
func (r *RedisRepository) SetFlags(ctx context.Context, flags []*Flag) error {
	fields := make([]interface{}, 0, len(flags)*2)
	for _, flag := range flags {
		raw, err := json.Marshal(redisFlag{Value: flag.Value, UpdatedAt: updatedAt(flag)})
		if err != nil {
			return err
		}
		fields = append(fields, flag.Key, raw)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key, fields...)
		return nil
	})
	return err
}

// DeleteFlag removes a feature flag by key.
func (r *RedisRepository) DeleteFlag(ctx context.Context, key string) error {
	return r.client.HDel(ctx, r.key, key).Err()
}

func decodeRedisFlag(key string, raw []byte) (*Flag, error) {
	var rf redisFlag
	if err := json.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("decode flag %s: %w", key, err)
	}
	return &Flag{Key: key, Value: rf.Value, UpdatedAt: rf.UpdatedAt}, nil
}

var _ Repository = (*RedisRepository)(nil)
