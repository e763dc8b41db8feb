package batchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// Alternates sets are written by whichever worker loses the leg race, so the
// add and the TTL land in one round trip; a set that outlives its batch keys
// would otherwise linger unbounded.
var addToSetScript = redis.NewScript(`
local added = redis.call("SADD", KEYS[1], ARGV[1])
if tonumber(ARGV[2]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return added
`)

// RedisStore backs the batch store with Redis. Values are JSON, set
// membership uses native sets, and first-writer-wins relies on SET NX so
// concurrent writers to the same logical leg never race.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %q: %w", key, err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) PutNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value for %q: %w", key, err)
	}
	won, err := s.client.SetNX(ctx, key, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to putnx %q: %w", key, err)
	}
	return won, nil
}

func (s *RedisStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %q: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to forget %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) AddToSet(ctx context.Context, key string, member string, ttl time.Duration) (bool, error) {
	added, err := addToSetScript.Run(ctx, s.client, []string{key}, member, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to add to set %q: %w", key, err)
	}
	return added == 1, nil
}

func (s *RedisStore) SetSize(ctx context.Context, key string) (int64, error) {
	size, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to size set %q: %w", key, err)
	}
	return size, nil
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read set %q: %w", key, err)
	}
	return members, nil
}
