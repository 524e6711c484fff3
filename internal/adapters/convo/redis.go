package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rally:convo:"

// RedisStore keeps state in redis with a per-key expiry.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Set(ctx context.Context, address string, st State) error {
	if st.SetAt.IsZero() {
		st.SetAt = time.Now().UTC()
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+address, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set state for %s: %w", address, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, address string) (State, error) {
	raw, err := s.client.Get(ctx, keyPrefix+address).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNoState
	}
	if err != nil {
		return State{}, fmt.Errorf("get state for %s: %w", address, err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decode state for %s: %w", address, err)
	}
	return st, nil
}

func (s *RedisStore) Clear(ctx context.Context, address string) error {
	if err := s.client.Del(ctx, keyPrefix+address).Err(); err != nil {
		return fmt.Errorf("clear state for %s: %w", address, err)
	}
	return nil
}
