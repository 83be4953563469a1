package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps positions in one hash, field "<TICKER>|<entry date>", value a JSON record.
type RedisStore struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// OpenRedis connects to addr and verifies the server answers.
func OpenRedis(ctx context.Context, addr string, db int, prefix string, timeout time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	store := NewRedisStore(client, prefix, timeout)
	pingCtx, cancel := context.WithTimeout(ctx, store.timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return store, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisStore{client: client, key: prefix + "positions", timeout: timeout}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) ([]Position, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}
	out := make([]Position, 0, len(fields))
	for field, value := range fields {
		p, err := decodeRecord(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Upsert implements Store.
func (s *RedisStore) Upsert(ctx context.Context, p Position) error {
	value, err := encodeRecord(p)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.HSet(ctx, s.key, key(p), value).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", s.key, err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error { return s.client.Close() }
