package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTimeout bounds every store round trip so a slow or partitioned
// Redis degrades presence and rate-limit accuracy instead of stalling
// message delivery.
const DefaultTimeout = 50 * time.Millisecond

// Store is the shared presence store: a TTL key/value, an atomic counter and
// a pub/sub facility, all backed by one Redis client shared across the process.
type Store struct {
	rdb     *redis.Client
	timeout time.Duration
}

func New(addr string, timeout time.Duration) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return NewWithClient(rdb, timeout)
}

func NewWithClient(rdb *redis.Client, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{rdb: rdb, timeout: timeout}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// SetEx writes key with a liveness window; refreshing an existing key resets
// its TTL without changing the value.
func (s *Store) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Del(ctx context.Context, key string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.rdb.Del(ctx, key).Err()
}

// Get returns the value and whether the key exists. A missing key is not an
// error; absence is how the store expresses "offline or stale".
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// MGet fetches all keys in a single round trip. Missing keys are simply
// absent from the result map.
func (s *Store) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	found := make(map[string]string, len(keys))
	for i, v := range vals {
		if str, ok := v.(string); ok {
			found[keys[i]] = str
		}
	}
	return found, nil
}

// Incr atomically increments key and returns the post-increment count.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.rdb.Incr(ctx, key).Result()
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.rdb.Expire(ctx, key, ttl).Err()
}

func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription on channel. The returned PubSub is owned by
// the caller; receives are not subject to the store's operation timeout.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channel)
}
