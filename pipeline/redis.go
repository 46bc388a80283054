package pipeline

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis database. Atomicity per key comes
// from Redis itself: GETDEL and SET NX are single commands.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig identifies the Redis database used for stage state.
type RedisConfig struct {
	Addr           string
	DB             int
	ConnectTimeout time.Duration
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client. The caller keeps
// ownership of the client's lifecycle only until Close is called.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisStore) GetDelete(ctx context.Context, key string) (string, error) {
	v, err := s.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.client.Keys(ctx, pattern).Result()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
