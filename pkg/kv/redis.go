package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/contentoor/pkg/config"
)

// Compile-time interface check.
var _ Backend = (*RedisStore)(nil)

// RedisStore keeps values in Redis under a common key prefix and relies on
// native key expiry for TTLs.
type RedisStore struct {
	log    logrus.FieldLogger
	cfg    *config.RedisConfig
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store. Call Start before use.
func NewRedisStore(log logrus.FieldLogger, cfg *config.RedisConfig) *RedisStore {
	return &RedisStore{
		log: log.WithField("component", "kv-redis"),
		cfg: cfg,
	}
}

// NewRedisStoreWithClient wraps an existing client; Start only pings it.
func NewRedisStoreWithClient(
	log logrus.FieldLogger, client *redis.Client, prefix string,
) *RedisStore {
	return &RedisStore{
		log:    log.WithField("component", "kv-redis"),
		cfg:    &config.RedisConfig{KeyPrefix: prefix},
		client: client,
	}
}

// Start connects to Redis and verifies the connection.
func (s *RedisStore) Start(ctx context.Context) error {
	if s.client == nil {
		opts, err := redis.ParseURL(s.cfg.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}

		s.client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}

	s.log.Info("Redis store connected")

	return nil
}

// Stop closes the Redis connection.
func (s *RedisStore) Stop() error {
	if s.client == nil {
		return nil
	}

	return s.client.Close()
}

func (s *RedisStore) key(key string) string {
	return s.cfg.KeyPrefix + key
}

// GetText implements Store.
func (s *RedisStore) GetText(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("getting %s: %w", key, err)
	}

	return value, nil
}

// GetJSON implements Store.
func (s *RedisStore) GetJSON(ctx context.Context, key string, dest any) error {
	raw, err := s.GetText(ctx, key)
	if err != nil {
		return err
	}

	return decodeJSON(key, raw, dest)
}

// Put implements Store.
func (s *RedisStore) Put(
	ctx context.Context, key, value string, ttl time.Duration,
) error {
	if ttl < 0 {
		ttl = 0
	}

	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}

	return nil
}

// Replace implements Store.
func (s *RedisStore) Replace(ctx context.Context, key, value string) error {
	ok, err := s.client.SetXX(ctx, s.key(key), value, redis.KeepTTL).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("replacing %s: %w", key, err)
	}

	if !ok {
		return ErrNotFound
	}

	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}

	return nil
}
