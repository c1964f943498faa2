// Package redis holds the Redis-backed pieces of baho-bot: a small JSON cache,
// the fired-key lock shared by report workers and the bot's linking sessions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config describes the client. URL is a redis:// string; empty disables Redis.
type Config struct {
	URL string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PoolSize:     10,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Options parses URL and overlays the non-zero pool settings.
func (c Config) Options() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	overlay(&opts.PoolSize, c.PoolSize)
	overlay(&opts.MinIdleConns, c.MinIdleConns)
	overlay(&opts.MaxRetries, c.MaxRetries)
	overlay(&opts.DialTimeout, c.DialTimeout)
	overlay(&opts.ReadTimeout, c.ReadTimeout)
	overlay(&opts.WriteTimeout, c.WriteTimeout)
	return opts, nil
}

func overlay[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrCacheUnavailable   = errors.New("cache: redis unavailable")
	ErrCacheSerialization = errors.New("cache: bad payload")
	ErrCacheInvalidTTL    = errors.New("cache: negative ttl")
	ErrCacheKeyEmpty      = errors.New("cache: empty key")
)

const (
	prefixFired   = "baho:fired:"
	prefixSession = "baho:session:"
)

// FiredKey namespaces a trigger fired key.
func FiredKey(key string) string { return prefixFired + key }

// SessionKey namespaces a chat's linking session.
func SessionKey(chatID int64) string { return fmt.Sprintf("%s%d", prefixSession, chatID) }

// Commander is the part of *redis.Client the cache calls.
type Commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Cache stores JSON documents under string keys.
type Cache struct {
	client Commander
}

// NewCache dials Redis and pings it within the dial timeout.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return &Cache{client: client}, nil
}

// NewCacheWithClient wraps an existing client.
func NewCacheWithClient(client Commander) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Close() error                   { return c.client.Close() }
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// encode validates the write arguments and marshals value.
func encode(key string, value interface{}, ttl time.Duration) ([]byte, error) {
	switch {
	case key == "":
		return nil, ErrCacheKeyEmpty
	case ttl < 0:
		return nil, ErrCacheInvalidTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return data, nil
}

// Set writes value; a zero ttl keeps it forever.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(key, value, ttl)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// SetNX writes value only when key is absent and reports whether it did.
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := encode(key, value, ttl)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, data, ttl).Result()
}

// Get decodes key into dest or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// Delete removes keys; no keys is a no-op.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
