package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rbright/murmur/internal/quota"
)

const defaultRedisPrefix = "murmur"

// Redis stores each counter as a JSON value under {prefix}:quota:{service}. Counters never expire.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis dials addr and verifies the connection.
func OpenRedis(ctx context.Context, addr string, prefix string) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis quota store requires an address")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %q: %w", addr, err)
	}
	return NewRedis(client, prefix), nil
}

func (r *Redis) Get(ctx context.Context, service string) (quota.Counter, bool, error) {
	data, err := r.client.Get(ctx, r.key(service)).Bytes()
	if errors.Is(err, redis.Nil) {
		return quota.Counter{}, false, nil
	}
	if err != nil {
		return quota.Counter{}, false, fmt.Errorf("redis get %q: %w", service, err)
	}

	var c quota.Counter
	if err := json.Unmarshal(data, &c); err != nil {
		return quota.Counter{}, false, fmt.Errorf("decode counter %q: %w", service, err)
	}
	return c, true, nil
}

func (r *Redis) Upsert(ctx context.Context, c quota.Counter) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode counter %q: %w", c.Service, err)
	}
	if err := r.client.Set(ctx, r.key(c.Service), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", c.Service, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(service string) string {
	return r.prefix + ":quota:" + service
}
