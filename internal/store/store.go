// Package store persists quota counters behind the get/upsert contract the arbiter consumes.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rbright/murmur/internal/quota"
)

// Backend is a counter store that owns a closable resource.
type Backend interface {
	quota.Store
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Kind        string // memory | sqlite | redis
	SQLitePath  string
	RedisAddr   string
	RedisPrefix string
}

// Open builds the configured backend. Redis is pinged before returning.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown quota store %q", cfg.Kind)
	}
}
