// Package store holds the durable key/value drivers that keep small client
// records, such as the session token, across process restarts.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound         = errors.New("key not found")
	ErrInvalidConfig    = errors.New("invalid store configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
)

// KV is a minimal durable string store.
type KV interface {
	// Load returns ErrNotFound when the key has never been saved.
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, value string) error
	Close() error
}

// Type selects a KV driver.
type Type string

const (
	TypeMemory Type = "memory"
	TypeFile   Type = "file"
	TypeSQLite Type = "sqlite"
	TypeRedis  Type = "redis"
)

// Option configures New.
type Option func(*options)

type options struct {
	path        string
	redisClient *redis.Client
	redisPrefix string
}

// WithPath sets the file or database path for the file and sqlite drivers.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) {
		o.redisClient = client
	}
}

// WithRedisPrefix namespaces redis keys.
func WithRedisPrefix(prefix string) Option {
	return func(o *options) {
		o.redisPrefix = prefix
	}
}

// New builds the driver for the given type.
func New(t Type, opts ...Option) (KV, error) {
	cfg := &options{redisPrefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(cfg)
	}

	switch t {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeFile:
		if cfg.path == "" {
			return nil, fmt.Errorf("%w: file store requires a path", ErrInvalidConfig)
		}
		return NewFileStore(cfg.path), nil
	case TypeSQLite:
		if cfg.path == "" {
			return nil, fmt.Errorf("%w: sqlite store requires a path", ErrInvalidConfig)
		}
		return NewSQLiteStore(cfg.path)
	case TypeRedis:
		if cfg.redisClient == nil {
			return nil, fmt.Errorf("%w: redis store requires a client", ErrInvalidConfig)
		}
		return NewRedisStore(cfg.redisClient, cfg.redisPrefix), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, t)
	}
}
