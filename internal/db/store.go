package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
)

// Store is a durable key-value store. Get returns nil, nil for a missing key.
// SetMany writes all values or none where the backend supports it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, values map[string][]byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// HealthChecker is implemented by stores that can lose their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Health checks s when it supports it. The memory store is always healthy.
func Health(ctx context.Context, s Store) error {
	if hc, ok := s.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

type Driver string

const (
	DriverMemory Driver = "memory"
	DriverSQLite Driver = "sqlite"
	DriverRedis  Driver = "redis"
)

type Options struct {
	Driver        Driver
	SQLitePath    string
	MigrationsDir string
	RedisURL      string
	RedisPrefix   string
	DialTimeout   time.Duration
}

// Open builds the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch Driver(strings.ToLower(string(opts.Driver))) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		if strings.TrimSpace(opts.SQLitePath) == "" {
			return nil, fmt.Errorf("sqlite path required")
		}
		sqlDB, err := sql.Open("sqlite3", opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := RunMigrations(ctx, sqlDB, opts.MigrationsDir); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		st, err := NewSQLiteStore(sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return st, nil
	case DriverRedis:
		ropts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		if opts.DialTimeout > 0 {
			ropts.DialTimeout = opts.DialTimeout
		}
		client := redis.NewClient(ropts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return NewRedisStore(client, opts.RedisPrefix), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}
