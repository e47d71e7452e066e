package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures the backend.
type Options struct {
	Backend   string
	RedisURL  string
	KeyPrefix string

	DatabaseURL     string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	Version int
	MaxAge  time.Duration
}

// Opened is an open store plus the optional purger for backends without
// native expiry.
type Opened struct {
	Store  *Store
	Purger Purger
	pool   *pgxpool.Pool
}

// Close releases the store and any pool Open created.
func (o *Opened) Close() {
	if err := o.Store.Close(); err != nil {
		slog.Warn("close session store", "error", err)
	}
	if o.pool != nil {
		o.pool.Close()
	}
}

// Open connects the configured backend.
func Open(ctx context.Context, opts Options) (*Opened, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendMemory:
		slog.Info("session store ready", "backend", BackendMemory)
		return &Opened{Store: NewStore(NewMemoryKV(), opts.Version, opts.MaxAge)}, nil

	case BackendRedis:
		kv, err := NewRedisKV(ctx, opts.RedisURL, opts.KeyPrefix, opts.MaxAge)
		if err != nil {
			return nil, err
		}
		slog.Info("session store ready", "backend", BackendRedis)
		return &Opened{Store: NewStore(kv, opts.Version, opts.MaxAge)}, nil

	case BackendPostgres:
		pool, err := openPool(ctx, opts)
		if err != nil {
			return nil, err
		}
		kv, err := NewPostgresKV(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &Opened{Store: NewStore(kv, opts.Version, opts.MaxAge), Purger: kv, pool: pool}, nil

	default:
		return nil, fmt.Errorf("unknown session backend %q", opts.Backend)
	}
}

func openPool(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(opts.DatabaseURL); err == nil {
		slog.Info("session store ready", "backend", BackendPostgres, "database", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("session store ready", "backend", BackendPostgres)
	}
	return pool, nil
}
