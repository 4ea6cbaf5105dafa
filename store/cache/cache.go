// Package cache provides an optional Redis-backed read-through cache.
// A nil *Service is valid: every call degrades to the direct fetch.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service wraps a Redis client behind a read-through contract.
type Service struct {
	rdb *redis.Client
}

// New connects to Redis at addr. An empty addr disables the cache and returns
// nil; callers keep the nil service and every GetOrSet reduces to its fetch
// function. A failed ping also disables the cache.
func New(ctx context.Context, addr, password string) *Service {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, cache disabled", slog.String("addr", addr), slog.Any("err", err))
		_ = rdb.Close()
		return nil
	}
	slog.Info("cache service connected", slog.String("addr", addr))
	return &Service{rdb: rdb}
}

// GetOrSet returns the cached value for key, or runs fetch and stores the
// result. Cache failures degrade to the fetch result; fetch errors propagate.
func (s *Service) GetOrSet(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if s == nil || s.rdb == nil {
		return fetch(ctx)
	}
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		return val, nil
	}
	if err != redis.Nil {
		slog.Warn("cache read failed", slog.String("key", key), slog.Any("err", err))
	}
	val, err = fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		slog.Warn("cache write failed", slog.String("key", key), slog.Any("err", err))
	}
	return val, nil
}

// Delete removes a key. Used to bust a cached document after a write.
func (s *Service) Delete(ctx context.Context, key string) {
	if s == nil || s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		slog.Warn("cache delete failed", slog.String("key", key), slog.Any("err", err))
	}
}

// Close releases the underlying connection pool.
func (s *Service) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
