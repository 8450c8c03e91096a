package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache stores opaque values until their TTL passes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// fillTimeout bounds a shared fill once it no longer follows the caller that
// started it.
const fillTimeout = 2 * time.Minute

// Memoizer wraps a Cache so concurrent misses on one key share a single call.
type Memoizer struct {
	cache  Cache
	logger *zap.Logger
	group  singleflight.Group
}

func NewMemoizer(c Cache, logger *zap.Logger) *Memoizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memoizer{cache: c, logger: logger}
}

func (m *Memoizer) Invalidate(ctx context.Context, key string) error {
	return m.cache.Delete(ctx, key)
}

// Memoize returns the cached value for key, or calls fn and caches its result
// for ttl. Cache failures are logged and fall through to fn.
//
// fn runs detached from any single caller's cancellation, bounded by the fill
// timeout. Each caller stops waiting when its own ctx is done.
func Memoize[T any](ctx context.Context, m *Memoizer, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if raw, ok, err := m.cache.Get(ctx, key); err != nil {
		m.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		m.logger.Warn("cache entry undecodable, refetching", zap.String("key", key))
	}

	fill := m.group.DoChan(key, func() (interface{}, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		v, err := fn(fillCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		if err := m.cache.Set(fillCtx, key, raw, ttl); err != nil {
			m.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-fill:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
