package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const flushBatch = 100

// CacheResult stores a successful upstream body under the request's canonical encoding
func (s *Store) CacheResult(ctx context.Context, canonical, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, CacheKey(canonical), body, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// GetCachedResult retrieves a cached body. A miss returns (nil, nil).
func (s *Store) GetCachedResult(ctx context.Context, canonical []byte) ([]byte, error) {
	body, err := s.client.Get(ctx, CacheKey(canonical)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get cached result: %w", err)
	}
	return body, nil
}

// InvalidateResult drops the cached body of one request, if any.
// It reports whether an entry was removed.
func (s *Store) InvalidateResult(ctx context.Context, canonical []byte) (bool, error) {
	n, err := s.client.Unlink(ctx, CacheKey(canonical)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to invalidate cached result: %w", err)
	}
	return n > 0, nil
}

// FlushCache unlinks every cached result and returns how many were removed.
// Keys are collected by SCAN and unlinked in batches of flushBatch.
func (s *Store) FlushCache(ctx context.Context) (int64, error) {
	var (
		removed int64
		batch   = make([]string, 0, flushBatch)
	)
	unlink := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("failed to unlink cached results: %w", err)
		}
		removed += n
		batch = batch[:0]
		return nil
	}

	iter := s.client.Scan(ctx, 0, KeyPrefixCache+"*", flushBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == flushBatch {
			if err := unlink(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan cached results: %w", err)
	}
	return removed, unlink()
}
