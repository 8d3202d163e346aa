package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss means no valid page is stored under the key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry means the stored value is not a CacheEntry.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores listing pages in Redis.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a page cache on redisClient.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// Get returns the cached page for key. A missing or expired page is
// ErrCacheMiss; an expired page is removed on the way.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	raw, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("load page %s: %w", key, err)
	}

	entry := new(CacheEntry)
	if err := json.Unmarshal(raw, entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, key, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	CacheSize.WithLabelValues("redis").Add(float64(len(raw)))
	return entry, nil
}

// Set stores a page until entry.Expires. Entries already past their expiry
// are not written.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("encode page %s: %w", key, err)
	}

	if err := m.redis.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("store page %s: %w", key, err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(raw)))
	return nil
}

// Delete removes one cached page.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("delete page %s: %w", key, err)
	}
	return nil
}

// Purge removes every cached page of endpoint, or the whole catalog cache
// when endpoint is empty. It returns the number of keys deleted.
func (m *Manager) Purge(ctx context.Context, endpoint string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	pattern := Pattern(endpoint)

	for {
		keys, next, err := m.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			CacheErrors.WithLabelValues("purge").Inc()
			return deleted, fmt.Errorf("redis scan: %w", err)
		}

		if len(keys) > 0 {
			n, err := m.redis.Del(ctx, keys...).Result()
			if err != nil {
				CacheErrors.WithLabelValues("purge").Inc()
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += int(n)
		}

		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
