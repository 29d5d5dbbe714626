package external

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/metrics"
)

const cacheKeyPrefix = "genegpt:fetch"

// ResultCache keeps successful fetch payloads in an in-process LRU and,
// when a Redis URL is configured, in Redis as well. Entries stay readable
// after they go stale so an open circuit breaker can still answer.
type ResultCache struct {
	memory   *expirable.LRU[string, []byte]
	redis    *redis.Client
	ttl      time.Duration
	staleTTL time.Duration
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

// CacheEntry is the envelope stored in both tiers.
type CacheEntry struct {
	Data      map[string]any `json:"data"`
	CachedAt  time.Time      `json:"cached_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Fresh reports whether the entry is still within its TTL at now.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// NewResultCache builds the cache. A Redis URL that cannot be parsed or
// reached is an error; an empty one leaves the cache memory-only.
func NewResultCache(config domain.CacheConfig, logger *logrus.Logger, m *metrics.Metrics) (*ResultCache, error) {
	if config.MemorySize <= 0 {
		config.MemorySize = 1000
	}
	if config.MemoryTTL <= 0 {
		config.MemoryTTL = time.Hour
	}
	if config.RedisTTL < config.MemoryTTL {
		config.RedisTTL = config.MemoryTTL
	}

	c := &ResultCache{
		memory:   expirable.NewLRU[string, []byte](config.MemorySize, nil, config.RedisTTL),
		ttl:      config.MemoryTTL,
		staleTTL: config.RedisTTL,
		logger:   logger,
		metrics:  m,
	}

	if config.RedisURL == "" {
		return c, nil
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.redis = client
	return c, nil
}

// CacheKey derives the storage key for one fetch. Terms are compared
// case-insensitively.
func CacheKey(db domain.DBType, term, sub string) string {
	raw := strings.Join([]string{
		string(db),
		strings.ToLower(strings.TrimSpace(term)),
		strings.ToLower(strings.TrimSpace(sub)),
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s:%s:%s", cacheKeyPrefix, db, hex.EncodeToString(sum[:16]))
}

// Get returns a fresh entry for the fetch, recording a hit or a miss.
func (c *ResultCache) Get(ctx context.Context, db domain.DBType, term, sub string) (map[string]any, bool) {
	entry, tier := c.lookup(ctx, CacheKey(db, term, sub))
	if entry == nil || !entry.Fresh(time.Now()) {
		c.metrics.CacheMiss()
		return nil, false
	}
	c.metrics.CacheHit(tier)
	return entry.Data, true
}

// Stale returns any retained entry regardless of freshness.
func (c *ResultCache) Stale(ctx context.Context, db domain.DBType, term, sub string) (*CacheEntry, bool) {
	entry, _ := c.lookup(ctx, CacheKey(db, term, sub))
	if entry == nil {
		return nil, false
	}
	c.metrics.CacheHit("stale")
	return entry, true
}

// Set stores data in every tier. Redis failures are logged and otherwise ignored.
func (c *ResultCache) Set(ctx context.Context, db domain.DBType, term, sub string, data map[string]any) error {
	now := time.Now()
	payload, err := json.Marshal(CacheEntry{
		Data:      data,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	key := CacheKey(db, term, sub)
	c.memory.Add(key, payload)

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, payload, c.staleTTL).Err(); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Failed to write fetch result to Redis")
		}
	}
	return nil
}

func (c *ResultCache) lookup(ctx context.Context, key string) (*CacheEntry, string) {
	if payload, ok := c.memory.Get(key); ok {
		if entry, err := decodeEntry(payload); err == nil {
			return entry, "memory"
		}
		c.memory.Remove(key)
	}

	if c.redis == nil {
		return nil, ""
	}

	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ""
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to read fetch result from Redis")
		return nil, ""
	}

	entry, err := decodeEntry(val)
	if err != nil {
		// Corrupted entry
		c.redis.Del(ctx, key)
		return nil, ""
	}
	c.memory.Add(key, val)
	return entry, "redis"
}

func decodeEntry(payload []byte) (*CacheEntry, error) {
	var entry CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, err
	}
	if entry.Data == nil {
		entry.Data = map[string]any{}
	}
	return &entry, nil
}

// Len returns the number of entries in the memory tier.
func (c *ResultCache) Len() int {
	return c.memory.Len()
}

// Ping checks the Redis tier, if there is one.
func (c *ResultCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (c *ResultCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
