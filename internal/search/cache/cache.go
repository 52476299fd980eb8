// Package cache memoizes federated query results in Redis. Identical queries
// arriving while one is already computing are collapsed onto the in-flight
// computation with singleflight, so a popular query hits the shards once.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/federator"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/metrics"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/redis"
)

// keyPrefix namespaces query-cache entries so FlushByPattern can clear them
// without touching other Redis keys.
const keyPrefix = "search:query:"

// QueryCache is a read-through cache in front of the federator.
type QueryCache struct {
	redis   *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns a QueryCache. A nil Redis client disables caching: every call
// computes, which keeps single-node deployments working without Redis.
func New(client *redis.Client, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		redis:   client,
		ttl:     ttl,
		logger:  slog.Default().With("component", "query-cache"),
		metrics: m,
	}
}

// Key derives the cache key for a query. The raw query is hashed, not
// embedded: user input never shapes a Redis key, and identical queries over
// the same range collide onto one entry.
func Key(query string, start, end time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%d", query, start.Unix(), end.Unix()))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

// GetOrCompute returns the cached result for the query or runs compute and
// stores its result. Cache faults degrade to computing; they are logged, not
// returned.
func (c *QueryCache) GetOrCompute(ctx context.Context, query string, start, end time.Time, compute func(context.Context) (*federator.Result, error)) (*federator.Result, bool, error) {
	if c.redis == nil {
		res, err := compute(ctx)
		return res, false, err
	}

	key := Key(query, start, end)
	if raw, err := c.redis.Get(ctx, key); err == nil {
		var res federator.Result
		if err := json.Unmarshal([]byte(raw), &res); err == nil {
			if c.metrics != nil {
				c.metrics.CacheHitsTotal.Inc()
			}
			return &res, true, nil
		}
		c.logger.Warn("discarding undecodable cache entry", "key", key)
		if err := c.redis.Del(ctx, key); err != nil {
			c.logger.Warn("failed to delete cache entry", "key", key, "error", err)
		}
	} else if !redis.IsNilError(err) {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(res); err == nil {
			if err := c.redis.Set(ctx, key, raw, c.ttl); err != nil {
				c.logger.Warn("cache write failed", "key", key, "error", err)
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*federator.Result), false, nil
}

// Invalidate drops every cached query result. The indexing consumer calls it
// after a shard rebuild so stale rankings do not outlive the shard they came
// from.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	n, err := c.redis.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("flush query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "entries", n)
	return nil
}
