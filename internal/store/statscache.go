package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"attendease/internal/model"
)

const statsKey = "attendease:stats"

// StatsCache holds the aggregate statistics in redis so the polling list
// clients read a cached value instead of re-running the aggregate queries.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache creates a cache with the given TTL.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsCache{client: client, ttl: ttl}
}

// Get returns the cached stats, or ok=false on miss or any redis error.
func (c *StatsCache) Get(ctx context.Context) (model.Stats, bool) {
	if c == nil || c.client == nil {
		return model.Stats{}, false
	}
	raw, err := c.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		return model.Stats{}, false
	}
	var stats model.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return model.Stats{}, false
	}
	return stats, true
}

// Set stores stats with the configured TTL. Failures are ignored; the cache
// is an optimization, never the source of truth.
func (c *StatsCache) Set(ctx context.Context, stats model.Stats) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, statsKey, raw, c.ttl).Err()
}
