package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/audiencelab/scrapewatch/internal/core"
	"github.com/audiencelab/scrapewatch/internal/domain/model"
)

const summaryCacheKey = "scrapewatch:runs:summary"

// SummaryCache is a Redis-backed cache for the runs summary. Dashboard
// reads hit this instead of the per-status aggregate query; the short
// TTL keeps counts fresh without a write-through on every tick.
type SummaryCache struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ core.SummaryCache = (*SummaryCache)(nil)

// NewSummaryCache creates a Redis-backed summary cache with the given TTL.
func NewSummaryCache(client redis.UniversalClient, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SummaryCache{
		client: client,
		key:    summaryCacheKey,
		ttl:    ttl,
	}
}

// Get returns the cached summary, reporting a miss without error.
func (c *SummaryCache) Get(ctx context.Context) (*model.RunSummary, bool, error) {
	data, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var summary model.RunSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		// A corrupt entry is treated as a miss; the next Set overwrites it.
		return nil, false, nil
	}

	return &summary, true, nil
}

// Set stores the summary under the cache TTL.
func (c *SummaryCache) Set(ctx context.Context, summary *model.RunSummary) error {
	if summary == nil {
		return errors.New("summary cannot be nil")
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}
