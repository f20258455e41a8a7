package redis

// Package redis provides Redis-based adapters for the scrapewatch system.

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/audiencelab/scrapewatch/internal/core"
)

const tickLockKey = "scrapewatch:monitor:tick_lock"

// TickLock serializes monitor ticks across instances with a SET NX EX
// lease. The TTL bounds how long a crashed holder can block other
// instances; a live holder releases explicitly at end of tick.
type TickLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	token  string
}

var _ core.TickLock = (*TickLock)(nil)

// NewTickLock creates a Redis-backed tick lock. The token identifies
// this instance so Release never drops a lease it does not own.
func NewTickLock(client redis.UniversalClient, token string, ttl time.Duration) *TickLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TickLock{
		client: client,
		key:    tickLockKey,
		ttl:    ttl,
		token:  token,
	}
}

// TryAcquire attempts to take the lease without blocking.
func (l *TickLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// releaseScript deletes the lock only when this instance still owns it,
// so a lease that expired and was re-taken elsewhere stays intact.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release drops the lease if this instance still holds it.
func (l *TickLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("redis release lock: %w", err)
	}
	return nil
}
