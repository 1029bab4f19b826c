package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// TickLock serializes scheduler ticks across instances. A tick runs only
// on the instance that wins SET NX for the tick's key; the TTL releases
// the lock if the holder dies mid-tick.
type TickLock struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewTickLock(client *goredis.Client, ttl time.Duration) (*TickLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &TickLock{client: client, ttl: ttl}, nil
}

// Acquire claims the lock for the given tick. The name identifies the
// tick family (e.g. "reports:daily") and tick stamps the occurrence, so
// a missed tick never blocks the next one.
func (l *TickLock) Acquire(ctx context.Context, name string, tick time.Time) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("tick lock is not initialized")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("tick name is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf("ticklock:%s:%d", name, tick.UTC().Unix())
	ok, err := l.client.SetNX(ctx, key, 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire tick lock: %w", err)
	}

	return ok, nil
}
