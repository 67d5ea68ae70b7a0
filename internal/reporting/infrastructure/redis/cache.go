package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a TTL read-through cache over redis. Two concurrent misses may
// both compute; the value is idempotent so last-write-wins is fine.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (string, error)) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("cache get %s: %w", key, err)
	}

	val, err = compute(ctx)
	if err != nil {
		return "", err
	}
	if err := c.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		return "", fmt.Errorf("cache set %s: %w", key, err)
	}
	return val, nil
}

// PeriodLedger records confirmed reporting periods. MarkDone keys never
// expire; a period is reported exactly once.
type PeriodLedger struct {
	rdb *redis.Client
}

func NewPeriodLedger(rdb *redis.Client) *PeriodLedger {
	return &PeriodLedger{rdb: rdb}
}

func (l *PeriodLedger) Done(ctx context.Context, period string) (bool, error) {
	n, err := l.rdb.Exists(ctx, periodKey(period)).Result()
	if err != nil {
		return false, fmt.Errorf("check period %s: %w", period, err)
	}
	return n > 0, nil
}

func (l *PeriodLedger) MarkDone(ctx context.Context, period string) error {
	if err := l.rdb.Set(ctx, periodKey(period), "1", 0).Err(); err != nil {
		return fmt.Errorf("mark period %s: %w", period, err)
	}
	return nil
}

func periodKey(period string) string {
	return "report:done:" + period
}
