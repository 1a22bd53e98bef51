package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sapliy/subscription-notifier/internal/notification"
)

// RunGuard deduplicates dispatches across repeated scheduler runs:
// nothing in the scan itself prevents the same offset from being run
// twice in a day, so the guard claims a (subscription, kind, day) slot
// before a record is created.
type RunGuard interface {
	// FirstToday reports whether this is the first dispatch for the given
	// subscription, kind and calendar day.
	FirstToday(ctx context.Context, subscriptionID string, kind notification.Kind, day time.Time) (bool, error)
}

const guardTTL = 48 * time.Hour

// RedisRunGuard claims dispatch slots with SETNX keys that expire after
// the calendar day they protect has passed.
type RedisRunGuard struct {
	client *redis.Client
}

func NewRedisRunGuard(client *redis.Client) *RedisRunGuard {
	return &RedisRunGuard{client: client}
}

func (g *RedisRunGuard) FirstToday(ctx context.Context, subscriptionID string, kind notification.Kind, day time.Time) (bool, error) {
	key := fmt.Sprintf("notify:sent:%s:%s:%s", subscriptionID, kind, day.Format("2006-01-02"))
	ok, err := g.client.SetNX(ctx, key, "1", guardTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim dispatch slot: %w", err)
	}
	return ok, nil
}
