package counter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// WebhookOutcomesKey holds one hash field per webhook outcome.
const WebhookOutcomesKey = "billing:counters:webhook_outcomes"

// Counter accumulates named counts in a redis hash. A nil Counter drops
// every increment.
type Counter struct {
	client *redis.Client
	key    string
}

func New(client *redis.Client, key string) *Counter {
	if client == nil {
		return nil
	}
	return &Counter{client: client, key: key}
}

// Add increments the pending counter for field by one.
func (c *Counter) Add(ctx context.Context, field string) error {
	if c == nil || field == "" {
		return nil
	}
	return c.client.HIncrBy(ctx, c.key, field, 1).Err()
}

// Snapshot returns every counter. Fields that are not integers are skipped.
func (c *Counter) Snapshot(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	if c == nil {
		return out, nil
	}
	data, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	for k, v := range data {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Reset drops all counters.
func (c *Counter) Reset(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, c.key).Err()
}
