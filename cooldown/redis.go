package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisCooldownPrefix = "cooldown/"

// RedisTracker shares cooldowns between processes. A firing sets a key that
// expires after the cooldown, so the key existing means the preset is cooling
// down.
type RedisTracker struct {
	Client *redis.Client
}

// NewRedisTracker connects to redisURL and checks the connection.
func NewRedisTracker(ctx context.Context, redisURL string) (*RedisTracker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisTracker{Client: rdb}, nil
}

func (t *RedisTracker) TryFire(ctx context.Context, key Key, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}
	ok, err := t.Client.SetNX(ctx, redisCooldownPrefix+key.String(), time.Now().UnixMilli(), cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record cooldown for %s: %w", key, err)
	}
	return ok, nil
}

func (t *RedisTracker) Close() error {
	return t.Client.Close()
}
