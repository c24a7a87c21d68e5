// Package cache wraps the Redis client used for revocations, the asynq
// broker and the notification delivery log.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// New creates a Redis client and checks that the server answers.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", addr, err)
	}

	return client, nil
}

// PushCapped prepends value to the list at key and trims the list to the
// newest size entries in one round trip.
func PushCapped(ctx context.Context, client redis.Cmdable, key string, value any, size int64) error {
	if size <= 0 {
		return fmt.Errorf("platform/cache: list size must be positive, got %d", size)
	}
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, value)
		pipe.LTrim(ctx, key, 0, size-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("platform/cache: push %s: %w", key, err)
	}
	return nil
}
