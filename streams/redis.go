package streams

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultURL   = "redis://localhost:6379"
	healthStream = "health:workspace:bootstrap"
)

// Connect dials Redis at url (DefaultURL when empty) and round-trips one entry
// through the stream commands the event bus issues: capped XADD, XREVRANGE
// and XREAD.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultURL
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url %q: %w", url, err)
	}
	client := redis.NewClient(opts)

	if err := verifyStreamOps(ctx, client); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Ping reports whether the client can reach its server.
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return fmt.Errorf("redis: client not configured")
	}
	return client.Ping(ctx).Err()
}

func verifyStreamOps(ctx context.Context, client *redis.Client) error {
	if err := Ping(ctx, client); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}

	written, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: healthStream,
		MaxLen: 1,
		Approx: true,
		Values: map[string]any{
			"kind": "bootstrap",
			"ts":   time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("redis: capped XADD failed: %w", err)
	}
	defer client.Del(context.WithoutCancel(ctx), healthStream)

	last, err := client.XRevRangeN(ctx, healthStream, "+", "-", 1).Result()
	if err != nil {
		return fmt.Errorf("redis: XREVRANGE failed: %w", err)
	}
	if len(last) == 0 || last[0].ID != written {
		return fmt.Errorf("redis: XREVRANGE did not return %s as the stream end", written)
	}

	// Block < 0 leaves out BLOCK; the entry is already there.
	read, err := client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{healthStream, "0"},
		Count:   10,
		Block:   -1,
	}).Result()
	if err != nil {
		return fmt.Errorf("redis: XREAD failed: %w", err)
	}
	for _, stream := range read {
		for _, msg := range stream.Messages {
			if msg.ID == written {
				return nil
			}
		}
	}
	return fmt.Errorf("redis: XREAD did not return %s", written)
}
