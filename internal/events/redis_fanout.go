package events

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisChannel is the pub/sub channel world events are published on.
const RedisChannel = "observatory:events"

// RedisFanout republishes envelopes to Redis Pub/Sub so other instances (or
// external consumers) receive the live feed. Publishing is best-effort: a
// Redis outage never affects local delivery or the ledger.
type RedisFanout struct {
	client *redis.Client
}

// NewRedisFanout connects to Redis at addr and subscribes the fanout to the
// given bus. Returns nil if addr is empty.
func NewRedisFanout(addr string, bus *Bus) *RedisFanout {
	if addr == "" {
		return nil
	}
	f := &RedisFanout{client: redis.NewClient(&redis.Options{Addr: addr})}
	go f.run(bus)
	slog.Info("redis event fanout enabled", "addr", addr, "channel", RedisChannel)
	return f
}

func (f *RedisFanout) run(bus *Bus) {
	ch := bus.Subscribe()
	for env := range ch {
		payload, err := env.JSON()
		if err != nil {
			continue
		}
		if err := f.client.Publish(context.Background(), RedisChannel, payload).Err(); err != nil {
			slog.Warn("redis publish failed", "event_id", env.ID, "error", err)
		}
	}
}

// Close releases the Redis connection.
func (f *RedisFanout) Close() error {
	if f == nil {
		return nil
	}
	return f.client.Close()
}
