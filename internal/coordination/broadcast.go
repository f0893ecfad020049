package coordination

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster implements parentresolve.Broadcaster over a Redis
// Pub/Sub channel, so a poke issued by the association worker on one
// instance reaches the parent resolution sweep on every instance.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

// NewRedisBroadcaster builds a RedisBroadcaster against redisURL using
// channel as the Pub/Sub topic.
func NewRedisBroadcaster(redisURL, channel string, log *slog.Logger) (*RedisBroadcaster, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("coordination: invalid redis url: %w", err)
	}
	if channel == "" {
		channel = "canon:parentresolve:poke"
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisBroadcaster{client: redis.NewClient(opts), channel: channel, log: log}, nil
}

// Publish sends a poke to every subscribed instance.
func (b *RedisBroadcaster) Publish(ctx context.Context) error {
	if err := b.client.Publish(ctx, b.channel, "poke").Err(); err != nil {
		return fmt.Errorf("coordination: publish poke: %w", err)
	}
	return nil
}

// Listen subscribes to the poke channel and invokes onPoke for each
// message received until ctx is cancelled. It runs in its own goroutine
// and returns immediately.
func (b *RedisBroadcaster) Listen(ctx context.Context, onPoke func()) {
	sub := b.client.Subscribe(ctx, b.channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg != nil {
					onPoke()
				}
			}
		}
	}()
}

// Close releases the underlying Redis client.
func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}
