package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ChannelPrefix namespaces relay topics on Redis.
const ChannelPrefix = "board:"

// RedisBackplane shares publishes between relay instances over Redis
// pub/sub. Every instance pattern-subscribes to all board channels and fans
// out locally.
type RedisBackplane struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisBackplane connects to addr and checks the server answers.
func NewRedisBackplane(ctx context.Context, addr string, logger zerolog.Logger) (*RedisBackplane, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &RedisBackplane{
		client: client,
		logger: logger.With().Str("component", "backplane").Logger(),
	}, nil
}

func channelFor(topic string) string { return ChannelPrefix + topic }

func topicFor(channel string) (string, bool) {
	if !strings.HasPrefix(channel, ChannelPrefix) {
		return "", false
	}
	return strings.TrimPrefix(channel, ChannelPrefix), true
}

func (b *RedisBackplane) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, channelFor(topic), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBackplane) Run(ctx context.Context, deliver func(topic string, payload []byte)) error {
	pubsub := b.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	b.logger.Info().Str("pattern", ChannelPrefix+"*").Msg("backplane subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic, ok := topicFor(msg.Channel)
			if !ok {
				continue
			}
			deliver(topic, []byte(msg.Payload))
		}
	}
}

func (b *RedisBackplane) Close() error {
	return b.client.Close()
}
