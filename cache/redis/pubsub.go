package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

// RedisMessage is the message type returned by RedisPubSub.Subscribe.
type RedisMessage struct {
	Channel string
	Payload string
}

// RedisPubSub fans notifications out across nodes.
type RedisPubSub struct {
	client *goredis.Client
	buf    int
}

// NewPubSub dials Redis for publish/subscribe.
func NewPubSub(cfg Config) (*RedisPubSub, error) {
	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	buf := cfg.SubscribeBuf
	if buf <= 0 {
		buf = 256
	}
	return &RedisPubSub{client: client, buf: buf}, nil
}

func (r *RedisPubSub) Publish(ctx context.Context, channel, message string) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so nothing
// published afterwards is missed. cancel closes the returned channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *RedisMessage, func(), error) {
	ps := r.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan *RedisMessage, r.buf)
	go func() {
		defer close(out)
		for msg := range ps.Channel(goredis.WithChannelSize(r.buf)) {
			select {
			case out <- &RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
			default:
			}
		}
	}()
	return out, func() { _ = ps.Close() }, nil
}
