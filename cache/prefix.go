package cache

import (
	"context"
	"strings"
	"time"
)

type prefixedCache struct {
	next   Cache
	prefix string
}

func (p *prefixedCache) k(key string) string { return p.prefix + key }

func (p *prefixedCache) Get(ctx context.Context, key string) (string, error) {
	return p.next.Get(ctx, p.k(key))
}

func (p *prefixedCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return p.next.Set(ctx, p.k(key), value, ttl)
}

func (p *prefixedCache) Del(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = p.k(key)
	}
	return p.next.Del(ctx, full...)
}

func (p *prefixedCache) Exists(ctx context.Context, key string) (bool, error) {
	return p.next.Exists(ctx, p.k(key))
}

func (p *prefixedCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return p.next.SetNX(ctx, p.k(key), value, ttl)
}

func (p *prefixedCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return p.next.Expire(ctx, p.k(key), ttl)
}

func (p *prefixedCache) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	return p.next.CompareAndDelete(ctx, p.k(key), value)
}

type prefixedPubSub struct {
	next   PubSub
	prefix string
}

func (p *prefixedPubSub) Publish(ctx context.Context, channel, message string) error {
	return p.next.Publish(ctx, p.prefix+channel, message)
}

// Subscribe strips the prefix again so callers see the channel names they
// asked for.
func (p *prefixedPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	full := make([]string, len(channels))
	for i, ch := range channels {
		full[i] = p.prefix + ch
	}
	in, cancel, err := p.next.Subscribe(ctx, full...)
	if err != nil {
		return nil, nil, err
	}
	out, stop := bridge(in, cancel, func(m *Message) *Message {
		return &Message{Channel: strings.TrimPrefix(m.Channel, p.prefix), Payload: m.Payload}
	})
	return out, stop, nil
}
