package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kasuganosora/socialgraph/cache/local"
	cacheredis "github.com/kasuganosora/socialgraph/cache/redis"
)

// Cache defines the KV operations used for sessions, ban markers and locks.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// CompareAndDelete removes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// CacheConfig holds configuration for both Redis and LocalCache.
type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
	// KeyPrefix namespaces every key and channel, so several deployments
	// can share one Redis.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// NewCache returns a Cache backed by Redis if RedisAddr is set,
// otherwise returns an in-process LocalCache.
func NewCache(cfg CacheConfig) (Cache, error) {
	var (
		c   Cache
		err error
	)
	if cfg.RedisAddr != "" {
		c, err = cacheredis.NewCache(cacheredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	} else {
		c, err = local.NewCache(local.Config{
			GCInterval: cfg.LocalGCInterval,
		})
	}
	if err != nil {
		return nil, err
	}
	if cfg.KeyPrefix != "" {
		c = &prefixedCache{next: c, prefix: cfg.KeyPrefix}
	}
	return c, nil
}

// NewPubSub returns a PubSub backed by Redis if RedisAddr is set,
// otherwise returns an in-process LocalPubSub wrapped in an adapter.
func NewPubSub(cfg CacheConfig) (PubSub, error) {
	bufSize := cfg.LocalPubSubBuf
	if bufSize <= 0 {
		bufSize = 256
	}
	if cfg.RedisAddr != "" {
		rps, err := cacheredis.NewPubSub(cacheredis.Config{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			SubscribeBuf: bufSize,
		})
		if err != nil {
			return nil, err
		}
		return withPrefix(&redisPubSubAdapter{ps: rps}, cfg.KeyPrefix), nil
	}
	return withPrefix(&localPubSubAdapter{ps: local.NewPubSub(bufSize)}, cfg.KeyPrefix), nil
}

func withPrefix(ps PubSub, prefix string) PubSub {
	if prefix == "" {
		return ps
	}
	return &prefixedPubSub{next: ps, prefix: prefix}
}

// bridge copies sub-package messages onto a cache.Message channel. stop
// unsubscribes and ends the copier whether or not out has been drained.
func bridge[T any](in <-chan T, unsubscribe func(), conv func(T) *Message) (<-chan *Message, func()) {
	out := make(chan *Message, 256)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			unsubscribe()
		})
	}
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- conv(msg):
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()
	return out, stop
}

type localPubSubAdapter struct {
	ps *local.LocalPubSub
}

func (a *localPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *localPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out, stop := bridge(in, cancel, func(m *local.LocalMessage) *Message {
		return &Message{Channel: m.Channel, Payload: m.Payload}
	})
	return out, stop, nil
}

type redisPubSubAdapter struct {
	ps *cacheredis.RedisPubSub
}

func (a *redisPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *redisPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out, stop := bridge(in, cancel, func(m *cacheredis.RedisMessage) *Message {
		return &Message{Channel: m.Channel, Payload: m.Payload}
	})
	return out, stop, nil
}
