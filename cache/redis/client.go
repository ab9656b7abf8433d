package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds Redis connection settings. Addr is either host:port or a
// redis:// URL; a URL's password and db win over Password and DB.
type Config struct {
	Addr     string
	Password string
	DB       int
	// SubscribeBuf bounds each subscription's backlog. Messages beyond it
	// are dropped rather than stalling the shared connection.
	SubscribeBuf int
}

func (cfg Config) options() (*goredis.Options, error) {
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		opt, err := goredis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("redis: parse %q: %w", cfg.Addr, err)
		}
		return opt, nil
	}
	return &goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}, nil
}

func dial(cfg Config) (*goredis.Client, error) {
	opt, err := cfg.options()
	if err != nil {
		return nil, err
	}
	client := goredis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opt.Addr, err)
	}
	return client, nil
}

// releaseIfHeld deletes KEYS[1] only while it holds ARGV[1].
var releaseIfHeld = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache is the Cache shared by every node of a deployment.
type RedisCache struct {
	client *goredis.Client
}

// NewCache dials Redis and verifies the connection.
func NewCache(cfg Config) (*RedisCache, error) {
	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: client}, nil
}

// Close releases the connection pool.
func (r *RedisCache) Close() error { return r.client.Close() }

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (r *RedisCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

// Expire resets key's TTL; a non-positive ttl makes it persistent.
func (r *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	var (
		ok  bool
		err error
	)
	if ttl <= 0 {
		ok, err = r.client.Persist(ctx, key).Result()
		if err == nil && !ok {
			// PERSIST also reports false for a key that has no TTL.
			var n int64
			n, err = r.client.Exists(ctx, key).Result()
			ok = n > 0
		}
	} else {
		ok, err = r.client.Expire(ctx, key, ttl).Result()
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *RedisCache) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := releaseIfHeld.Run(ctx, r.client, []string{key}, value).Int()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
