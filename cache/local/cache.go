package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

// item is a stored value; a zero deadline never expires.
type item struct {
	value    string
	deadline time.Time
}

func (it item) liveAt(now time.Time) bool {
	return it.deadline.IsZero() || now.Before(it.deadline)
}

func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// LocalCache is the single-process Cache. Sessions, ban markers and pair
// locks live here when Redis is not configured.
type LocalCache struct {
	mu    sync.RWMutex
	items map[string]item
	done  chan struct{}
	once  sync.Once
}

// NewCache creates a LocalCache whose expired keys are swept every
// cfg.GCInterval (30s when unset).
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{items: make(map[string]item), done: make(chan struct{})}
	go c.sweepLoop(interval)
	return c, nil
}

// Close stops the sweeper. Safe to call twice.
func (c *LocalCache) Close() {
	c.once.Do(func() { close(c.done) })
}

// Len reports the number of stored keys, expired or not.
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *LocalCache) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			c.sweep(now)
		case <-c.done:
			return
		}
	}
}

func (c *LocalCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, it := range c.items {
		if !it.liveAt(now) {
			delete(c.items, k)
		}
	}
}

// lookup must be called with mu held.
func (c *LocalCache) lookup(key string) (item, bool) {
	it, ok := c.items[key]
	if !ok || !it.liveAt(time.Now()) {
		return item{}, false
	}
	return it, true
}

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.lookup(key)
	if !ok {
		return "", ErrNotFound
	}
	return it.value, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	c.items[key] = item{value: value, deadline: deadline(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.items, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.lookup(key)
	return ok, nil
}

func (c *LocalCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lookup(key); ok {
		return false, nil
	}
	c.items[key] = item{value: value, deadline: deadline(ttl)}
	return true, nil
}

func (c *LocalCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.lookup(key)
	if !ok {
		return ErrNotFound
	}
	it.deadline = deadline(ttl)
	c.items[key] = it
	return nil
}

// CompareAndDelete removes key only while it still holds value.
func (c *LocalCache) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.lookup(key)
	if !ok || it.value != value {
		return false, nil
	}
	delete(c.items, key)
	return true, nil
}
