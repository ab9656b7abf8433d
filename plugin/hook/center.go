package hook

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrInterrupt signals that a handler vetoes the action and stops the chain.
var ErrInterrupt = errors.New("hook interrupted")

// Fn is a hook handler. It returns (data, nil) to continue, possibly with
// modified data, or (data, ErrInterrupt) to veto. Other errors are logged and
// the chain continues with the returned data.
type Fn func(ctx context.Context, event string, data any) (any, error)

type entry struct {
	priority int
	fn       Fn
	name     string
}

// Center manages event hook registrations.
type Center struct {
	mu     sync.RWMutex
	hooks  map[string][]*entry
	logger *zap.Logger
}

// New creates an empty Center.
func New(logger *zap.Logger) *Center {
	return &Center{hooks: make(map[string][]*entry), logger: logger}
}

// Register adds fn for event. Lower priority runs first; equal priorities
// run in registration order. name is used for Unregister.
func (hc *Center) Register(event string, priority int, name string, fn Fn) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	entries := append(hc.hooks[event], &entry{priority: priority, fn: fn, name: name})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	hc.hooks[event] = entries
}

// Unregister removes all hooks with the given name for the given event.
func (hc *Center) Unregister(event, name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.hooks[event] = without(hc.hooks[event], name)
}

// UnregisterAll removes every hook registered under name.
func (hc *Center) UnregisterAll(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for event, entries := range hc.hooks {
		hc.hooks[event] = without(entries, name)
	}
}

func without(entries []*entry, name string) []*entry {
	out := entries[:0]
	for _, e := range entries {
		if e.name != name {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether any hook is registered for event.
func (hc *Center) Has(event string) bool {
	if hc == nil {
		return false
	}
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return len(hc.hooks[event]) > 0
}

// Trigger runs the hooks for event in priority order, threading data
// through them. A nil Center returns data unchanged.
func (hc *Center) Trigger(ctx context.Context, event string, data any) (any, error) {
	if hc == nil {
		return data, nil
	}
	hc.mu.RLock()
	entries := make([]*entry, len(hc.hooks[event]))
	copy(entries, hc.hooks[event])
	hc.mu.RUnlock()

	for _, e := range entries {
		out, err := e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err != nil {
			if hc.logger != nil {
				hc.logger.Warn("hook failed", zap.String("event", event), zap.String("hook", e.name), zap.Error(err))
			}
		}
		data = out
	}
	return data, nil
}

// BeforePostCreate receives a *Draft and may rewrite or veto it.
const BeforePostCreate = "before_post_create"

// Draft is post content on its way into the store.
type Draft struct {
	AuthorID int64
	GroupID  int64 // 0 for personal posts
	Content  string
}
