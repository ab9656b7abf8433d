package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a lock could not be acquired within the wait budget.
var ErrLockTimeout = errors.New("cache: lock wait timed out")

const lockRetryInterval = 10 * time.Millisecond

// Lock acquires key with a random token, retrying until wait elapses or ctx
// is done. ttl bounds how long a crashed holder can keep the key. The
// returned unlock func releases the key only if this caller still owns it.
func Lock(ctx context.Context, c Cache, key string, ttl, wait time.Duration) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		ok, err := c.SetNX(ctx, key, token, ttl)
		if err != nil {
			return nil, fmt.Errorf("cache: lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// ctx may already be cancelled; release on a fresh context.
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_, _ = c.CompareAndDelete(rctx, key, token)
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}
