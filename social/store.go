package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockTTL bounds how long a crashed holder keeps a pair or group lock.
const lockTTL = 15 * time.Second

// PairLockKey names the lock serializing friendship and blacklist changes
// between two users, independent of argument order.
func PairLockKey(a, b int64) string {
	lo, hi := model.PairKey(a, b)
	return fmt.Sprintf("lock:friendship:%d_%d", lo, hi)
}

// GroupLockKey names the lock serializing membership changes of one group.
func GroupLockKey(groupID int64) string {
	return fmt.Sprintf("lock:group:%d", groupID)
}

// BannedKey is the cache marker checked by the auth middleware.
func BannedKey(userID int64) string {
	return fmt.Sprintf("banned:%d", userID)
}

// WithLock runs fn while holding key. A lock that cannot be taken within
// wait surfaces as ErrConflict so callers can retry.
func WithLock(ctx context.Context, c cache.Cache, key string, wait time.Duration, fn func() error) error {
	unlock, err := cache.Lock(ctx, c, key, lockTTL, wait)
	if err != nil {
		if errors.Is(err, cache.ErrLockTimeout) {
			return fmt.Errorf("%w: %s is busy", ErrConflict, key)
		}
		return err
	}
	defer unlock()
	return fn()
}

// ForUpdate adds a row lock to the query. SQLite serializes writers on its
// own and rejects the clause, so it is skipped there.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// FindUser loads a user or returns ErrNotFound.
func FindUser(tx *gorm.DB, id int64) (*model.User, error) {
	var u model.User
	if err := tx.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &u, nil
}

// ActiveUser loads the acting user; banned accounts may not act.
func ActiveUser(tx *gorm.DB, id int64) (*model.User, error) {
	u, err := FindUser(tx, id)
	if err != nil {
		return nil, err
	}
	if u.Banned {
		return nil, fmt.Errorf("%w: user %d is banned", ErrNotAuthorized, id)
	}
	return u, nil
}

// BlockedEither reports whether a blacklist entry exists between a and b in
// either direction.
func BlockedEither(tx *gorm.DB, a, b int64) (bool, error) {
	var n int64
	err := tx.Model(&model.BlacklistEntry{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// AreFriends reports whether an accepted friendship joins a and b.
func AreFriends(tx *gorm.DB, a, b int64) (bool, error) {
	lo, hi := model.PairKey(a, b)
	var n int64
	err := tx.Model(&model.Friendship{}).
		Where("user_lo = ? AND user_hi = ? AND status = ?", lo, hi, model.FriendshipAccepted).
		Count(&n).Error
	return n > 0, err
}
