// Package blacklist implements one-directional blocks. Placing a block
// severs any friendship row between the pair in the same transaction.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxReason = 500

// Service is the blacklist guard.
type Service struct {
	db       *gorm.DB
	cache    cache.Cache
	lockWait time.Duration
	logger   *zap.Logger
}

// NewService creates a blacklist Service. It shares the friendship pair
// lock so a concurrent accept cannot outlive the block.
func NewService(db *gorm.DB, c cache.Cache, lockWait time.Duration, logger *zap.Logger) *Service {
	if lockWait <= 0 {
		lockWait = 3 * time.Second
	}
	return &Service{db: db, cache: c, lockWait: lockWait, logger: logger}
}

// Block records that blocker blocks blocked. Blocking twice is not an error;
// created reports whether this call inserted the entry.
func (svc *Service) Block(ctx context.Context, blocker, blocked int64, reason string) (entry *model.BlacklistEntry, created bool, err error) {
	if blocker == blocked {
		return nil, false, social.ErrSelfReference
	}
	if utf8.RuneCountInString(reason) > maxReason {
		return nil, false, fmt.Errorf("%w: reason is limited to %d characters", social.ErrInvalidArgument, maxReason)
	}
	var severed int64
	err = social.WithLock(ctx, svc.cache, social.PairLockKey(blocker, blocked), svc.lockWait, func() error {
		return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := social.ActiveUser(tx, blocker); err != nil {
				return err
			}
			if _, err := social.FindUser(tx, blocked); err != nil {
				return err
			}
			var existing model.BlacklistEntry
			err := tx.Where("blocker_id = ? AND blocked_id = ?", blocker, blocked).First(&existing).Error
			if err == nil {
				entry = &existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			entry = &model.BlacklistEntry{BlockerID: blocker, BlockedID: blocked, Reason: reason}
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
			lo, hi := model.PairKey(blocker, blocked)
			res := tx.Where("user_lo = ? AND user_hi = ?", lo, hi).Delete(&model.Friendship{})
			if res.Error != nil {
				return res.Error
			}
			severed = res.RowsAffected
			created = true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		svc.logger.Info("user blocked",
			zap.Int64("blocker", blocker),
			zap.Int64("blocked", blocked),
			zap.Int64("friendships_severed", severed))
	}
	return entry, created, nil
}

// Unblock removes the entry if present. Friendships are not restored.
func (svc *Service) Unblock(ctx context.Context, blocker, blocked int64) (bool, error) {
	if blocker == blocked {
		return false, social.ErrSelfReference
	}
	var removed bool
	err := social.WithLock(ctx, svc.cache, social.PairLockKey(blocker, blocked), svc.lockWait, func() error {
		res := svc.db.WithContext(ctx).
			Where("blocker_id = ? AND blocked_id = ?", blocker, blocked).
			Delete(&model.BlacklistEntry{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed {
		svc.logger.Info("user unblocked", zap.Int64("blocker", blocker), zap.Int64("blocked", blocked))
	}
	return removed, nil
}

// IsBlocked reports whether a has blocked b. The check is directional.
func (svc *Service) IsBlocked(ctx context.Context, a, b int64) (bool, error) {
	var n int64
	err := svc.db.WithContext(ctx).Model(&model.BlacklistEntry{}).
		Where("blocker_id = ? AND blocked_id = ?", a, b).
		Count(&n).Error
	return n > 0, err
}

// List returns blocker's entries, newest first.
func (svc *Service) List(ctx context.Context, blocker int64) ([]model.BlacklistEntry, error) {
	var entries []model.BlacklistEntry
	err := svc.db.WithContext(ctx).
		Where("blocker_id = ?", blocker).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	return entries, err
}
