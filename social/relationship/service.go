// Package relationship implements the friendship request state machine.
//
// A pair of users has at most one Friendship row. States are none,
// pending(sender), accepted and rejected. Every mutation holds the pair lock
// and runs in one transaction, so two concurrent responses to the same
// request cannot both succeed.
package relationship

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/event"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcome describes what a friend request did.
type Outcome string

const (
	OutcomeRequested      Outcome = "requested"
	OutcomeAccepted       Outcome = "accepted"
	OutcomeAlreadyPending Outcome = "already_pending"
	OutcomeAlreadyFriends Outcome = "already_friends"
	OutcomeAlreadyDecided Outcome = "already_decided"
)

// Action is a response to a pending request.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionCancel Action = "cancel"
)

// Relation is the friendship state between a viewer and another user.
type Relation string

const (
	RelationNone            Relation = "none"
	RelationSelf            Relation = "self"
	RelationPendingOutgoing Relation = "pending_outgoing"
	RelationPendingIncoming Relation = "pending_incoming"
	RelationFriends         Relation = "friends"
	RelationRejected        Relation = "rejected"
)

// Options are the relationship policy switches.
type Options struct {
	// AllowReRequestAfterReject lets a fresh request replace a rejected row.
	AllowReRequestAfterReject bool
	LockWait                  time.Duration
}

// Service is the relationship engine.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	events *event.Publisher
	opts   Options
	logger *zap.Logger
}

// NewService creates a relationship Service.
func NewService(db *gorm.DB, c cache.Cache, events *event.Publisher, opts Options, logger *zap.Logger) *Service {
	if opts.LockWait <= 0 {
		opts.LockWait = 3 * time.Second
	}
	return &Service{db: db, cache: c, events: events, opts: opts, logger: logger}
}

// findPair loads the row for the unordered pair, or nil when there is none.
func findPair(tx *gorm.DB, a, b int64) (*model.Friendship, error) {
	lo, hi := model.PairKey(a, b)
	var f model.Friendship
	err := social.ForUpdate(tx).Where("user_lo = ? AND user_hi = ?", lo, hi).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Request asks b for friendship on behalf of a. A pending request from b is
// accepted instead, which is how the single "add friend" action confirms.
func (svc *Service) Request(ctx context.Context, a, b int64) (*model.Friendship, Outcome, error) {
	if a == b {
		return nil, "", social.ErrSelfReference
	}
	var (
		row     *model.Friendship
		outcome Outcome
	)
	err := social.WithLock(ctx, svc.cache, social.PairLockKey(a, b), svc.opts.LockWait, func() error {
		return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := social.ActiveUser(tx, a); err != nil {
				return err
			}
			target, err := social.FindUser(tx, b)
			if err != nil {
				return err
			}
			// banned accounts are hidden, so they look missing here too
			if target.Banned {
				return fmt.Errorf("%w: user %d", social.ErrNotFound, b)
			}
			blocked, err := social.BlockedEither(tx, a, b)
			if err != nil {
				return err
			}
			if blocked {
				return social.ErrBlocked
			}

			existing, err := findPair(tx, a, b)
			if err != nil {
				return err
			}
			switch {
			case existing == nil:
				row, outcome = &model.Friendship{SenderID: a, ReceiverID: b, Status: model.FriendshipPending}, OutcomeRequested
				return tx.Create(row).Error

			case existing.Status == model.FriendshipPending && existing.ReceiverID == a:
				row, outcome = existing, OutcomeAccepted
				return setStatus(tx, existing, model.FriendshipPending, model.FriendshipAccepted)

			case existing.Status == model.FriendshipPending:
				row, outcome = existing, OutcomeAlreadyPending
				return nil

			case existing.Status == model.FriendshipAccepted:
				row, outcome = existing, OutcomeAlreadyFriends
				return nil

			case !svc.opts.AllowReRequestAfterReject:
				row, outcome = existing, OutcomeAlreadyDecided
				return nil
			}
			// Rejected and re-requests are allowed: start over with a fresh row.
			if err := tx.Delete(existing).Error; err != nil {
				return err
			}
			row, outcome = &model.Friendship{SenderID: a, ReceiverID: b, Status: model.FriendshipPending}, OutcomeRequested
			return tx.Create(row).Error
		})
	})
	if err != nil {
		if social.IsUniqueViolation(err) {
			return nil, "", fmt.Errorf("%w: concurrent friend request", social.ErrConflict)
		}
		return nil, "", err
	}

	switch outcome {
	case OutcomeRequested:
		svc.logger.Info("friend request sent", zap.Int64("from", a), zap.Int64("to", b))
		svc.events.Notify(ctx, event.Notification{Kind: event.FriendRequest, ActorID: a, RefID: row.ID}, b)
	case OutcomeAccepted:
		svc.logger.Info("friendship accepted", zap.Int64("user_a", a), zap.Int64("user_b", b))
		svc.events.Notify(ctx, event.Notification{Kind: event.FriendAccepted, ActorID: a, RefID: row.ID}, b)
	}
	return row, outcome, nil
}

// setStatus moves f from one status to another, failing with ErrConflict if
// the row changed underneath.
func setStatus(tx *gorm.DB, f *model.Friendship, from, to string) error {
	res := tx.Model(&model.Friendship{}).
		Where("id = ? AND status = ?", f.ID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: request %d is no longer %s", social.ErrConflict, f.ID, from)
	}
	f.Status = to
	return nil
}

// Respond applies action to the request on behalf of actor. Accept and
// reject belong to the receiver, cancel to the sender. Cancel deletes the
// row; the returned value is the row as it was.
func (svc *Service) Respond(ctx context.Context, requestID, actor int64, action Action) (*model.Friendship, error) {
	var peek model.Friendship
	if err := svc.db.WithContext(ctx).First(&peek, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: friend request %d", social.ErrNotFound, requestID)
		}
		return nil, err
	}
	switch action {
	case ActionAccept, ActionReject, ActionCancel:
	default:
		return nil, fmt.Errorf("%w: action %q", social.ErrInvalidArgument, action)
	}

	var row model.Friendship
	err := social.WithLock(ctx, svc.cache, social.PairLockKey(peek.SenderID, peek.ReceiverID), svc.opts.LockWait, func() error {
		return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := social.ActiveUser(tx, actor); err != nil {
				return err
			}
			if err := social.ForUpdate(tx).First(&row, requestID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: friend request %d", social.ErrNotFound, requestID)
				}
				return err
			}
			switch action {
			case ActionAccept, ActionReject:
				if row.ReceiverID != actor {
					return social.ErrNotAuthorized
				}
				if row.Status != model.FriendshipPending {
					return fmt.Errorf("%w: request %d is %s", social.ErrConflict, row.ID, row.Status)
				}
				to := model.FriendshipAccepted
				if action == ActionReject {
					to = model.FriendshipRejected
				}
				return setStatus(tx, &row, model.FriendshipPending, to)
			default:
				if row.SenderID != actor || row.Status != model.FriendshipPending {
					return social.ErrNotAuthorized
				}
				res := tx.Where("id = ? AND status = ?", row.ID, model.FriendshipPending).Delete(&model.Friendship{})
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					return fmt.Errorf("%w: request %d already resolved", social.ErrConflict, row.ID)
				}
				return nil
			}
		})
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info("friend request resolved",
		zap.Int64("request_id", row.ID),
		zap.Int64("actor", actor),
		zap.String("action", string(action)))
	if action == ActionAccept {
		svc.events.Notify(ctx, event.Notification{Kind: event.FriendAccepted, ActorID: actor, RefID: row.ID}, row.SenderID)
	}
	return &row, nil
}

// Unfriend removes an accepted friendship. It reports whether a row was
// removed; any other state is left alone.
func (svc *Service) Unfriend(ctx context.Context, a, b int64) (bool, error) {
	if a == b {
		return false, social.ErrSelfReference
	}
	var removed bool
	err := social.WithLock(ctx, svc.cache, social.PairLockKey(a, b), svc.opts.LockWait, func() error {
		return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			lo, hi := model.PairKey(a, b)
			res := tx.Where("user_lo = ? AND user_hi = ? AND status = ?", lo, hi, model.FriendshipAccepted).
				Delete(&model.Friendship{})
			if res.Error != nil {
				return res.Error
			}
			removed = res.RowsAffected > 0
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	if removed {
		svc.logger.Info("friendship removed", zap.Int64("user_a", a), zap.Int64("user_b", b))
	}
	return removed, nil
}

// FriendIDs returns the counterpart ids of every accepted friendship of user.
func (svc *Service) FriendIDs(ctx context.Context, user int64) (IDSet, error) {
	return FriendIDs(svc.db.WithContext(ctx), user)
}

// FriendIDs is FriendIDs on an existing handle, for use inside transactions.
func FriendIDs(tx *gorm.DB, user int64) (IDSet, error) {
	var rows []model.Friendship
	err := tx.Where("(sender_id = ? OR receiver_id = ?) AND status = ?", user, user, model.FriendshipAccepted).
		Find(&rows).Error
	if err != nil {
		return IDSet{}, err
	}
	ids := make([]int64, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].Counterpart(user))
	}
	return newIDSet(ids), nil
}

// Incoming lists pending requests received by user, newest first.
func (svc *Service) Incoming(ctx context.Context, user int64) ([]model.Friendship, error) {
	var rows []model.Friendship
	err := svc.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", user, model.FriendshipPending).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

// Outgoing lists pending requests sent by user, newest first.
func (svc *Service) Outgoing(ctx context.Context, user int64) ([]model.Friendship, error) {
	var rows []model.Friendship
	err := svc.db.WithContext(ctx).
		Where("sender_id = ? AND status = ?", user, model.FriendshipPending).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

// Between projects the friendship row between viewer and other.
func (svc *Service) Between(ctx context.Context, viewer, other int64) (Relation, error) {
	return Between(svc.db.WithContext(ctx), viewer, other)
}

// Between is Between on an existing handle.
func Between(tx *gorm.DB, viewer, other int64) (Relation, error) {
	if viewer == other {
		return RelationSelf, nil
	}
	lo, hi := model.PairKey(viewer, other)
	var f model.Friendship
	err := tx.Where("user_lo = ? AND user_hi = ?", lo, hi).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RelationNone, nil
	}
	if err != nil {
		return "", err
	}
	switch f.Status {
	case model.FriendshipAccepted:
		return RelationFriends, nil
	case model.FriendshipRejected:
		return RelationRejected, nil
	}
	if f.SenderID == viewer {
		return RelationPendingOutgoing, nil
	}
	return RelationPendingIncoming, nil
}
