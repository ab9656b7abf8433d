// Package event delivers per-user notifications over the cache PubSub.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kasuganosora/socialgraph/cache"
	"go.uber.org/zap"
)

// Kind names a notification type.
type Kind string

const (
	FriendRequest    Kind = "friend_request"
	FriendAccepted   Kind = "friend_accepted"
	JoinRequest      Kind = "join_request"
	JoinApproved     Kind = "join_approved"
	JoinRejected     Kind = "join_rejected"
	RoleChanged      Kind = "role_changed"
	RemovedFromGroup Kind = "removed_from_group"
	GroupDeleted     Kind = "group_deleted"
	UserBanned       Kind = "user_banned"
)

// Notification is the payload pushed to a user's channel.
type Notification struct {
	Kind    Kind      `json:"kind"`
	ActorID int64     `json:"actor_id"`
	GroupID int64     `json:"group_id,omitempty"`
	RefID   int64     `json:"ref_id,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Channel is the PubSub channel carrying userID's notifications.
func Channel(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// Publisher fans notifications out to user channels.
type Publisher struct {
	ps     cache.PubSub
	logger *zap.Logger
}

// NewPublisher creates a Publisher over ps.
func NewPublisher(ps cache.PubSub, logger *zap.Logger) *Publisher {
	return &Publisher{ps: ps, logger: logger}
}

// Notify publishes n to each recipient. Delivery is best effort: state has
// already been committed, so failures are logged and not returned. A nil
// Publisher drops everything.
func (p *Publisher) Notify(ctx context.Context, n Notification, recipients ...int64) {
	if p == nil {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		p.logger.Error("notification encode failed", zap.String("kind", string(n.Kind)), zap.Error(err))
		return
	}
	for _, uid := range recipients {
		if err := p.ps.Publish(ctx, Channel(uid), string(payload)); err != nil {
			p.logger.Warn("notification publish failed",
				zap.String("kind", string(n.Kind)),
				zap.Int64("user_id", uid),
				zap.Error(err))
		}
	}
}

// Subscribe streams userID's notifications until cancel is called or ctx
// ends. Payloads that fail to decode are skipped.
func (p *Publisher) Subscribe(ctx context.Context, userID int64) (<-chan Notification, func(), error) {
	ctx, stop := context.WithCancel(ctx)
	msgs, unsubscribe, err := p.ps.Subscribe(ctx, Channel(userID))
	if err != nil {
		stop()
		return nil, nil, err
	}
	out := make(chan Notification, 16)
	go func() {
		defer close(out)
		for {
			var msg *cache.Message
			select {
			case m, ok := <-msgs:
				if !ok {
					return
				}
				msg = m
			case <-ctx.Done():
				return
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				p.logger.Debug("notification decode failed", zap.Error(err))
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	cancel := func() {
		stop()
		unsubscribe()
	}
	return out, cancel, nil
}
