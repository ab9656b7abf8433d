package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipRejected = "rejected"
)

// Friendship is a friend request between two users and its outcome.
// UserLo/UserHi hold the unordered pair; the unique index on them keeps at
// most one row per pair regardless of who sent the request.
type Friendship struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID   int64     `gorm:"index:idx_friendship_sender;not null" json:"sender_id"`
	ReceiverID int64     `gorm:"index:idx_friendship_receiver;not null" json:"receiver_id"`
	UserLo     int64     `gorm:"uniqueIndex:idx_friendship_pair;not null" json:"-"`
	UserHi     int64     `gorm:"uniqueIndex:idx_friendship_pair;not null" json:"-"`
	Status     string    `gorm:"size:16;default:'pending';not null" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate fills the unordered pair columns.
func (f *Friendship) BeforeCreate(_ *gorm.DB) error {
	f.UserLo, f.UserHi = PairKey(f.SenderID, f.ReceiverID)
	return nil
}

// Counterpart returns the other side of the friendship as seen by userID.
func (f *Friendship) Counterpart(userID int64) int64 {
	if f.SenderID == userID {
		return f.ReceiverID
	}
	return f.SenderID
}

// PairKey orders two user ids, smaller first.
func PairKey(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
