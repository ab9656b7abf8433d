package model

import "time"

// BlacklistEntry is a one-directional block from BlockerID to BlockedID.
type BlacklistEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BlockerID int64     `gorm:"uniqueIndex:idx_blacklist_pair;not null" json:"blocker_id"`
	BlockedID int64     `gorm:"uniqueIndex:idx_blacklist_pair;index:idx_blacklist_blocked;not null" json:"blocked_id"`
	Reason    string    `gorm:"type:text" json:"reason"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BlacklistEntry) TableName() string {
	return "blacklist_entries"
}
