package model

import "time"

// Group visibility.
const (
	GroupPublic  = "public"
	GroupPrivate = "private"
)

// Permission policies. PermAll is only valid for posting.
const (
	PermAll        = "all"
	PermModerators = "moderators"
	PermAdmins     = "admins"
)

// Membership roles, ordered admin > moderator > member.
const (
	GroupRoleMember    = "member"
	GroupRoleModerator = "moderator"
	GroupRoleAdmin     = "admin"
)

// Join request states. Resolved requests are deleted; the resolved status is
// only carried on the value returned to the caller.
const (
	JoinPending  = "pending"
	JoinApproved = "approved"
	JoinRejected = "rejected"
)

// Group is a community with role-gated posting and moderation.
type Group struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description       string    `gorm:"type:text" json:"description"`
	Visibility        string    `gorm:"size:16;default:'public';not null" json:"visibility"`
	CreatorID         int64     `gorm:"index:idx_group_creator;not null" json:"creator_id"`
	PostPermission    string    `gorm:"size:16;default:'all';not null" json:"post_permission"`
	RequestPermission string    `gorm:"size:16;default:'moderators';not null" json:"request_permission"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GroupMember links a user to a group with a role.
type GroupMember struct {
	GroupID  int64     `gorm:"primaryKey" json:"group_id"`
	UserID   int64     `gorm:"primaryKey;index:idx_member_user" json:"user_id"`
	Role     string    `gorm:"size:16;default:'member';not null" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// GroupJoinRequest is a pending ask-to-join for a private group.
type GroupJoinRequest struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID   int64     `gorm:"index:idx_join_request;not null" json:"group_id"`
	UserID    int64     `gorm:"index:idx_join_request;not null" json:"user_id"`
	Status    string    `gorm:"size:16;default:'pending';not null" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// RoleRank orders membership roles; unknown roles rank 0.
func RoleRank(role string) int {
	switch role {
	case GroupRoleAdmin:
		return 3
	case GroupRoleModerator:
		return 2
	case GroupRoleMember:
		return 1
	}
	return 0
}
