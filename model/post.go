package model

import "time"

// Personal post visibility.
const (
	PostPublic  = "public"
	PostFriends = "friends"
)

// Post kinds, used by likes and the feed.
const (
	KindPost      = "post"
	KindGroupPost = "group_post"
	KindNews      = "news"
)

// Post is a personal post on a user's wall.
type Post struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"index:idx_post_user;not null" json:"user_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Visibility string    `gorm:"size:16;default:'public';not null" json:"visibility"`
	CreatedAt  time.Time `gorm:"index:idx_post_created;autoCreateTime" json:"created_at"`
}

// GroupPost is a post inside a group; it inherits the group's visibility.
type GroupPost struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID   int64     `gorm:"index:idx_group_post_group;not null" json:"group_id"`
	UserID    int64     `gorm:"index:idx_group_post_user;not null" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_group_post_created;autoCreateTime" json:"created_at"`
}

// PostLike is one user's like on a post of the given kind.
type PostLike struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PostKind  string    `gorm:"uniqueIndex:idx_like;size:16;not null" json:"post_kind"`
	PostID    int64     `gorm:"uniqueIndex:idx_like;not null" json:"post_id"`
	UserID    int64     `gorm:"uniqueIndex:idx_like;not null" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PostComment is a comment on a post of the given kind.
type PostComment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PostKind  string    `gorm:"index:idx_comment_post;size:16;not null" json:"post_kind"`
	PostID    int64     `gorm:"index:idx_comment_post;not null" json:"post_id"`
	UserID    int64     `gorm:"index:idx_comment_user;not null" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
