// Package feed composes what a viewer may see: the merged feed, profile
// visibility and per-user summaries. It never writes.
package feed

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"github.com/kasuganosora/socialgraph/social/relationship"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Item is one feed entry. AuthorID is zero for news, GroupID only set for
// group posts. Comments counts the comments viewer can see.
type Item struct {
	Kind      string    `json:"kind"`
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id,omitempty"`
	GroupID   int64     `json:"group_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	Link      string    `json:"link,omitempty"`
	Comments  int64     `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is a composed feed, newest first.
type Result struct {
	items []Item
}

// All iterates the feed in order. It may be ranged over repeatedly.
func (r *Result) All() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for _, it := range r.items {
			if !yield(it) {
				return
			}
		}
	}
}

// Len is the number of items in the page.
func (r *Result) Len() int { return len(r.items) }

var kindRank = map[string]int{
	model.KindPost:      0,
	model.KindGroupPost: 1,
	model.KindNews:      2,
}

func compareItems(a, b Item) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(kindRank[a.Kind], kindRank[b.Kind]); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// Summary holds the counters shown on a profile.
type Summary struct {
	Posts           int64 `json:"posts"`
	Friends         int64 `json:"friends"`
	PendingIncoming int64 `json:"pending_incoming"`
	Blacklisted     int64 `json:"blacklisted"`
}

// Composer builds feeds and profile projections.
type Composer struct {
	db           *gorm.DB
	news         NewsSource
	defaultLimit int
	logger       *zap.Logger
}

// NewComposer creates a Composer. news may be nil.
func NewComposer(db *gorm.DB, news NewsSource, defaultLimit int, logger *zap.Logger) *Composer {
	if defaultLimit <= 0 {
		defaultLimit = 30
	}
	return &Composer{db: db, news: news, defaultLimit: defaultLimit, logger: logger}
}

// visibleAuthors restricts q to authors that are not banned and have no
// blacklist entry with viewer in either direction.
func visibleAuthors(q *gorm.DB, table string, viewer int64) *gorm.DB {
	col := table + ".user_id"
	return q.
		Where(col+" NOT IN (?)", q.Session(&gorm.Session{NewDB: true}).Model(&model.User{}).Select("id").Where("banned = ?", true)).
		Where(col+" NOT IN (?)", q.Session(&gorm.Session{NewDB: true}).Model(&model.BlacklistEntry{}).Select("blocked_id").Where("blocker_id = ?", viewer)).
		Where(col+" NOT IN (?)", q.Session(&gorm.Session{NewDB: true}).Model(&model.BlacklistEntry{}).Select("blocker_id").Where("blocked_id = ?", viewer))
}

// Feed returns up to limit items for viewer: personal posts it may see,
// posts of groups it belongs to, and news. limit <= 0 uses the default.
func (c *Composer) Feed(ctx context.Context, viewer int64, limit int) (*Result, error) {
	if limit <= 0 {
		limit = c.defaultLimit
	}
	db := c.db.WithContext(ctx)
	if _, err := social.FindUser(db, viewer); err != nil {
		return nil, err
	}
	friends, err := relationship.FriendIDs(db, viewer)
	if err != nil {
		return nil, err
	}

	var posts []model.Post
	q := db.Model(&model.Post{})
	if friends.Len() > 0 {
		q = q.Where("posts.visibility = ? OR posts.user_id = ? OR (posts.visibility = ? AND posts.user_id IN ?)",
			model.PostPublic, viewer, model.PostFriends, friends.Slice())
	} else {
		q = q.Where("posts.visibility = ? OR posts.user_id = ?", model.PostPublic, viewer)
	}
	if err := visibleAuthors(q, "posts", viewer).
		Order("created_at DESC, id DESC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, err
	}

	var gposts []model.GroupPost
	q = db.Model(&model.GroupPost{}).
		Where("group_posts.group_id IN (?)", db.Model(&model.GroupMember{}).Select("group_id").Where("user_id = ?", viewer))
	if err := visibleAuthors(q, "group_posts", viewer).
		Order("created_at DESC, id DESC").Limit(limit).Find(&gposts).Error; err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(posts)+len(gposts))
	for _, p := range posts {
		items = append(items, Item{Kind: model.KindPost, ID: p.ID, AuthorID: p.UserID, Content: p.Content, CreatedAt: p.CreatedAt})
	}
	for _, p := range gposts {
		items = append(items, Item{Kind: model.KindGroupPost, ID: p.ID, AuthorID: p.UserID, GroupID: p.GroupID, Content: p.Content, CreatedAt: p.CreatedAt})
	}
	if c.news != nil {
		news, err := c.news.Recent(ctx, limit)
		if err != nil {
			// a failing news source degrades to posts only
			c.logger.Warn("news source failed", zap.Error(err))
		}
		for _, n := range news {
			items = append(items, Item{Kind: model.KindNews, ID: n.ID, Title: n.Title, Content: n.Description, Link: n.Link, CreatedAt: n.PublishedAt})
		}
	}

	slices.SortFunc(items, compareItems)
	if len(items) > limit {
		items = items[:limit]
	}
	if err := countComments(db, viewer, items); err != nil {
		return nil, err
	}
	return &Result{items: items}, nil
}

// countComments fills Comments for the post items, one query per kind.
func countComments(db *gorm.DB, viewer int64, items []Item) error {
	for _, kind := range []string{model.KindPost, model.KindGroupPost} {
		var ids []int64
		for _, it := range items {
			if it.Kind == kind {
				ids = append(ids, it.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		var rows []struct {
			PostID int64
			N      int64
		}
		q := db.Model(&model.PostComment{}).
			Select("post_comments.post_id, COUNT(*) AS n").
			Where("post_comments.post_kind = ? AND post_comments.post_id IN ?", kind, ids)
		if err := visibleAuthors(q, "post_comments", viewer).
			Group("post_comments.post_id").Scan(&rows).Error; err != nil {
			return err
		}
		counts := make(map[int64]int64, len(rows))
		for _, r := range rows {
			counts[r.PostID] = r.N
		}
		for i := range items {
			if items[i].Kind == kind {
				items[i].Comments = counts[items[i].ID]
			}
		}
	}
	return nil
}

// CanViewProfile reports whether viewer may see other's profile. Banned
// users and users who blocked the viewer are hidden; techadmins see all.
func (c *Composer) CanViewProfile(ctx context.Context, viewer, other int64) (bool, error) {
	db := c.db.WithContext(ctx)
	target, err := social.FindUser(db, other)
	if err != nil {
		return false, err
	}
	if viewer == other {
		return true, nil
	}
	v, err := social.FindUser(db, viewer)
	if err != nil {
		return false, err
	}
	if v.Role == model.RoleTechAdmin {
		return true, nil
	}
	if target.Banned {
		return false, nil
	}
	var n int64
	err = db.Model(&model.BlacklistEntry{}).
		Where("blocker_id = ? AND blocked_id = ?", other, viewer).
		Count(&n).Error
	return n == 0, err
}

// FriendStatusBetween projects the relationship as seen by viewer.
func (c *Composer) FriendStatusBetween(ctx context.Context, viewer, other int64) (relationship.Relation, error) {
	return relationship.Between(c.db.WithContext(ctx), viewer, other)
}

// Summary counts user's posts, friends, pending incoming requests and
// blacklist entries.
func (c *Composer) Summary(ctx context.Context, user int64) (*Summary, error) {
	db := c.db.WithContext(ctx)
	if _, err := social.FindUser(db, user); err != nil {
		return nil, err
	}
	var s Summary
	if err := db.Model(&model.Post{}).Where("user_id = ?", user).Count(&s.Posts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Friendship{}).
		Where("(sender_id = ? OR receiver_id = ?) AND status = ?", user, user, model.FriendshipAccepted).
		Count(&s.Friends).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Friendship{}).
		Where("receiver_id = ? AND status = ?", user, model.FriendshipPending).
		Count(&s.PendingIncoming).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.BlacklistEntry{}).Where("blocker_id = ?", user).Count(&s.Blacklisted).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
