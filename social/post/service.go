// Package post stores personal and group posts, their likes and comments.
package post

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/plugin/hook"
	"github.com/kasuganosora/socialgraph/social"
	"github.com/kasuganosora/socialgraph/social/group"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxContent = 5000
	maxComment = 1000
)

// Service is the post store.
type Service struct {
	db     *gorm.DB
	hooks  *hook.Center
	logger *zap.Logger
}

// NewService creates a post Service. hooks may be nil.
func NewService(db *gorm.DB, hooks *hook.Center, logger *zap.Logger) *Service {
	return &Service{db: db, hooks: hooks, logger: logger}
}

// prepare validates content and runs it through the BeforePostCreate hooks.
func (svc *Service) prepare(ctx context.Context, author, groupID int64, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: empty post", social.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > maxContent {
		return "", fmt.Errorf("%w: post exceeds %d characters", social.ErrInvalidArgument, maxContent)
	}
	out, err := svc.hooks.Trigger(ctx, hook.BeforePostCreate, &hook.Draft{AuthorID: author, GroupID: groupID, Content: content})
	if errors.Is(err, hook.ErrInterrupt) {
		return "", fmt.Errorf("%w: %v", social.ErrInvalidArgument, err)
	}
	if err != nil {
		return "", err
	}
	if d, ok := out.(*hook.Draft); ok {
		content = d.Content
	}
	return content, nil
}

// Create publishes a personal post. An empty visibility means public.
func (svc *Service) Create(ctx context.Context, author int64, content, visibility string) (*model.Post, error) {
	if visibility == "" {
		visibility = model.PostPublic
	}
	if visibility != model.PostPublic && visibility != model.PostFriends {
		return nil, fmt.Errorf("%w: visibility %q", social.ErrInvalidArgument, visibility)
	}
	content, err := svc.prepare(ctx, author, 0, content)
	if err != nil {
		return nil, err
	}
	p := &model.Post{UserID: author, Content: content, Visibility: visibility}
	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := social.ActiveUser(tx, author); err != nil {
			return err
		}
		return tx.Create(p).Error
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Debug("post created", zap.Int64("post_id", p.ID), zap.Int64("author", author))
	return p, nil
}

// CreateGroupPost publishes into a group, subject to membership and the
// group's post policy.
func (svc *Service) CreateGroupPost(ctx context.Context, groupID, author int64, content string) (*model.GroupPost, error) {
	content, err := svc.prepare(ctx, author, groupID, content)
	if err != nil {
		return nil, err
	}
	p := &model.GroupPost{GroupID: groupID, UserID: author, Content: content}
	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := social.ActiveUser(tx, author); err != nil {
			return err
		}
		if _, err := group.AuthorizePost(tx, groupID, author); err != nil {
			return err
		}
		return tx.Create(p).Error
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Debug("group post created", zap.Int64("post_id", p.ID), zap.Int64("group_id", groupID))
	return p, nil
}

// Delete removes a personal post with its likes and comments. Only the author or a
// techadmin may delete.
func (svc *Service) Delete(ctx context.Context, postID, actor int64) error {
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := social.ActiveUser(tx, actor)
		if err != nil {
			return err
		}
		var p model.Post
		if err := tx.First(&p, postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: post %d", social.ErrNotFound, postID)
			}
			return err
		}
		if p.UserID != actor && u.Role != model.RoleTechAdmin {
			return social.ErrNotAuthorized
		}
		for _, m := range []interface{}{&model.PostLike{}, &model.PostComment{}} {
			if err := tx.Where("post_kind = ? AND post_id = ?", model.KindPost, postID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&p).Error
	})
}

// ToggleLike flips user's like on a post and returns the new state and the
// post's like count. Repeating the call undoes it.
func (svc *Service) ToggleLike(ctx context.Context, kind string, postID, user int64) (liked bool, count int64, err error) {
	if err := checkKind(kind); err != nil {
		return false, 0, err
	}
	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := social.ActiveUser(tx, user); err != nil {
			return err
		}
		if err := svc.loadVisible(tx, kind, postID, user); err != nil {
			return err
		}
		res := tx.Where("post_kind = ? AND post_id = ? AND user_id = ?", kind, postID, user).Delete(&model.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(&model.PostLike{PostKind: kind, PostID: postID, UserID: user}).Error; err != nil {
				return err
			}
			liked = true
		}
		return tx.Model(&model.PostLike{}).Where("post_kind = ? AND post_id = ?", kind, postID).Count(&count).Error
	})
	if err != nil {
		if social.IsUniqueViolation(err) {
			return false, 0, fmt.Errorf("%w: concurrent like", social.ErrConflict)
		}
		return false, 0, err
	}
	return liked, count, nil
}

func checkKind(kind string) error {
	if kind != model.KindPost && kind != model.KindGroupPost {
		return fmt.Errorf("%w: post kind %q", social.ErrInvalidArgument, kind)
	}
	return nil
}

// loadVisible fails with ErrNotFound for a missing post and ErrNotAuthorized
// when viewer may not see it.
func (svc *Service) loadVisible(tx *gorm.DB, kind string, postID, viewer int64) error {
	var target interface{} = &model.Post{}
	if kind == model.KindGroupPost {
		target = &model.GroupPost{}
	}
	if err := tx.First(target, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s %d", social.ErrNotFound, kind, postID)
		}
		return err
	}
	return svc.checkVisible(tx, target, viewer)
}

func (svc *Service) checkVisible(tx *gorm.DB, target interface{}, viewer int64) error {
	var ok bool
	var err error
	switch p := target.(type) {
	case *model.Post:
		ok, err = canSeePost(tx, p.UserID, p.Visibility, viewer)
	case *model.GroupPost:
		var g model.Group
		if err := tx.First(&g, p.GroupID).Error; err != nil {
			return err
		}
		ok, err = group.CanView(tx, &g, viewer)
	}
	if err != nil {
		return err
	}
	if !ok {
		return social.ErrNotAuthorized
	}
	return nil
}

// canSeePost applies personal post visibility: authors see their own posts,
// friends see friends-only posts, and a block in either direction hides
// everything.
func canSeePost(tx *gorm.DB, author int64, visibility string, viewer int64) (bool, error) {
	if author == viewer {
		return true, nil
	}
	blocked, err := social.BlockedEither(tx, author, viewer)
	if err != nil || blocked {
		return false, err
	}
	if visibility == model.PostPublic {
		return true, nil
	}
	return social.AreFriends(tx, author, viewer)
}

// ListByAuthor returns author's posts that viewer may see, newest first.
func (svc *Service) ListByAuthor(ctx context.Context, viewer, author int64) ([]model.Post, error) {
	db := svc.db.WithContext(ctx)
	if _, err := social.FindUser(db, author); err != nil {
		return nil, err
	}
	q := db.Where("user_id = ?", author)
	if viewer != author {
		blocked, err := social.BlockedEither(db, author, viewer)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, social.ErrNotAuthorized
		}
		friends, err := social.AreFriends(db, author, viewer)
		if err != nil {
			return nil, err
		}
		if !friends {
			q = q.Where("visibility = ?", model.PostPublic)
		}
	}
	var posts []model.Post
	err := q.Order("created_at DESC, id DESC").Find(&posts).Error
	return posts, err
}

// ListByGroup returns a group's posts, newest first. Private groups show
// them to members only.
func (svc *Service) ListByGroup(ctx context.Context, viewer, groupID int64) ([]model.GroupPost, error) {
	db := svc.db.WithContext(ctx)
	var g model.Group
	if err := db.First(&g, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group %d", social.ErrNotFound, groupID)
		}
		return nil, err
	}
	ok, err := group.CanView(db, &g, viewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, social.ErrNotAuthorized
	}
	var posts []model.GroupPost
	err = db.Where("group_id = ?", groupID).Order("created_at DESC, id DESC").Find(&posts).Error
	return posts, err
}

// LikeCount returns the number of likes on a post.
func (svc *Service) LikeCount(ctx context.Context, kind string, postID int64) (int64, error) {
	var n int64
	err := svc.db.WithContext(ctx).Model(&model.PostLike{}).
		Where("post_kind = ? AND post_id = ?", kind, postID).
		Count(&n).Error
	return n, err
}

// Comment adds user's comment to a post the user can see.
func (svc *Service) Comment(ctx context.Context, kind string, postID, user int64, content string) (*model.PostComment, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty comment", social.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > maxComment {
		return nil, fmt.Errorf("%w: comment exceeds %d characters", social.ErrInvalidArgument, maxComment)
	}
	cm := &model.PostComment{PostKind: kind, PostID: postID, UserID: user, Content: content}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := social.ActiveUser(tx, user); err != nil {
			return err
		}
		if err := svc.loadVisible(tx, kind, postID, user); err != nil {
			return err
		}
		return tx.Create(cm).Error
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Debug("comment added", zap.String("kind", kind), zap.Int64("post_id", postID), zap.Int64("user_id", user))
	return cm, nil
}

// Comments lists a post's comments oldest first. Comments by banned users
// and by users on either side of a block with viewer are left out.
func (svc *Service) Comments(ctx context.Context, viewer int64, kind string, postID int64) ([]model.PostComment, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	db := svc.db.WithContext(ctx)
	if err := svc.loadVisible(db, kind, postID, viewer); err != nil {
		return nil, err
	}
	hidden := db.Session(&gorm.Session{NewDB: true})
	var out []model.PostComment
	err := db.Where("post_kind = ? AND post_id = ?", kind, postID).
		Where("user_id NOT IN (?)", hidden.Model(&model.User{}).Select("id").Where("banned = ?", true)).
		Where("user_id NOT IN (?)", hidden.Model(&model.BlacklistEntry{}).Select("blocked_id").Where("blocker_id = ?", viewer)).
		Where("user_id NOT IN (?)", hidden.Model(&model.BlacklistEntry{}).Select("blocker_id").Where("blocked_id = ?", viewer)).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
