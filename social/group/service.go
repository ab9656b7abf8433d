// Package group implements groups, their membership roles and the policies
// that gate posting and join-request handling.
//
// Every mutation of a group holds lock:group:<id> and runs in one
// transaction. A group always has at least one admin while it exists.
package group

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/event"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Action resolves a join request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// JoinOutcome describes what Join did.
type JoinOutcome string

const (
	Joined           JoinOutcome = "joined"
	Requested        JoinOutcome = "requested"
	AlreadyMember    JoinOutcome = "already_member"
	AlreadyRequested JoinOutcome = "already_requested"
)

// Options are the group policy switches.
type Options struct {
	// TransferMovesCreator makes TransferAdmin hand creator attribution to
	// the target along with the admin role.
	TransferMovesCreator bool
	LockWait             time.Duration
}

// CreateParams describes a new group. Empty policies take the defaults
// (public, all, moderators).
type CreateParams struct {
	Name              string
	Description       string
	Visibility        string
	PostPermission    string
	RequestPermission string
}

// Service is the group authorization engine.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	events *event.Publisher
	audit  *audit.Service
	opts   Options
	logger *zap.Logger
}

// NewService creates a group Service.
func NewService(db *gorm.DB, c cache.Cache, events *event.Publisher, auditSvc *audit.Service, opts Options, logger *zap.Logger) *Service {
	if opts.LockWait <= 0 {
		opts.LockWait = 3 * time.Second
	}
	return &Service{db: db, cache: c, events: events, audit: auditSvc, opts: opts, logger: logger}
}

func (svc *Service) locked(ctx context.Context, groupID int64, fn func(tx *gorm.DB) error) error {
	return social.WithLock(ctx, svc.cache, social.GroupLockKey(groupID), svc.opts.LockWait, func() error {
		return svc.db.WithContext(ctx).Transaction(fn)
	})
}

// loadGroup row-locks the group; holding it orders mutations that reach the
// database without the cache lock.
func loadGroup(tx *gorm.DB, id int64) (*model.Group, error) {
	var g model.Group
	if err := social.ForUpdate(tx).First(&g, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group %d", social.ErrNotFound, id)
		}
		return nil, err
	}
	return &g, nil
}

// membership returns the member row, or nil when userID is not a member.
func membership(tx *gorm.DB, groupID, userID int64) (*model.GroupMember, error) {
	var m model.GroupMember
	err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func adminCount(tx *gorm.DB, groupID int64) (int64, error) {
	var n int64
	err := tx.Model(&model.GroupMember{}).
		Where("group_id = ? AND role = ?", groupID, model.GroupRoleAdmin).
		Count(&n).Error
	return n, err
}

// actingMember loads the group and the actor's membership; non-members are
// not authorized.
func actingMember(tx *gorm.DB, groupID, actor int64) (*model.Group, *model.GroupMember, error) {
	if _, err := social.ActiveUser(tx, actor); err != nil {
		return nil, nil, err
	}
	g, err := loadGroup(tx, groupID)
	if err != nil {
		return nil, nil, err
	}
	m, err := membership(tx, groupID, actor)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, fmt.Errorf("%w: user %d is not a member of group %d", social.ErrNotAuthorized, actor, groupID)
	}
	return g, m, nil
}

func int64Ptr(v int64) *int64 { return &v }

// Create makes a group and its creator's admin membership in one
// transaction.
func (svc *Service) Create(ctx context.Context, creator int64, p CreateParams) (*model.Group, error) {
	p.Name = strings.TrimSpace(p.Name)
	if n := utf8.RuneCountInString(p.Name); n < 2 || n > 64 {
		return nil, fmt.Errorf("%w: group name must be 2-64 characters", social.ErrInvalidArgument)
	}
	if p.Visibility == "" {
		p.Visibility = model.GroupPublic
	}
	if p.PostPermission == "" {
		p.PostPermission = model.PermAll
	}
	if p.RequestPermission == "" {
		p.RequestPermission = model.PermModerators
	}
	if !validVisibility(p.Visibility) || !validPostPolicy(p.PostPermission) || !validRequestPolicy(p.RequestPermission) {
		return nil, fmt.Errorf("%w: visibility or permission policy", social.ErrInvalidArgument)
	}

	g := &model.Group{
		Name:              p.Name,
		Description:       strings.TrimSpace(p.Description),
		Visibility:        p.Visibility,
		CreatorID:         creator,
		PostPermission:    p.PostPermission,
		RequestPermission: p.RequestPermission,
	}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := social.ActiveUser(tx, creator); err != nil {
			return err
		}
		if err := tx.Create(g).Error; err != nil {
			return err
		}
		return tx.Create(&model.GroupMember{GroupID: g.ID, UserID: creator, Role: model.GroupRoleAdmin}).Error
	})
	if err != nil {
		if social.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: group name %q", social.ErrAlreadyExists, p.Name)
		}
		return nil, err
	}
	svc.logger.Info("group created", zap.Int64("group_id", g.ID), zap.Int64("creator", creator))
	return g, nil
}

// Get loads a group. Group metadata is visible to everyone so private
// groups can be found and asked to join.
func (svc *Service) Get(ctx context.Context, groupID int64) (*model.Group, error) {
	var g model.Group
	if err := svc.db.WithContext(ctx).First(&g, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group %d", social.ErrNotFound, groupID)
		}
		return nil, err
	}
	return &g, nil
}

// List returns public groups plus the groups viewer belongs to.
func (svc *Service) List(ctx context.Context, viewer int64) ([]model.Group, error) {
	var groups []model.Group
	err := svc.db.WithContext(ctx).
		Where("visibility = ? OR id IN (?)", model.GroupPublic,
			svc.db.Model(&model.GroupMember{}).Select("group_id").Where("user_id = ?", viewer)).
		Order("name").
		Find(&groups).Error
	return groups, err
}

// RoleOf returns userID's role in the group, or "" for non-members.
func (svc *Service) RoleOf(ctx context.Context, groupID, userID int64) (string, error) {
	m, err := membership(svc.db.WithContext(ctx), groupID, userID)
	if err != nil || m == nil {
		return "", err
	}
	return m.Role, nil
}

// CanView reports whether viewer may see the group's members and posts.
func CanView(tx *gorm.DB, g *model.Group, viewer int64) (bool, error) {
	if g.Visibility == model.GroupPublic {
		return true, nil
	}
	m, err := membership(tx, g.ID, viewer)
	return m != nil, err
}

// Members lists the group's members. Private groups show them to members only.
func (svc *Service) Members(ctx context.Context, viewer, groupID int64) ([]model.GroupMember, error) {
	db := svc.db.WithContext(ctx)
	g, err := svc.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ok, err := CanView(db, g, viewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, social.ErrNotAuthorized
	}
	var members []model.GroupMember
	err = db.Where("group_id = ?", groupID).Order("joined_at, user_id").Find(&members).Error
	return members, err
}

// Join adds user to a public group or files a join request for a private one.
func (svc *Service) Join(ctx context.Context, groupID, user int64) (JoinOutcome, error) {
	var (
		outcome   JoinOutcome
		req       *model.GroupJoinRequest
		resolvers []int64
	)
	err := svc.locked(ctx, groupID, func(tx *gorm.DB) error {
		if _, err := social.ActiveUser(tx, user); err != nil {
			return err
		}
		g, err := loadGroup(tx, groupID)
		if err != nil {
			return err
		}
		m, err := membership(tx, groupID, user)
		if err != nil {
			return err
		}
		if m != nil {
			outcome = AlreadyMember
			return nil
		}
		if g.Visibility == model.GroupPublic {
			outcome = Joined
			return tx.Create(&model.GroupMember{GroupID: groupID, UserID: user, Role: model.GroupRoleMember}).Error
		}

		var pending int64
		if err := tx.Model(&model.GroupJoinRequest{}).
			Where("group_id = ? AND user_id = ? AND status = ?", groupID, user, model.JoinPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			outcome = AlreadyRequested
			return nil
		}
		req = &model.GroupJoinRequest{GroupID: groupID, UserID: user, Status: model.JoinPending}
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		outcome = Requested
		resolvers, err = resolverIDs(tx, g)
		return err
	})
	if err != nil {
		return "", err
	}
	switch outcome {
	case Joined:
		svc.logger.Info("group joined", zap.Int64("group_id", groupID), zap.Int64("user_id", user))
	case Requested:
		svc.logger.Info("group join requested", zap.Int64("group_id", groupID), zap.Int64("user_id", user))
		svc.events.Notify(ctx, event.Notification{Kind: event.JoinRequest, ActorID: user, GroupID: groupID, RefID: req.ID}, resolvers...)
	}
	return outcome, nil
}

// resolverIDs lists members allowed to resolve join requests of g.
func resolverIDs(tx *gorm.DB, g *model.Group) ([]int64, error) {
	roles := []string{model.GroupRoleAdmin}
	if g.RequestPermission == model.PermModerators {
		roles = append(roles, model.GroupRoleModerator)
	}
	var ids []int64
	err := tx.Model(&model.GroupMember{}).
		Where("group_id = ? AND role IN ?", g.ID, roles).
		Pluck("user_id", &ids).Error
	return ids, err
}

// PendingRequests lists the group's open join requests, oldest first.
// The actor must be allowed to resolve them.
func (svc *Service) PendingRequests(ctx context.Context, groupID, actor int64) ([]model.GroupJoinRequest, error) {
	db := svc.db.WithContext(ctx)
	g, m, err := actingMember(db, groupID, actor)
	if err != nil {
		return nil, err
	}
	if !CanResolveRequest(g.RequestPermission, m.Role) {
		return nil, social.ErrNotAuthorized
	}
	var reqs []model.GroupJoinRequest
	err = db.Where("group_id = ? AND status = ?", groupID, model.JoinPending).
		Order("created_at, id").
		Find(&reqs).Error
	return reqs, err
}

// Resolve approves or rejects a join request. Approval creates the
// membership and deletes the request in the same transaction; rejection only
// deletes it. The returned request carries the resolved status.
func (svc *Service) Resolve(ctx context.Context, groupID, requestID, actor int64, action Action) (*model.GroupJoinRequest, error) {
	if action != ActionApprove && action != ActionReject {
		return nil, fmt.Errorf("%w: action %q", social.ErrInvalidArgument, action)
	}
	var req model.GroupJoinRequest
	err := svc.locked(ctx, groupID, func(tx *gorm.DB) error {
		g, m, err := actingMember(tx, groupID, actor)
		if err != nil {
			return err
		}
		if !CanResolveRequest(g.RequestPermission, m.Role) {
			return social.ErrNotAuthorized
		}
		err = social.ForUpdate(tx).
			Where("id = ? AND group_id = ? AND status = ?", requestID, groupID, model.JoinPending).
			First(&req).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: join request %d", social.ErrNotFound, requestID)
		}
		if err != nil {
			return err
		}

		if action == ActionApprove {
			existing, err := membership(tx, groupID, req.UserID)
			if err != nil {
				return err
			}
			if existing == nil {
				if err := tx.Create(&model.GroupMember{GroupID: groupID, UserID: req.UserID, Role: model.GroupRoleMember}).Error; err != nil {
					return err
				}
			}
		}
		res := tx.Where("id = ? AND status = ?", req.ID, model.JoinPending).Delete(&model.GroupJoinRequest{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: join request %d already resolved", social.ErrConflict, req.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := event.JoinApproved
	req.Status = model.JoinApproved
	if action == ActionReject {
		kind = event.JoinRejected
		req.Status = model.JoinRejected
	}
	svc.logger.Info("join request resolved",
		zap.Int64("group_id", groupID),
		zap.Int64("request_id", req.ID),
		zap.Int64("actor", actor),
		zap.String("status", req.Status))
	svc.events.Notify(ctx, event.Notification{Kind: kind, ActorID: actor, GroupID: groupID, RefID: req.ID}, req.UserID)
	return &req, nil
}

// Leave removes user from the group. When user is the creator the whole
// group goes with it: posts, likes on those posts, requests and memberships.
// deleted reports whether the group was torn down.
func (svc *Service) Leave(ctx context.Context, groupID, user int64) (deleted bool, err error) {
	var notify []int64
	err = svc.locked(ctx, groupID, func(tx *gorm.DB) error {
		g, err := loadGroup(tx, groupID)
		if err != nil {
			return err
		}
		m, err := membership(tx, groupID, user)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%w: user %d is not a member of group %d", social.ErrNotFound, user, groupID)
		}

		if g.CreatorID == user {
			if err := tx.Model(&model.GroupMember{}).
				Where("group_id = ? AND user_id <> ?", groupID, user).
				Pluck("user_id", &notify).Error; err != nil {
				return err
			}
			deleted = true
			return deleteGroup(tx, groupID)
		}

		if m.Role == model.GroupRoleAdmin {
			n, err := adminCount(tx, groupID)
			if err != nil {
				return err
			}
			if n <= 1 {
				return fmt.Errorf("%w: last admin must transfer admin before leaving", social.ErrConflict)
			}
		}
		return tx.Delete(m).Error
	})
	if err != nil {
		return false, err
	}

	if deleted {
		svc.logger.Info("group deleted by creator", zap.Int64("group_id", groupID), zap.Int64("creator", user))
		svc.audit.Log(ctx, audit.Entry{
			ActorID: user,
			Action:  audit.ActionGroupDeleted,
			GroupID: int64Ptr(groupID),
			Detail:  map[string]int{"members_removed": len(notify) + 1},
		})
		svc.events.Notify(ctx, event.Notification{Kind: event.GroupDeleted, ActorID: user, GroupID: groupID}, notify...)
	} else {
		svc.logger.Info("group left", zap.Int64("group_id", groupID), zap.Int64("user_id", user))
	}
	return deleted, nil
}

func deleteGroup(tx *gorm.DB, groupID int64) error {
	posts := tx.Model(&model.GroupPost{}).Select("id").Where("group_id = ?", groupID)
	if err := tx.Where("post_kind = ? AND post_id IN (?)", model.KindGroupPost, posts).
		Delete(&model.PostLike{}).Error; err != nil {
		return err
	}
	if err := tx.Where("post_kind = ? AND post_id IN (?)", model.KindGroupPost, posts).
		Delete(&model.PostComment{}).Error; err != nil {
		return err
	}
	for _, m := range []interface{}{&model.GroupPost{}, &model.GroupJoinRequest{}, &model.GroupMember{}} {
		if err := tx.Where("group_id = ?", groupID).Delete(m).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&model.Group{}, groupID).Error
}

// AuthorizePost checks that user may post in the group: membership first,
// then the group's post policy.
func AuthorizePost(tx *gorm.DB, groupID, user int64) (*model.Group, error) {
	var g model.Group
	if err := tx.First(&g, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group %d", social.ErrNotFound, groupID)
		}
		return nil, err
	}
	m, err := membership(tx, groupID, user)
	if err != nil {
		return nil, err
	}
	if m == nil || !CanPost(g.PostPermission, m.Role) {
		return nil, fmt.Errorf("%w: user %d may not post in group %d", social.ErrNotAuthorized, user, groupID)
	}
	return &g, nil
}

// CanCreatePost reports whether user may post in the group.
func (svc *Service) CanCreatePost(ctx context.Context, groupID, user int64) (bool, error) {
	_, err := AuthorizePost(svc.db.WithContext(ctx), groupID, user)
	if errors.Is(err, social.ErrNotAuthorized) {
		return false, nil
	}
	return err == nil, err
}
