package group

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/event"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Settings is a partial update of a group; nil fields are left unchanged.
type Settings struct {
	Description       *string
	Visibility        *string
	PostPermission    *string
	RequestPermission *string
}

func requireAdmin(m *model.GroupMember) error {
	if m.Role != model.GroupRoleAdmin {
		return fmt.Errorf("%w: admin role required", social.ErrNotAuthorized)
	}
	return nil
}

func setRole(tx *gorm.DB, groupID, userID int64, role string) error {
	return tx.Model(&model.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Update("role", role).Error
}

// ChangeRole sets target's role. Only admins may change roles, and the
// creator's role can only move through TransferAdmin.
func (svc *Service) ChangeRole(ctx context.Context, groupID, actor, target int64, role string) error {
	if !validRole(role) {
		return fmt.Errorf("%w: role %q", social.ErrInvalidArgument, role)
	}
	var previous string
	err := svc.locked(ctx, groupID, func(tx *gorm.DB) error {
		g, m, err := actingMember(tx, groupID, actor)
		if err != nil {
			return err
		}
		if err := requireAdmin(m); err != nil {
			return err
		}
		if target == g.CreatorID {
			return fmt.Errorf("%w: the creator's role is changed only by transfer", social.ErrNotAuthorized)
		}
		tm, err := membership(tx, groupID, target)
		if err != nil {
			return err
		}
		if tm == nil {
			return fmt.Errorf("%w: user %d is not a member of group %d", social.ErrNotFound, target, groupID)
		}
		if tm.Role == model.GroupRoleAdmin && role != model.GroupRoleAdmin {
			n, err := adminCount(tx, groupID)
			if err != nil {
				return err
			}
			if n <= 1 {
				return fmt.Errorf("%w: cannot demote the last admin", social.ErrConflict)
			}
		}
		previous = tm.Role
		return setRole(tx, groupID, target, role)
	})
	if err != nil {
		return err
	}

	svc.logger.Info("group role changed",
		zap.Int64("group_id", groupID),
		zap.Int64("actor", actor),
		zap.Int64("target", target),
		zap.String("role", role))
	svc.audit.Log(ctx, audit.Entry{
		ActorID:      actor,
		Action:       audit.ActionRoleChanged,
		TargetUserID: int64Ptr(target),
		GroupID:      int64Ptr(groupID),
		Detail:       map[string]string{"from": previous, "to": role},
	})
	svc.events.Notify(ctx, event.Notification{Kind: event.RoleChanged, ActorID: actor, GroupID: groupID, Detail: role}, target)
	return nil
}

// TransferAdmin demotes actor to member and promotes target to admin in one
// transaction. With TransferMovesCreator set and actor being the creator,
// creator attribution moves to target as well, so the creator is always an
// admin.
func (svc *Service) TransferAdmin(ctx context.Context, groupID, actor, target int64) error {
	if actor == target {
		return social.ErrSelfReference
	}
	var movedCreator bool
	err := svc.locked(ctx, groupID, func(tx *gorm.DB) error {
		g, m, err := actingMember(tx, groupID, actor)
		if err != nil {
			return err
		}
		if err := requireAdmin(m); err != nil {
			return err
		}
		if target == g.CreatorID {
			return fmt.Errorf("%w: user %d is already the creator", social.ErrConflict, target)
		}
		if _, err := social.ActiveUser(tx, target); err != nil {
			return err
		}
		tm, err := membership(tx, groupID, target)
		if err != nil {
			return err
		}
		if tm == nil {
			return fmt.Errorf("%w: user %d is not a member of group %d", social.ErrNotFound, target, groupID)
		}

		if err := setRole(tx, groupID, actor, model.GroupRoleMember); err != nil {
			return err
		}
		if err := setRole(tx, groupID, target, model.GroupRoleAdmin); err != nil {
			return err
		}
		if svc.opts.TransferMovesCreator && g.CreatorID == actor {
			movedCreator = true
			return tx.Model(&model.Group{}).Where("id = ?", groupID).Update("creator_id", target).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	svc.logger.Info("group admin transferred",
		zap.Int64("group_id", groupID),
		zap.Int64("from", actor),
		zap.Int64("to", target),
		zap.Bool("creator_moved", movedCreator))
	svc.audit.Log(ctx, audit.Entry{
		ActorID:      actor,
		Action:       audit.ActionAdminTransfer,
		TargetUserID: int64Ptr(target),
		GroupID:      int64Ptr(groupID),
		Detail:       map[string]bool{"creator_moved": movedCreator},
	})
	svc.events.Notify(ctx, event.Notification{Kind: event.RoleChanged, ActorID: actor, GroupID: groupID, Detail: model.GroupRoleAdmin}, target)
	return nil
}

// RemoveMember expels target. Admins may remove anyone but the creator;
// moderators may remove plain members only.
func (svc *Service) RemoveMember(ctx context.Context, groupID, actor, target int64) error {
	if actor == target {
		return social.ErrSelfReference
	}
	var removedRole string
	err := svc.locked(ctx, groupID, func(tx *gorm.DB) error {
		g, m, err := actingMember(tx, groupID, actor)
		if err != nil {
			return err
		}
		if model.RoleRank(m.Role) < model.RoleRank(model.GroupRoleModerator) {
			return fmt.Errorf("%w: moderator role required", social.ErrNotAuthorized)
		}
		if target == g.CreatorID {
			return fmt.Errorf("%w: the creator cannot be removed", social.ErrNotAuthorized)
		}
		tm, err := membership(tx, groupID, target)
		if err != nil {
			return err
		}
		if tm == nil {
			return fmt.Errorf("%w: user %d is not a member of group %d", social.ErrNotFound, target, groupID)
		}
		if m.Role == model.GroupRoleModerator && tm.Role != model.GroupRoleMember {
			return fmt.Errorf("%w: moderators may remove members only", social.ErrNotAuthorized)
		}
		removedRole = tm.Role
		return tx.Delete(tm).Error
	})
	if err != nil {
		return err
	}

	svc.logger.Info("group member removed",
		zap.Int64("group_id", groupID),
		zap.Int64("actor", actor),
		zap.Int64("target", target))
	svc.audit.Log(ctx, audit.Entry{
		ActorID:      actor,
		Action:       audit.ActionMemberRemoved,
		TargetUserID: int64Ptr(target),
		GroupID:      int64Ptr(groupID),
		Detail:       map[string]string{"role": removedRole},
	})
	svc.events.Notify(ctx, event.Notification{Kind: event.RemovedFromGroup, ActorID: actor, GroupID: groupID}, target)
	return nil
}

// UpdateSettings changes the description, visibility or policies. Admin only.
func (svc *Service) UpdateSettings(ctx context.Context, groupID, actor int64, s Settings) (*model.Group, error) {
	updates := map[string]interface{}{}
	if s.Description != nil {
		updates["description"] = strings.TrimSpace(*s.Description)
	}
	if s.Visibility != nil {
		if !validVisibility(*s.Visibility) {
			return nil, fmt.Errorf("%w: visibility %q", social.ErrInvalidArgument, *s.Visibility)
		}
		updates["visibility"] = *s.Visibility
	}
	if s.PostPermission != nil {
		if !validPostPolicy(*s.PostPermission) {
			return nil, fmt.Errorf("%w: post permission %q", social.ErrInvalidArgument, *s.PostPermission)
		}
		updates["post_permission"] = *s.PostPermission
	}
	if s.RequestPermission != nil {
		if !validRequestPolicy(*s.RequestPermission) {
			return nil, fmt.Errorf("%w: request permission %q", social.ErrInvalidArgument, *s.RequestPermission)
		}
		updates["request_permission"] = *s.RequestPermission
	}

	var g *model.Group
	err := svc.locked(ctx, groupID, func(tx *gorm.DB) error {
		var m *model.GroupMember
		var err error
		g, m, err = actingMember(tx, groupID, actor)
		if err != nil {
			return err
		}
		if err := requireAdmin(m); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(g).Updates(updates).Error; err != nil {
			return err
		}
		g, err = loadGroup(tx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}
