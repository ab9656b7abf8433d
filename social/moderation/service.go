// Package moderation handles user reports and their adjudication by
// techadmins. Approving a report bans the reported user.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/event"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Action is a techadmin decision on a report.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionDelete  Action = "delete"
)

const maxReason = 2000

// ReportFilter narrows List. An empty Status lists every report.
type ReportFilter struct {
	Status string
}

// Service is the moderation engine.
type Service struct {
	db        *gorm.DB
	cache     cache.Cache
	events    *event.Publisher
	audit     *audit.Service
	minReason int
	logger    *zap.Logger
}

// NewService creates a moderation Service. minReason is the shortest
// accepted report reason in characters.
func NewService(db *gorm.DB, c cache.Cache, events *event.Publisher, auditSvc *audit.Service, minReason int, logger *zap.Logger) *Service {
	if minReason <= 0 {
		minReason = 10
	}
	return &Service{db: db, cache: c, events: events, audit: auditSvc, minReason: minReason, logger: logger}
}

// File records a pending report. Repeated reports against the same user
// accumulate.
func (svc *Service) File(ctx context.Context, reporter, reported int64, reason string) (*model.Report, error) {
	if reporter == reported {
		return nil, fmt.Errorf("%w: cannot report yourself", social.ErrInvalidArgument)
	}
	reason = strings.TrimSpace(reason)
	if n := utf8.RuneCountInString(reason); n < svc.minReason || n > maxReason {
		return nil, fmt.Errorf("%w: reason must be %d to %d characters", social.ErrInvalidArgument, svc.minReason, maxReason)
	}
	r := &model.Report{ReporterID: reporter, ReportedID: reported, Reason: reason, Status: model.ReportPending}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := social.ActiveUser(tx, reporter); err != nil {
			return err
		}
		if _, err := social.FindUser(tx, reported); err != nil {
			return err
		}
		return tx.Create(r).Error
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("report filed",
		zap.Int64("report_id", r.ID),
		zap.Int64("reporter", reporter),
		zap.Int64("reported", reported))
	return r, nil
}

func requireTechAdmin(tx *gorm.DB, actor int64) error {
	u, err := social.ActiveUser(tx, actor)
	if err != nil {
		return err
	}
	if u.Role != model.RoleTechAdmin {
		return fmt.Errorf("%w: techadmin role required", social.ErrNotAuthorized)
	}
	return nil
}

// Adjudicate applies a techadmin decision. Approve bans the reported user
// once; re-approving does not ban again. Delete removes the report and
// returns the removed row.
func (svc *Service) Adjudicate(ctx context.Context, reportID, actor int64, action Action, notes string) (*model.Report, error) {
	if action != ActionApprove && action != ActionReject && action != ActionDelete {
		return nil, fmt.Errorf("%w: action %q", social.ErrInvalidArgument, action)
	}
	var (
		r      model.Report
		banned bool
	)
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireTechAdmin(tx, actor); err != nil {
			return err
		}
		if err := social.ForUpdate(tx).First(&r, reportID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: report %d", social.ErrNotFound, reportID)
			}
			return err
		}
		if action == ActionDelete {
			return tx.Delete(&r).Error
		}

		status := model.ReportRejected
		if action == ActionApprove {
			status = model.ReportApproved
		}
		updates := map[string]interface{}{"status": status}
		if notes = strings.TrimSpace(notes); notes != "" {
			updates["admin_notes"] = notes
		}
		if err := tx.Model(&r).Updates(updates).Error; err != nil {
			return err
		}
		r.Status = status
		if notes != "" {
			r.AdminNotes = notes
		}
		if action != ActionApprove {
			return nil
		}
		res := tx.Model(&model.User{}).
			Where("id = ? AND banned = ?", r.ReportedID, false).
			Update("banned", true)
		if res.Error != nil {
			return res.Error
		}
		banned = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.audit.Log(ctx, audit.Entry{
		ActorID:      actor,
		Action:       audit.ActionReportResolved,
		TargetUserID: &r.ReportedID,
		Detail:       map[string]interface{}{"report_id": r.ID, "action": string(action)},
	})
	if banned {
		svc.markBanned(ctx, r.ReportedID)
		svc.audit.Log(ctx, audit.Entry{
			ActorID:      actor,
			Action:       audit.ActionUserBanned,
			TargetUserID: &r.ReportedID,
			Detail:       map[string]int64{"report_id": r.ID},
		})
		svc.events.Notify(ctx, event.Notification{Kind: event.UserBanned, ActorID: actor, RefID: r.ID}, r.ReportedID)
	}
	svc.logger.Info("report adjudicated",
		zap.Int64("report_id", r.ID),
		zap.Int64("actor", actor),
		zap.String("action", string(action)),
		zap.Bool("banned", banned))
	return &r, nil
}

// markBanned publishes the ban to the cache so live sessions are refused.
func (svc *Service) markBanned(ctx context.Context, userID int64) {
	if svc.cache == nil {
		return
	}
	if err := svc.cache.Set(ctx, social.BannedKey(userID), "1", 0); err != nil {
		svc.logger.Warn("failed to cache ban marker", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// List returns reports matching f, newest first. techadmin only.
func (svc *Service) List(ctx context.Context, actor int64, f ReportFilter) ([]model.Report, error) {
	switch f.Status {
	case "", model.ReportPending, model.ReportApproved, model.ReportRejected:
	default:
		return nil, fmt.Errorf("%w: status %q", social.ErrInvalidArgument, f.Status)
	}
	db := svc.db.WithContext(ctx)
	if err := requireTechAdmin(db, actor); err != nil {
		return nil, err
	}
	q := db.Order("created_at DESC, id DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var reports []model.Report
	err := q.Find(&reports).Error
	return reports, err
}

// PendingCount returns the number of reports awaiting a decision.
func (svc *Service) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := svc.db.WithContext(ctx).Model(&model.Report{}).Where("status = ?", model.ReportPending).Count(&n).Error
	return n, err
}
