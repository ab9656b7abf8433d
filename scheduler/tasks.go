package scheduler

import (
	"context"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social/feed"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Task names.
const (
	TaskNewsPrune   = "news_prune"
	TaskStatsGauges = "stats_gauges"
)

// NewsPrune drops news items older than retention.
func NewsPrune(store *feed.NewsStore, retention time.Duration, logger *zap.Logger) TaskFn {
	return func(ctx context.Context) error {
		n, err := store.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("news pruned", zap.Int64("deleted", n))
		}
		return nil
	}
}

// Stats holds the gauges refreshed by the stats task.
type Stats struct {
	Users          prometheus.Gauge
	BannedUsers    prometheus.Gauge
	Groups         prometheus.Gauge
	PendingReports prometheus.Gauge
}

// NewStats creates the gauges and registers them with reg.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		Users: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "social_users", Help: "Registered users.",
		}),
		BannedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "social_banned_users", Help: "Banned users.",
		}),
		Groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "social_groups", Help: "Existing groups.",
		}),
		PendingReports: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "social_pending_reports", Help: "Reports awaiting a techadmin decision.",
		}),
	}
	reg.MustRegister(s.Users, s.BannedUsers, s.Groups, s.PendingReports)
	return s
}

// StatsGauges refreshes s from the database.
func StatsGauges(db *gorm.DB, s *Stats) TaskFn {
	return func(ctx context.Context) error {
		tx := db.WithContext(ctx)
		counts := []struct {
			gauge prometheus.Gauge
			query *gorm.DB
		}{
			{s.Users, tx.Model(&model.User{})},
			{s.BannedUsers, tx.Model(&model.User{}).Where("banned = ?", true)},
			{s.Groups, tx.Model(&model.Group{})},
			{s.PendingReports, tx.Model(&model.Report{}).Where("status = ?", model.ReportPending)},
		}
		for _, c := range counts {
			var n int64
			if err := c.query.Count(&n).Error; err != nil {
				return err
			}
			c.gauge.Set(float64(n))
		}
		return nil
	}
}
