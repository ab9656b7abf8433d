package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/api/sse"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/scheduler"
	"github.com/kasuganosora/socialgraph/social/feed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AdminHandler handles operator endpoints. Routes should be protected by
// AdminAuth.
type AdminHandler struct {
	news     *feed.NewsStore
	audit    *audit.Service
	sched    *scheduler.Scheduler
	sse      *sse.Handler
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	news *feed.NewsStore,
	auditSvc *audit.Service,
	sched *scheduler.Scheduler,
	sseH *sse.Handler,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{news: news, audit: auditSvc, sched: sched, sse: sseH, gatherer: gatherer, logger: logger}
}

// Metrics serves the prometheus registry.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

// AddNews imports news items for the feed. Links already known are skipped.
// POST /api/admin/news
func (h *AdminHandler) AddNews(c *gin.Context) {
	var req struct {
		Items []struct {
			Title       string    `json:"title"`
			Description string    `json:"description"`
			Link        string    `json:"link"`
			Source      string    `json:"source"`
			PublishedAt time.Time `json:"published_at"`
		} `json:"items" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items := make([]model.NewsItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, model.NewsItem{
			Title:       it.Title,
			Description: it.Description,
			Link:        it.Link,
			Source:      it.Source,
			PublishedAt: it.PublishedAt,
		})
	}
	added, err := h.news.Add(c.Request.Context(), items)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.logger.Info("news imported", zap.Int64("added", added), zap.Int("received", len(items)))
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// Announce broadcasts a message to every connected SSE client.
// POST /api/admin/announce
func (h *AdminHandler) Announce(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.sse.Announce(c.Request.Context(), req.Message); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Audit lists recorded moderation and group-administration actions, newest
// first.
// GET /api/admin/audit?actor_id=&target_user_id=&group_id=&action=&trace_id=&limit=
func (h *AdminHandler) Audit(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log not configured"})
		return
	}
	var q struct {
		ActorID      int64  `form:"actor_id" binding:"gte=0"`
		TargetUserID int64  `form:"target_user_id" binding:"gte=0"`
		GroupID      int64  `form:"group_id" binding:"gte=0"`
		Action       string `form:"action"`
		TraceID      string `form:"trace_id"`
		Limit        int    `form:"limit" binding:"gte=0,lte=500"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, err := h.audit.Recent(c.Request.Context(), audit.Filter{
		ActorID:      q.ActorID,
		TargetUserID: q.TargetUserID,
		GroupID:      q.GroupID,
		Action:       q.Action,
		TraceID:      q.TraceID,
		Limit:        q.Limit,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ListSchedulerTasks reports every maintenance task with its run history.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be deployed without protection.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
