package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/social/moderation"
	"go.uber.org/zap"
)

// ReportHandler handles user reports and techadmin adjudication.
type ReportHandler struct {
	moderation *moderation.Service
	logger     *zap.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(m *moderation.Service, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{moderation: m, logger: logger}
}

// File handles POST /api/reports/:id where :id is the reported user.
func (h *ReportHandler) File(c *gin.Context) {
	target, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.moderation.File(c.Request.Context(), mw.GetUserID(c), target, req.Reason)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": r})
}

// List handles GET /api/techadmin/reports?status=.
func (h *ReportHandler) List(c *gin.Context) {
	reports, err := h.moderation.List(c.Request.Context(), mw.GetUserID(c), moderation.ReportFilter{Status: c.Query("status")})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// Adjudicate handles POST /api/techadmin/reports/:id/:action with optional
// notes.
func (h *ReportHandler) Adjudicate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	_ = c.ShouldBindJSON(&req)
	r, err := h.moderation.Adjudicate(c.Request.Context(), id, mw.GetUserID(c), moderation.Action(c.Param("action")), req.Notes)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": r})
}
