package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/social/blacklist"
	"github.com/kasuganosora/socialgraph/social/identity"
	"github.com/kasuganosora/socialgraph/social/relationship"
	"go.uber.org/zap"
)

// SocialHandler handles friends and blacklist REST endpoints.
type SocialHandler struct {
	rel       *relationship.Service
	blacklist *blacklist.Service
	users     *identity.Service
	logger    *zap.Logger
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(rel *relationship.Service, bl *blacklist.Service, users *identity.Service, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{rel: rel, blacklist: bl, users: users, logger: logger}
}

// ListFriends handles GET /api/social/friends.
func (h *SocialHandler) ListFriends(c *gin.Context) {
	ctx := c.Request.Context()
	ids, err := h.rel.FriendIDs(ctx, mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	friends, err := h.users.GetMany(ctx, ids.Slice())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// ListRequests handles GET /api/social/requests.
func (h *SocialHandler) ListRequests(c *gin.Context) {
	ctx := c.Request.Context()
	me := mw.GetUserID(c)
	incoming, err := h.rel.Incoming(ctx, me)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	outgoing, err := h.rel.Outgoing(ctx, me)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incoming": incoming, "outgoing": outgoing})
}

// RequestFriend handles POST /api/social/friends/:id. A pending request
// from the other side is accepted instead.
func (h *SocialHandler) RequestFriend(c *gin.Context) {
	target, ok := paramID(c, "id")
	if !ok {
		return
	}
	f, outcome, err := h.rel.Request(c.Request.Context(), mw.GetUserID(c), target)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if outcome == relationship.OutcomeRequested {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"outcome": outcome, "friendship": f})
}

// RespondRequest handles POST /api/social/requests/:id/:action.
func (h *SocialHandler) RespondRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	f, err := h.rel.Respond(c.Request.Context(), id, mw.GetUserID(c), relationship.Action(c.Param("action")))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friendship": f})
}

// Unfriend handles DELETE /api/social/friends/:id.
func (h *SocialHandler) Unfriend(c *gin.Context) {
	target, ok := paramID(c, "id")
	if !ok {
		return
	}
	removed, err := h.rel.Unfriend(c.Request.Context(), mw.GetUserID(c), target)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ListBlacklist handles GET /api/social/blacklist.
func (h *SocialHandler) ListBlacklist(c *gin.Context) {
	entries, err := h.blacklist.List(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blacklist": entries})
}

// Block handles POST /api/social/blacklist/:id with an optional reason.
func (h *SocialHandler) Block(c *gin.Context) {
	target, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	entry, created, err := h.blacklist.Block(c.Request.Context(), mw.GetUserID(c), target, req.Reason)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"entry": entry})
}

// Unblock handles DELETE /api/social/blacklist/:id.
func (h *SocialHandler) Unblock(c *gin.Context) {
	target, ok := paramID(c, "id")
	if !ok {
		return
	}
	removed, err := h.blacklist.Unblock(c.Request.Context(), mw.GetUserID(c), target)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
