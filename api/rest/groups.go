package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/social"
	"github.com/kasuganosora/socialgraph/social/group"
	"github.com/kasuganosora/socialgraph/social/post"
	"go.uber.org/zap"
)

// GroupHandler handles group membership, moderation and group posts.
type GroupHandler struct {
	groups *group.Service
	posts  *post.Service
	logger *zap.Logger
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groups *group.Service, posts *post.Service, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, posts: posts, logger: logger}
}

// Create handles POST /api/groups.
func (h *GroupHandler) Create(c *gin.Context) {
	var req struct {
		Name              string `json:"name" binding:"required"`
		Description       string `json:"description"`
		Visibility        string `json:"visibility"`
		PostPermission    string `json:"post_permission"`
		RequestPermission string `json:"request_permission"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := h.groups.Create(c.Request.Context(), mw.GetUserID(c), group.CreateParams{
		Name:              req.Name,
		Description:       req.Description,
		Visibility:        req.Visibility,
		PostPermission:    req.PostPermission,
		RequestPermission: req.RequestPermission,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group": g})
}

// List handles GET /api/groups.
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.groups.List(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// Detail handles GET /api/groups/:id. Members are omitted when the caller
// may not view the group.
func (h *GroupHandler) Detail(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	me := mw.GetUserID(c)
	g, err := h.groups.Get(ctx, id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	role, err := h.groups.RoleOf(ctx, id, me)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	resp := gin.H{"group": g, "role": role}
	members, err := h.groups.Members(ctx, me, id)
	switch {
	case err == nil:
		resp["members"] = members
	case !errors.Is(err, social.ErrNotAuthorized):
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Update handles PUT /api/groups/:id. Absent fields are left unchanged.
func (h *GroupHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Description       *string `json:"description"`
		Visibility        *string `json:"visibility"`
		PostPermission    *string `json:"post_permission"`
		RequestPermission *string `json:"request_permission"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := h.groups.UpdateSettings(c.Request.Context(), id, mw.GetUserID(c), group.Settings{
		Description:       req.Description,
		Visibility:        req.Visibility,
		PostPermission:    req.PostPermission,
		RequestPermission: req.RequestPermission,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": g})
}

// Join handles POST /api/groups/:id/join.
func (h *GroupHandler) Join(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	outcome, err := h.groups.Join(c.Request.Context(), id, mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

// Leave handles POST /api/groups/:id/leave. When the creator leaves the
// group is deleted and deleted is true.
func (h *GroupHandler) Leave(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	deleted, err := h.groups.Leave(c.Request.Context(), id, mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true, "group_deleted": deleted})
}

// Requests handles GET /api/groups/:id/requests.
func (h *GroupHandler) Requests(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	reqs, err := h.groups.PendingRequests(c.Request.Context(), id, mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// Resolve handles POST /api/groups/:id/requests/:rid/:action.
func (h *GroupHandler) Resolve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rid, ok := paramID(c, "rid")
	if !ok {
		return
	}
	r, err := h.groups.Resolve(c.Request.Context(), id, rid, mw.GetUserID(c), group.Action(c.Param("action")))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": r})
}

// ChangeRole handles PUT /api/groups/:id/members/:uid/role.
func (h *GroupHandler) ChangeRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	uid, ok := paramID(c, "uid")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.groups.ChangeRole(c.Request.Context(), id, mw.GetUserID(c), uid, req.Role); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": req.Role})
}

// Transfer handles POST /api/groups/:id/transfer/:uid.
func (h *GroupHandler) Transfer(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	uid, ok := paramID(c, "uid")
	if !ok {
		return
	}
	if err := h.groups.TransferAdmin(c.Request.Context(), id, mw.GetUserID(c), uid); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": uid})
}

// RemoveMember handles DELETE /api/groups/:id/members/:uid.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	uid, ok := paramID(c, "uid")
	if !ok {
		return
	}
	if err := h.groups.RemoveMember(c.Request.Context(), id, mw.GetUserID(c), uid); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": uid})
}

// Posts handles GET /api/groups/:id/posts.
func (h *GroupHandler) Posts(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	posts, err := h.posts.ListByGroup(c.Request.Context(), mw.GetUserID(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// CreatePost handles POST /api/groups/:id/posts.
func (h *GroupHandler) CreatePost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.posts.CreateGroupPost(c.Request.Context(), id, mw.GetUserID(c), req.Content)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": p})
}
