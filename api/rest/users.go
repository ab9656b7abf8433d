package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/social/feed"
	"github.com/kasuganosora/socialgraph/social/identity"
	"github.com/kasuganosora/socialgraph/social/post"
	"go.uber.org/zap"
)

// UserHandler serves profiles, search and per-user post listings.
type UserHandler struct {
	users    *identity.Service
	composer *feed.Composer
	posts    *post.Service
	logger   *zap.Logger
}

func NewUserHandler(users *identity.Service, composer *feed.Composer, posts *post.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, composer: composer, posts: posts, logger: logger}
}

// Search handles GET /api/users/search?q=&limit=.
func (h *UserHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	users, err := h.users.Search(c.Request.Context(), mw.GetUserID(c), c.Query("q"), limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Get handles GET /api/users/:id, including the caller's relation to the
// user.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	viewer := mw.GetUserID(c)
	visible, err := h.composer.CanViewProfile(ctx, viewer, id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if !visible {
		c.JSON(http.StatusForbidden, gin.H{"error": "profile not visible"})
		return
	}
	u, err := h.users.Get(ctx, id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	rel, err := h.composer.FriendStatusBetween(ctx, viewer, id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "relation": rel})
}

// UpdateMe handles PUT /api/users/me.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req struct {
		FullName string `json:"full_name"`
		Bio      string `json:"bio"`
		Location string `json:"location"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), mw.GetUserID(c), identity.Profile{
		FullName: req.FullName,
		Bio:      req.Bio,
		Location: req.Location,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// Summary handles GET /api/users/:id/summary.
func (h *UserHandler) Summary(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	visible, err := h.composer.CanViewProfile(ctx, mw.GetUserID(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if !visible {
		c.JSON(http.StatusForbidden, gin.H{"error": "profile not visible"})
		return
	}
	s, err := h.composer.Summary(ctx, id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Posts handles GET /api/users/:id/posts.
func (h *UserHandler) Posts(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	posts, err := h.posts.ListByAuthor(c.Request.Context(), mw.GetUserID(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}
