package rest

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social/feed"
	"github.com/kasuganosora/socialgraph/social/post"
	"go.uber.org/zap"
)

// PostHandler handles personal posts, likes, comments and the feed.
type PostHandler struct {
	posts    *post.Service
	composer *feed.Composer
	logger   *zap.Logger
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(posts *post.Service, composer *feed.Composer, logger *zap.Logger) *PostHandler {
	return &PostHandler{posts: posts, composer: composer, logger: logger}
}

// Create handles POST /api/posts.
func (h *PostHandler) Create(c *gin.Context) {
	var req struct {
		Content    string `json:"content" binding:"required"`
		Visibility string `json:"visibility"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.posts.Create(c.Request.Context(), mw.GetUserID(c), req.Content, req.Visibility)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": p})
}

// Delete handles DELETE /api/posts/:id.
func (h *PostHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.posts.Delete(c.Request.Context(), id, mw.GetUserID(c)); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// Like handles POST /api/likes/:kind/:id, toggling the caller's like.
func (h *PostHandler) Like(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	liked, count, err := h.posts.ToggleLike(c.Request.Context(), c.Param("kind"), id, mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked, "likes": count})
}

// Comment handles POST /api/comments/:kind/:id.
func (h *PostHandler) Comment(c *gin.Context) {
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
	cm, err := h.posts.Comment(c.Request.Context(), c.Param("kind"), id, mw.GetUserID(c), req.Content)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": cm})
}

// Comments handles GET /api/comments/:kind/:id.
func (h *PostHandler) Comments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	list, err := h.posts.Comments(c.Request.Context(), mw.GetUserID(c), c.Param("kind"), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if list == nil {
		list = []model.PostComment{}
	}
	c.JSON(http.StatusOK, gin.H{"comments": list})
}

// Feed handles GET /api/feed?limit=.
func (h *PostHandler) Feed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.composer.Feed(c.Request.Context(), mw.GetUserID(c), limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	items := slices.Collect(res.All())
	if items == nil {
		items = []feed.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
