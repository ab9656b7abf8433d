package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"github.com/kasuganosora/socialgraph/social/identity"
	"go.uber.org/zap"
)

// AuthHandler handles authentication REST endpoints.
type AuthHandler struct {
	users  *identity.Service
	cache  cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users *identity.Service, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, cache: c, sec: sec, logger: logger}
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.issue(c, http.StatusCreated, u)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, social.ErrNotAuthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.issue(c, http.StatusOK, u)
}

// issue signs a token for u and stores its session.
func (h *AuthHandler) issue(c *gin.Context, status int, u *model.User) {
	token, err := mw.GenerateToken(u.ID, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, mw.SessionKey(token), strconv.FormatInt(u.ID, 10), h.sec.JWTTTLH); err != nil {
		h.logger.Error("session store failed", zap.Int64("user_id", u.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}
	c.JSON(status, gin.H{"token": token, "user": u})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	tokenStr := mw.BearerToken(c)
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(tokenStr))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	userID := mw.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(mw.BearerToken(c)))

	newToken, err := mw.GenerateToken(userID, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	_ = h.cache.Set(ctx, mw.SessionKey(newToken), strconv.FormatInt(userID, 10), h.sec.JWTTTLH)

	c.JSON(http.StatusOK, gin.H{"token": newToken})
}
