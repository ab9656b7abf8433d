package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
)

// statusOf maps core errors onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, social.ErrSelfReference), errors.Is(err, social.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, social.ErrNotAuthorized), errors.Is(err, social.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, social.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, social.ErrAlreadyExists), errors.Is(err, social.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, cache.ErrLockTimeout):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Internal errors are logged and hidden.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	status := statusOf(err)
	switch {
	case errors.Is(err, social.ErrBlocked):
		c.JSON(status, gin.H{"error": "blocked"})
	case status == http.StatusInternalServerError:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("trace_id", c.GetString("trace_id")),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

// paramID parses a positive integer path parameter, writing 400 on failure.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
