package sse

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/event"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"go.uber.org/zap"
)

const (
	announceChannel = "announce"

	// EventConnected opens every stream; EventAnnounce carries operator
	// broadcasts. Notifications use their event.Kind as the event name.
	EventConnected = "connected"
	EventAnnounce  = "announce"

	reconnectHint = 3 * time.Second
)

// Handler streams notifications to browsers over server-sent events.
type Handler struct {
	pubsub    cache.PubSub
	events    *event.Publisher
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, events *event.Publisher, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, events: events, keepalive: 30 * time.Second, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt> behind middleware.Auth. The stream
// carries the caller's notifications plus announcements, and ends when the
// client goes away.
func (h *Handler) ServeSSE(c *gin.Context) {
	userID := mw.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	notes, stopNotes, err := h.events.Subscribe(ctx, userID)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Int64("user_id", userID), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer stopNotes()

	announcements, stopAnnounce, err := h.pubsub.Subscribe(ctx, announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Int64("user_id", userID), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer stopAnnounce()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Render(-1, sse.Event{
		Event: EventConnected,
		Retry: uint(reconnectHint / time.Millisecond),
		Data:  gin.H{"user_id": userID},
	})
	c.Writer.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	h.logger.Debug("sse stream opened", zap.Int64("user_id", userID))
	c.Stream(func(w io.Writer) bool {
		select {
		case n, ok := <-notes:
			if !ok {
				return false
			}
			c.SSEvent(string(n.Kind), n)
		case msg, ok := <-announcements:
			if !ok {
				return false
			}
			c.SSEvent(EventAnnounce, msg.Payload)
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return false
			}
		case <-ctx.Done():
			return false
		}
		return true
	})
	h.logger.Debug("sse stream closed", zap.Int64("user_id", userID))
}

// Announce publishes message to every open stream.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, announceChannel, message)
}
