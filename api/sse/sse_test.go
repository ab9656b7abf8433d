package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/event"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct{ name, data string }

// readFrames parses the stream into frames until it ends.
func readFrames(t *testing.T, resp *http.Response) <-chan frame {
	t.Helper()
	out := make(chan frame, 16)
	go func() {
		defer close(out)
		var cur frame
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if cur.name != "" {
					out <- cur
				}
				cur = frame{}
			case strings.HasPrefix(line, "event:"):
				cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				cur.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}()
	return out
}

func next(t *testing.T, frames <-chan frame) frame {
	t.Helper()
	select {
	case f, ok := <-frames:
		require.True(t, ok, "stream ended")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame within 2s")
		return frame{}
	}
}

func TestServeSSE_StreamsNotificationsAndAnnouncements(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, ps := testutil.SetupTestCache(t)
	events := event.NewPublisher(ps, testutil.Logger(t))
	h := NewHandler(ps, events, testutil.Logger(t))

	r := gin.New()
	r.GET("/sse", func(c *gin.Context) { c.Set(mw.UserIDKey, int64(7)) }, h.ServeSSE)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	frames := readFrames(t, resp)
	hello := next(t, frames)
	assert.Equal(t, EventConnected, hello.name)
	assert.JSONEq(t, `{"user_id":7}`, hello.data)

	events.Notify(context.Background(), event.Notification{Kind: event.FriendRequest, ActorID: 4}, 8)
	events.Notify(context.Background(), event.Notification{Kind: event.FriendRequest, ActorID: 3}, 7)
	f := next(t, frames)
	assert.Equal(t, string(event.FriendRequest), f.name)
	assert.Contains(t, f.data, `"actor_id":3`, "only the subscriber's own notifications arrive")

	require.NoError(t, h.Announce(context.Background(), "maintenance at noon"))
	f = next(t, frames)
	assert.Equal(t, EventAnnounce, f.name)
	assert.Equal(t, "maintenance at noon", f.data)
}

func TestServeSSE_Keepalive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, ps := testutil.SetupTestCache(t)
	h := NewHandler(ps, event.NewPublisher(ps, testutil.Logger(t)), testutil.Logger(t))
	h.keepalive = 20 * time.Millisecond

	r := gin.New()
	r.GET("/sse", func(c *gin.Context) { c.Set(mw.UserIDKey, int64(1)) }, h.ServeSSE)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	deadline := time.After(2 * time.Second)
	found := make(chan struct{})
	go func() {
		for sc.Scan() {
			if sc.Text() == ": keepalive" {
				close(found)
				return
			}
		}
	}()
	select {
	case <-found:
	case <-deadline:
		t.Fatal("no keepalive comment")
	}
}

func TestServeSSE_RequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, ps := testutil.SetupTestCache(t)
	h := NewHandler(ps, event.NewPublisher(ps, testutil.Logger(t)), testutil.Logger(t))

	r := gin.New()
	r.GET("/sse", h.ServeSSE)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sse", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
