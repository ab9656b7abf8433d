// Package integration runs the social server end to end over real HTTP.
package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/socialgraph/api/rest"
	"github.com/kasuganosora/socialgraph/api/sse"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/event"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/plugin/hook"
	"github.com/kasuganosora/socialgraph/scheduler"
	"github.com/kasuganosora/socialgraph/social/blacklist"
	"github.com/kasuganosora/socialgraph/social/feed"
	"github.com/kasuganosora/socialgraph/social/group"
	"github.com/kasuganosora/socialgraph/social/identity"
	"github.com/kasuganosora/socialgraph/social/moderation"
	"github.com/kasuganosora/socialgraph/social/post"
	"github.com/kasuganosora/socialgraph/social/relationship"
	"github.com/kasuganosora/socialgraph/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey guards /api/admin on the test server.
const AdminKey = "integration-admin-key"

// MaskedWord is starred out of every post created on the test server.
const MaskedWord = "darn"

// TestServer wraps a real HTTP server with every social subsystem wired
// together the way main.go does it.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Sched  *scheduler.Scheduler
	Audit  *audit.Service
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		BcryptCost:     bcrypt.MinCost,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
	social := config.SocialConfig{
		AllowReRequestAfterReject: true,
		TransferMovesCreator:      true,
		MinReportReason:           10,
		FeedLimit:                 30,
		LockWait:                  2 * time.Second,
		MaskedWords:               []string{MaskedWord},
	}

	auditSvc := audit.New(db, logger, audit.WithBatch(10, 50*time.Millisecond))
	events := event.NewPublisher(pubsub, logger)

	hooks := hook.New(logger)
	hooks.Register(hook.BeforePostCreate, 0, "max_length", hook.MaxLength(5000))
	hooks.Register(hook.BeforePostCreate, 10, "mask_words", hook.MaskWords(social.MaskedWords))

	// ---- Services ----
	users := identity.NewService(db, sec.BcryptCost, logger)
	news := feed.NewNewsStore(db)

	reg := prometheus.NewRegistry()
	stats := scheduler.NewStats(reg)
	sched := scheduler.New(logger)
	sched.AddTicker(scheduler.TaskStatsGauges, time.Hour, scheduler.StatsGauges(db, stats))

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger), mw.Metrics(reg))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst, mw.ByIP))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	apirest.Mount(r, apirest.Deps{
		Users: users,
		Relationships: relationship.NewService(db, c, events, relationship.Options{
			AllowReRequestAfterReject: social.AllowReRequestAfterReject,
			LockWait:                  social.LockWait,
		}, logger),
		Blacklist: blacklist.NewService(db, c, social.LockWait, logger),
		Groups: group.NewService(db, c, events, auditSvc, group.Options{
			TransferMovesCreator: social.TransferMovesCreator,
			LockWait:             social.LockWait,
		}, logger),
		Posts:      post.NewService(db, hooks, logger),
		Composer:   feed.NewComposer(db, news, social.FeedLimit, logger),
		Moderation: moderation.NewService(db, c, events, auditSvc, social.MinReportReason, logger),
		News:       news,
		Audit:      auditSvc,
		Scheduler:  sched,
		SSE:        sse.NewHandler(pubsub, events, logger),
		Gatherer:   reg,
		Cache:      c,
		Server:     config.ServerConfig{AdminKey: AdminKey},
		Security:   sec,
		Logger:     logger,
	})

	// ---- Start server ----
	server := httptest.NewServer(r)

	return &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Sched:  sched,
		Audit:  auditSvc,
		Server: server,
		URL:    server.URL,
		Sec:    sec,
	}
}

// Close shuts down the test server and background workers.
func (ts *TestServer) Close() {
	// Open SSE streams would otherwise keep Close waiting.
	ts.Server.CloseClientConnections()
	ts.Server.Close()
	ts.Sched.Stop()
	ts.Audit.Stop(context.Background())
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body interface{}, token string, headers ...string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, token)
}

// Delete sends a DELETE request with optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodDelete, path, nil, token)
}

// Put sends a PUT request with JSON body and optional Bearer token.
func (ts *TestServer) Put(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPut, path, body, token)
}

// Admin sends a request to an /api/admin endpoint with the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.do(t, method, path, body, "", "X-Admin-Key", AdminKey)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// Expect asserts the response status and closes the body.
func Expect(t *testing.T, status int, resp *http.Response) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != status {
		data, _ := io.ReadAll(resp.Body)
		require.Equal(t, status, resp.StatusCode, "body: %s", string(data))
	}
}

// --- Auth helpers ---

// Register creates an account and returns its token and user ID.
func (ts *TestServer) Register(t *testing.T, username, password string) (token string, userID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/register", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	ReadJSON(t, resp, &result)
	require.NotEmpty(t, result.Token)
	return result.Token, result.User.ID
}

// Login returns a fresh token for an existing account.
func (ts *TestServer) Login(t *testing.T, username, password string) (token string, userID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	ReadJSON(t, resp, &result)
	return result.Token, result.User.ID
}

// Promote sets a user's site role directly in the database.
func (ts *TestServer) Promote(t *testing.T, userID int64, role string) {
	t.Helper()
	require.NoError(t, ts.DB.Model(&model.User{}).Where("id = ?", userID).Update("role", role).Error)
}

// --- SSE client ---

// SSEEvent is one server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// Notification decodes the event data as a notification.
func (e SSEEvent) Notification(t *testing.T) event.Notification {
	t.Helper()
	var n event.Notification
	require.NoError(t, json.Unmarshal([]byte(e.Data), &n), "data: %s", e.Data)
	return n
}

// SSEClient reads the /sse stream of one user.
type SSEClient struct {
	events chan SSEEvent
	cancel context.CancelFunc
}

// ConnectSSE opens the notification stream for token and waits until the
// server confirms the subscription.
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		require.NoError(t, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	sc := &SSEClient{events: make(chan SSEEvent, 64), cancel: cancel}
	go sc.readLoop(resp.Body)
	t.Cleanup(sc.Close)

	sc.Expect(t, "connected", 2*time.Second)
	return sc
}

func (sc *SSEClient) readLoop(body io.ReadCloser) {
	defer close(sc.events)
	defer body.Close()
	var cur SSEEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Name != "" {
				sc.events <- cur
			}
			cur = SSEEvent{}
		case strings.HasPrefix(line, "event:"):
			cur.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

// Recv waits for the next event.
func (sc *SSEClient) Recv(timeout time.Duration) (SSEEvent, error) {
	select {
	case ev, ok := <-sc.events:
		if !ok {
			return SSEEvent{}, io.EOF
		}
		return ev, nil
	case <-time.After(timeout):
		return SSEEvent{}, fmt.Errorf("no event within %s", timeout)
	}
}

// Expect skips events until one named name arrives.
func (sc *SSEClient) Expect(t *testing.T, name string, timeout time.Duration) SSEEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		require.Greater(t, remaining, time.Duration(0), "timed out waiting for %q", name)
		ev, err := sc.Recv(remaining)
		require.NoError(t, err, "waiting for %q", name)
		if ev.Name == name {
			return ev
		}
	}
}

// Close ends the stream.
func (sc *SSEClient) Close() {
	sc.cancel()
}

var uidCounter int64

// UniqueID generates a unique name with the given prefix.
func UniqueID(prefix string) string {
	n := atomic.AddInt64(&uidCounter, 1)
	return fmt.Sprintf("%s%d", prefix, n)
}
