package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/api/rest"
	"github.com/kasuganosora/socialgraph/api/sse"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/event"
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
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testAdminKey = "admin-key"

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	r     *gin.Engine
	db    *gorm.DB
	cache cache.Cache
	sched *scheduler.Scheduler
}

func newServer(t *testing.T, opts ...func(*rest.Deps)) *server {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := testutil.Logger(t)
	events := event.NewPublisher(ps, logger)
	news := feed.NewNewsStore(db)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	reg := prometheus.NewRegistry()
	scheduler.NewStats(reg)
	auditSvc := audit.New(db, logger, audit.WithBatch(1, 10*time.Millisecond))
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	d := rest.Deps{
		Users:         identity.NewService(db, bcrypt.MinCost, logger),
		Relationships: relationship.NewService(db, c, events, relationship.Options{AllowReRequestAfterReject: true, LockWait: time.Second}, logger),
		Blacklist:     blacklist.NewService(db, c, time.Second, logger),
		Groups:        group.NewService(db, c, events, auditSvc, group.Options{TransferMovesCreator: true, LockWait: time.Second}, logger),
		Posts:         post.NewService(db, nil, logger),
		Composer:      feed.NewComposer(db, news, 30, logger),
		Moderation:    moderation.NewService(db, c, events, auditSvc, 10, logger),
		News:          news,
		Audit:         auditSvc,
		Scheduler:     sched,
		SSE:           sse.NewHandler(ps, events, logger),
		Gatherer:      reg,
		Cache:         c,
		Server:        config.ServerConfig{AdminKey: testAdminKey},
		Security:      config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour},
		Logger:        logger,
	}
	for _, opt := range opts {
		opt(&d)
	}
	r := gin.New()
	rest.Mount(r, d)
	return &server{r: r, db: db, cache: c, sched: sched}
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodPost, path, body, headers...)
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

// as issues requests on behalf of one logged-in user.
type as struct {
	s     *server
	t     *testing.T
	id    int64
	token string
}

func (s *server) register(t *testing.T, username string) *as {
	t.Helper()
	w := postJSON(s.r, "/api/auth/register", map[string]string{"username": username, "password": "pass1234"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	decode(t, w, &resp)
	return &as{s: s, t: t, id: resp.User.ID, token: resp.Token}
}

func (u *as) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	return doJSON(u.s.r, method, path, body, bearer(u.token)...)
}

func (u *as) get(format string, args ...interface{}) *httptest.ResponseRecorder {
	return u.do(http.MethodGet, fmt.Sprintf(format, args...), nil)
}

func (u *as) post(path string, body interface{}) *httptest.ResponseRecorder {
	return u.do(http.MethodPost, path, body)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
