package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/api/sse"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/scheduler"
	"github.com/kasuganosora/socialgraph/social/blacklist"
	"github.com/kasuganosora/socialgraph/social/feed"
	"github.com/kasuganosora/socialgraph/social/group"
	"github.com/kasuganosora/socialgraph/social/identity"
	"github.com/kasuganosora/socialgraph/social/moderation"
	"github.com/kasuganosora/socialgraph/social/post"
	"github.com/kasuganosora/socialgraph/social/relationship"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deps is everything the HTTP surface calls into.
type Deps struct {
	Users         *identity.Service
	Relationships *relationship.Service
	Blacklist     *blacklist.Service
	Groups        *group.Service
	Posts         *post.Service
	Composer      *feed.Composer
	Moderation    *moderation.Service
	News          *feed.NewsStore
	Audit         *audit.Service
	Scheduler     *scheduler.Scheduler
	SSE           *sse.Handler
	Gatherer      prometheus.Gatherer
	Cache         cache.Cache
	Server        config.ServerConfig
	Security      config.SecurityConfig
	Logger        *zap.Logger
}

// Mount registers every REST route plus /sse on r.
func Mount(r gin.IRouter, d Deps) {
	auth := mw.Auth(d.Security, d.Cache)
	write := writeLimit(d.Security)

	authH := NewAuthHandler(d.Users, d.Cache, d.Security, d.Logger)
	userH := NewUserHandler(d.Users, d.Composer, d.Posts, d.Logger)
	socialH := NewSocialHandler(d.Relationships, d.Blacklist, d.Users, d.Logger)
	groupH := NewGroupHandler(d.Groups, d.Posts, d.Logger)
	postH := NewPostHandler(d.Posts, d.Composer, d.Logger)
	reportH := NewReportHandler(d.Moderation, d.Logger)
	adminH := NewAdminHandler(d.News, d.Audit, d.Scheduler, d.SSE, d.Gatherer, d.Logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", auth, authH.Logout)
		authG.POST("/refresh", auth, authH.Refresh)

		usersG := api.Group("/users", auth)
		usersG.GET("/search", userH.Search)
		usersG.PUT("/me", userH.UpdateMe)
		usersG.GET("/:id", userH.Get)
		usersG.GET("/:id/summary", userH.Summary)
		usersG.GET("/:id/posts", userH.Posts)

		socialG := api.Group("/social", auth)
		socialG.GET("/friends", socialH.ListFriends)
		socialG.POST("/friends/:id", write, socialH.RequestFriend)
		socialG.DELETE("/friends/:id", socialH.Unfriend)
		socialG.GET("/requests", socialH.ListRequests)
		socialG.POST("/requests/:id/:action", socialH.RespondRequest)
		socialG.GET("/blacklist", socialH.ListBlacklist)
		socialG.POST("/blacklist/:id", write, socialH.Block)
		socialG.DELETE("/blacklist/:id", socialH.Unblock)

		groupsG := api.Group("/groups", auth)
		groupsG.POST("", write, groupH.Create)
		groupsG.GET("", groupH.List)
		groupsG.GET("/:id", groupH.Detail)
		groupsG.PUT("/:id", groupH.Update)
		groupsG.POST("/:id/join", write, groupH.Join)
		groupsG.POST("/:id/leave", groupH.Leave)
		groupsG.GET("/:id/requests", groupH.Requests)
		groupsG.POST("/:id/requests/:rid/:action", groupH.Resolve)
		groupsG.PUT("/:id/members/:uid/role", groupH.ChangeRole)
		groupsG.DELETE("/:id/members/:uid", groupH.RemoveMember)
		groupsG.POST("/:id/transfer/:uid", groupH.Transfer)
		groupsG.GET("/:id/posts", groupH.Posts)
		groupsG.POST("/:id/posts", write, groupH.CreatePost)

		api.POST("/posts", auth, write, postH.Create)
		api.DELETE("/posts/:id", auth, postH.Delete)
		api.POST("/likes/:kind/:id", auth, postH.Like)
		api.POST("/comments/:kind/:id", auth, write, postH.Comment)
		api.GET("/comments/:kind/:id", auth, postH.Comments)
		api.GET("/feed", auth, postH.Feed)

		api.POST("/reports/:id", auth, write, reportH.File)
		techG := api.Group("/techadmin", auth)
		techG.GET("/reports", reportH.List)
		techG.POST("/reports/:id/:action", reportH.Adjudicate)

		adminG := api.Group("/admin", mw.IPWhitelist(d.Server.AdminIPs), AdminAuth(d.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics())
		adminG.POST("/news", adminH.AddNews)
		adminG.POST("/announce", adminH.Announce)
		adminG.GET("/audit", adminH.Audit)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	r.GET("/sse", auth, d.SSE.ServeSSE)
}

// writeLimit throttles content-creating routes per user. It must run after
// Auth so requests are charged to the account.
func writeLimit(sec config.SecurityConfig) gin.HandlerFunc {
	if sec.WriteRateRPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return mw.RateLimit(rate.Limit(sec.WriteRateRPS), sec.WriteRateBurst, mw.ByUser)
}
