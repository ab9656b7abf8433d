package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	apirest "github.com/kasuganosora/socialgraph/api/rest"
	"github.com/kasuganosora/socialgraph/api/sse"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	dbadapter "github.com/kasuganosora/socialgraph/db"
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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxPostLength = 5000

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database, logger)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
		KeyPrefix:       cfg.Cache.KeyPrefix,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	events := event.NewPublisher(pubsub, logger)

	// ---- Hooks ----
	hooks := hook.New(logger)
	hooks.Register(hook.BeforePostCreate, 0, "max_length", hook.MaxLength(maxPostLength))
	if len(cfg.Social.MaskedWords) > 0 {
		hooks.Register(hook.BeforePostCreate, 10, "mask_words", hook.MaskWords(cfg.Social.MaskedWords))
	}

	// ---- Services ----
	users := identity.NewService(db, cfg.Security.BcryptCost, logger)
	if err := users.Bootstrap(context.Background(), cfg.Bootstrap.Accounts); err != nil {
		log.Fatalf("bootstrap accounts: %v", err)
	}
	relationships := relationship.NewService(db, c, events, relationship.Options{
		AllowReRequestAfterReject: cfg.Social.AllowReRequestAfterReject,
		LockWait:                  cfg.Social.LockWait,
	}, logger)
	blacklistSvc := blacklist.NewService(db, c, cfg.Social.LockWait, logger)
	groups := group.NewService(db, c, events, auditSvc, group.Options{
		TransferMovesCreator: cfg.Social.TransferMovesCreator,
		LockWait:             cfg.Social.LockWait,
	}, logger)
	posts := post.NewService(db, hooks, logger)
	news := feed.NewNewsStore(db)
	composer := feed.NewComposer(db, news, cfg.Social.FeedLimit, logger)
	moderationSvc := moderation.NewService(db, c, events, auditSvc, cfg.Social.MinReportReason, logger)

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := scheduler.NewStats(reg)
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "social_audit_dropped_total",
		Help: "Audit entries discarded because the write queue was full.",
	}, func() float64 { return float64(auditSvc.Dropped()) }))

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	pruneNews := scheduler.NewsPrune(news, cfg.News.Retention, logger)
	refreshStats := scheduler.StatsGauges(db, stats)
	sched.AddTicker(scheduler.TaskNewsPrune, cfg.News.PruneInterval, pruneNews)
	sched.AddTicker(scheduler.TaskStatsGauges, time.Minute, refreshStats)
	sched.RunNow(scheduler.TaskStatsGauges, refreshStats)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), mw.Metrics(reg))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst, mw.ByIP))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	apirest.Mount(r, apirest.Deps{
		Users:         users,
		Relationships: relationships,
		Blacklist:     blacklistSvc,
		Groups:        groups,
		Posts:         posts,
		Composer:      composer,
		Moderation:    moderationSvc,
		News:          news,
		Audit:         auditSvc,
		Scheduler:     sched,
		SSE:           sse.NewHandler(pubsub, events, logger),
		Gatherer:      reg,
		Cache:         c,
		Server:        cfg.Server,
		Security:      cfg.Security,
		Logger:        logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
