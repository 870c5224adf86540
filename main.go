package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/learnquest/api/rest"
	"github.com/kasuganosora/learnquest/api/sse"
	"github.com/kasuganosora/learnquest/audit"
	"github.com/kasuganosora/learnquest/cache"
	"github.com/kasuganosora/learnquest/config"
	dbadapter "github.com/kasuganosora/learnquest/db"
	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/game/catalog"
	"github.com/kasuganosora/learnquest/game/progress"
	"github.com/kasuganosora/learnquest/game/xp"
	"github.com/kasuganosora/learnquest/metrics"
	mw "github.com/kasuganosora/learnquest/middleware"
	"github.com/kasuganosora/learnquest/model"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"github.com/kasuganosora/learnquest/resource"
	"github.com/kasuganosora/learnquest/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
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

	if cfg.Security.JWTSecret == "" {
		logger.Fatal("security.jwt_secret must be set")
	}
	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	ctx := context.Background()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(ctx)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		logger.Fatal("cache init failed", zap.Error(err))
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		logger.Fatal("pubsub init failed", zap.Error(err))
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Stores ----
	cat, err := catalog.NewStore(db, cfg.Catalog.LRUSize, logger)
	if err != nil {
		logger.Fatal("catalog init failed", zap.Error(err))
	}
	users := xp.New(db, c, logger)
	badges := badge.New(db, logger)
	if err := badges.EnsureDefaults(ctx); err != nil {
		logger.Fatal("badge seed failed", zap.Error(err))
	}

	// ---- Catalog seed ----
	if cfg.Catalog.SeedPath != "" {
		res := resource.NewLoader(cfg.Catalog.SeedPath)
		if err := res.Load(); err != nil {
			logger.Fatal("catalog load failed", zap.String("path", cfg.Catalog.SeedPath), zap.Error(err))
		}
		if err := res.Apply(ctx, cat, badges, logger); err != nil {
			logger.Fatal("catalog seed failed", zap.Error(err))
		}
	}

	// ---- Progress events ----
	hooks := hook.NewHookCenter()
	hooks.RegisterAll(hook.Events, 10, "sse", sse.Publisher(pubsub))
	hooks.RegisterAll(hook.Events, 20, "audit", auditSvc.Hook)

	coord := progress.NewCoordinator(db, cat, users, badges, c, hooks, progress.Config{
		LockTTL:  cfg.Progress.LockTTL,
		LockWait: cfg.Progress.LockWait,
	}, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker(apirest.LeaderboardTask, cfg.Progress.LeaderboardRefresh, users.RefreshLeaderboard)
	// The cache may be empty after a restart.
	go func() { _ = sched.RunNow(apirest.LeaderboardTask) }()

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.Recovery(logger), mw.TraceID(), mw.Logger(logger), mw.CORS(cfg.Security.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(metrics.Middleware(cfg.Metrics.Path))
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx.Request.Context()) != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apirest.Mount(r, apirest.Deps{
		Server:   cfg.Server,
		Security: cfg.Security,
		Cache:    c,
		PubSub:   pubsub,
		Catalog:  cat,
		Users:    users,
		Badges:   badges,
		Progress: coord,
		Audit:    auditSvc,
		Sched:    sched,
		Hooks:    hooks,
		Logger:   logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	// Streams watch the base context so Shutdown does not wait on them.
	baseCtx, cancelBase := context.WithCancel(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	stop, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-stop.Done()
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
