package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"zerodte/internal/cache"
	"zerodte/internal/calendar"
	"zerodte/internal/config"
	cronrunner "zerodte/internal/cron"
	"zerodte/internal/db"
	"zerodte/internal/handler"
	"zerodte/internal/jobs"
	"zerodte/internal/logger"
	"zerodte/internal/market"
	"zerodte/internal/market/alpaca"
	"zerodte/internal/market/gateway"
	"zerodte/internal/notification"
	"zerodte/internal/pipeline"
	"zerodte/internal/repository"
	gormrepository "zerodte/internal/repository/gorm"
	memoryrepository "zerodte/internal/repository/memory"

	_ "zerodte/docs"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("ZDTE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("ZDTE_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cal, err := calendar.NewWithTimezone(cfg.Calendar.Timezone)
	if err != nil {
		logger.Fatal("calendar init failed", zap.Error(err))
	}

	var (
		store  repository.Repository
		gormDB *gorm.DB
	)
	switch strings.ToLower(strings.TrimSpace(cfg.DB.Driver)) {
	case "memory":
		logger.Warn("using in-memory job store; runs are lost on restart")
		store = memoryrepository.New()
	default:
		dbConn, err := db.Open(cfg.DB)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)

		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbConn.Gorm)
		gormDB = dbConn.Gorm
	}

	seedJobs(logger, store, cfg.Jobs.SeedFile)

	cacheStore, err := cache.Open(cfg.Cache)
	if err != nil {
		logger.Fatal("cache init failed", zap.Error(err))
	}
	var cachePing interface {
		Ping(ctx context.Context) error
	}
	if rs, ok := cacheStore.(*cache.RedisStore); ok {
		cachePing = rs
		defer rs.Close()
	}

	gw := gateway.New(cfg.Market.Gateway)
	var (
		snapshots market.SnapshotProvider = gw
		accounts  market.AccountProvider  = gw
	)
	if cfg.Market.Alpaca.Enabled {
		ap := alpaca.NewProvider(cfg.Market.Alpaca, gw)
		accounts = ap
		if strings.EqualFold(cfg.Market.SnapshotSource, "alpaca") {
			snapshots = ap
		}
		logger.Info("alpaca provider enabled", zap.String("snapshot_source", cfg.Market.SnapshotSource))
	}
	cached := &market.CachedProvider{
		Snapshots:   snapshots,
		Chains:      gw,
		Store:       cacheStore,
		Logger:      logger,
		SnapshotTTL: cfg.Cache.SnapshotTTL,
		ChainTTL:    cfg.Cache.ChainTTL,
	}

	pipe := pipeline.New(cfg, pipeline.Deps{
		Snapshots: cached,
		Chains:    cached,
		Accounts:  accounts,
		Calendar:  cal,
		Logger:    logger,
	})

	var notifier jobs.Notifier
	if strings.TrimSpace(cfg.Notify.WebhookURL) != "" {
		notifier = notification.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	}
	executor := &jobs.Executor{
		Repo:     store,
		Pipeline: pipe,
		Calendar: cal,
		Notifier: notifier,
		Logger:   logger,
		Retry:    jobs.RetryPolicyFromConfig(cfg.Jobs.Retry),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := &jobs.Scheduler{
		Executor:      executor,
		Repo:          store,
		Runner:        cronrunner.New(logger, ctx),
		Logger:        logger,
		StaleAfter:    cfg.Jobs.StaleAfter,
		ReconcileSpec: cfg.Cron.Reconcile,
	}
	if cfg.Cron.Enabled {
		if err := scheduler.Start(ctx); err != nil {
			logger.Fatal("scheduler start failed", zap.Error(err))
		}
		defer scheduler.Stop()
	} else {
		logger.Info("cron disabled; jobs run on manual trigger only")
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.WriteAuditMiddleware(logger))

	healthHandler := &handler.HealthHandler{DB: gormDB, Cache: cachePing}
	healthHandler.Register(engine)
	pipelineHandler := &handler.PipelineHandler{Pipeline: pipe, Logger: logger}
	pipelineHandler.Register(engine)
	jobHandler := &handler.JobHandler{Repo: store, Executor: executor, Scheduler: scheduler}
	jobHandler.Register(engine)
	calendarHandler := &handler.CalendarHandler{Calendar: cal}
	calendarHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func seedJobs(logger *zap.Logger, repo repository.JobRepository, path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	file, err := jobs.LoadSeedFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("job seed file not found", zap.String("path", path))
			return
		}
		logger.Fatal("job seed load failed", zap.String("path", path), zap.Error(err))
	}
	items, err := file.Models()
	if err != nil {
		logger.Fatal("job seed invalid", zap.String("path", path), zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := jobs.Seed(ctx, repo, items); err != nil {
		logger.Fatal("job seed failed", zap.Error(err))
	}
	logger.Info("jobs seeded", zap.Int("count", len(items)))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
