package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	apirest "github.com/ftfvalues/tradecalc/api/rest"
	"github.com/ftfvalues/tradecalc/api/sse"
	apows "github.com/ftfvalues/tradecalc/api/ws"
	"github.com/ftfvalues/tradecalc/audit"
	"github.com/ftfvalues/tradecalc/cache"
	"github.com/ftfvalues/tradecalc/config"
	dbadapter "github.com/ftfvalues/tradecalc/db"
	"github.com/ftfvalues/tradecalc/game/trade"
	mw "github.com/ftfvalues/tradecalc/middleware"
	"github.com/ftfvalues/tradecalc/model"
	"github.com/ftfvalues/tradecalc/plugin/hook"
	"github.com/ftfvalues/tradecalc/resource"
	"github.com/ftfvalues/tradecalc/scheduler"
	"github.com/ftfvalues/tradecalc/snapshot"
	"github.com/gin-gonic/gin"
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

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database (optional) ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if db != nil {
		if err := model.AutoMigrate(db); err != nil {
			log.Fatalf("db migrate: %v", err)
		}
		logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))
	} else {
		logger.Info("no database configured; snapshots live in the cache only")
	}

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		RedisPrefix:     cfg.Cache.RedisPrefix,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, pubsub, err := cache.Open(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	hc := hook.NewHookCenter()

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Snapshot persistence ----
	stores := []snapshot.Store{snapshot.NewCacheStore(c, cfg.Trade.SnapshotTTL)}
	if db != nil {
		stores = append(stores, snapshot.NewDBStore(db))
	}
	persister := snapshot.NewPersister(snapshot.NewTiered(logger, stores...), sched, cfg.Trade.PersistDebounce, logger)
	persister.Register(hc)

	// ---- Audit ----
	if db != nil {
		auditSvc := audit.New(db, logger)
		defer auditSvc.Stop(context.Background())
		auditSvc.Register(hc)
	}

	// ---- SSE fan-out ----
	sse.NewPublisher(pubsub, logger).Register(hc)

	// ---- Catalog ----
	reloadLog := resource.NewReloadLog(c, cfg.Catalog.ReloadLogSize, logger)
	reloadLog.Register(hc)
	res := resource.NewLoader(cfg.Catalog.ItemsPath, cfg.Catalog.ExceptionsPath, hc, logger)
	if err := res.Load(context.Background()); err != nil {
		logger.Warn("catalog not loaded; item lookups disabled until the next reload", zap.Error(err))
	}

	tradeSvc := trade.NewService(res, persister, hc, logger)
	logger.Info("hooks registered",
		zap.Int(hook.AfterTradeMutate, hc.Registered(hook.AfterTradeMutate)),
		zap.Int(hook.OnTradeClose, hc.Registered(hook.OnTradeClose)),
		zap.Int(hook.OnCatalogReload, hc.Registered(hook.OnCatalogReload)))

	// ---- Periodic Scheduler Tasks ----
	if cfg.Catalog.ReloadInterval > 0 {
		sched.AddTicker("catalog_reload", cfg.Catalog.ReloadInterval, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = res.Load(ctx)
		})
	}
	if cfg.Trade.SweepInterval > 0 {
		sched.AddTicker("session_sweep", cfg.Trade.SweepInterval, func() {
			tradeSvc.Sweep(cfg.Trade.SessionTTL)
		})
	}

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	apows.NewTradeHandlers(tradeSvc, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok", "catalog": res.Status().Status})
	})

	// ---- REST API routes ----
	tradeH := apirest.NewTradeHandler(tradeSvc, logger)
	catalogH := apirest.NewCatalogHandler(res)
	adminH := apirest.NewAdminHandler(tradeSvc, res, persister, sched, logger)
	adminH.SetReloadLog(reloadLog)

	api := r.Group("/api")
	{
		tradeH.Routes(api.Group("/trades"))

		catalogG := api.Group("/catalog")
		catalogG.GET("", catalogH.List)
		catalogG.GET("/status", catalogH.Status)
		catalogG.GET("/summary", catalogH.Summary)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/catalog/reload", adminH.ReloadCatalog)
		adminG.GET("/catalog/history", adminH.CatalogHistory)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- WebSocket ----
	wsH := apows.NewHandler(tradeSvc, cfg.Security, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, tradeSvc, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Static calculator site ----
	r.GET("/ftf_items.json", func(ctx *gin.Context) {
		ctx.File(cfg.Catalog.ItemsPath)
	})
	if cfg.Server.StaticDir != "" {
		r.StaticFile("/", filepath.Join(cfg.Server.StaticDir, "index.html"))
		// NoRoute fallback: try to serve from the static dir (css/, js/, images).
		r.NoRoute(func(ctx *gin.Context) {
			path := filepath.Join(cfg.Server.StaticDir, filepath.Clean("/"+ctx.Request.URL.Path))
			if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
				ctx.File(path)
				return
			}
			ctx.JSON(404, gin.H{"error": "not found"})
		})
		logger.Info("Serving static site", zap.String("dir", cfg.Server.StaticDir))
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	stop, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-stop.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}

	flushCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	persister.Flush(flushCtx)
	logger.Info("Server stopped")
}
