package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/ridemart/auth-api/api/swagger"
	"github.com/ridemart/auth-api/internal/handler"
	"github.com/ridemart/auth-api/internal/middleware"
	"github.com/ridemart/auth-api/internal/models"
	"github.com/ridemart/auth-api/internal/repository"
	"github.com/ridemart/auth-api/internal/service"
	"github.com/ridemart/auth-api/pkg/cache"
	"github.com/ridemart/auth-api/pkg/config"
	"github.com/ridemart/auth-api/pkg/database"
	"github.com/ridemart/auth-api/pkg/logger"
	corsmiddleware "github.com/ridemart/auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ridemart/auth-api/pkg/middleware/requestid"
	"github.com/ridemart/auth-api/pkg/notify"
)

// @title RideMart Auth API
// @version 1.0.0
// @description Authentication and abuse-control gateway
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	var dispatcher notify.Dispatcher = notify.NoopDispatcher{}
	if cfg.Notify.Enabled {
		amqpDispatcher, err := notify.NewAMQPDispatcher(cfg.Notify.URL, cfg.Notify.QueueName, logr)
		if err != nil {
			logr.Fatal("failed to connect to notification broker", zap.Error(err))
		}
		dispatcher = amqpDispatcher
	}
	defer dispatcher.Close() //nolint:errcheck

	tokenRepo := repository.NewTokenRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	alertRepo := repository.NewSecurityAlertRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	sessionSvc := service.NewSessionService(tokenRepo, alertRepo, auditRepo, metricsSvc, logr, service.SessionConfig{
		Secret:             cfg.JWT.Secret,
		TokenHashPepper:    cfg.JWT.TokenHashPepper,
		Issuer:             cfg.JWT.Issuer,
		AccessTokenExpiry:  cfg.JWT.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.JWT.RefreshTokenExpiry,
	})
	throttleSvc := service.NewThrottleService(attemptRepo, auditRepo, metricsSvc, logr, service.ThrottleConfig{
		Window:           cfg.Throttle.Window,
		MaxAttempts:      cfg.Throttle.MaxAttempts,
		HardLockAttempts: cfg.Throttle.HardLockAttempts,
		CooldownDuration: cfg.Throttle.CooldownDuration,
		HardLockDuration: cfg.Throttle.HardLockDuration,
	})
	detectorSvc := service.NewSuspiciousLoginService(attemptRepo, alertRepo, auditRepo, dispatcher, metricsSvc, logr, service.DetectorConfig{
		HistoryWindow:     cfg.Detector.HistoryWindow,
		RapidIPWindow:     cfg.Detector.RapidIPWindow,
		RapidIPThreshold:  cfg.Detector.RapidIPThreshold,
		HighRiskCountries: cfg.Detector.HighRiskCountries,
	})
	settlementSvc := service.NewSettlementService(settlementRepo, auditRepo, validate, metricsSvc, logr)
	authSvc := service.NewAuthService(userRepo, auditRepo, throttleSvc, sessionSvc, detectorSvc, validate, metricsSvc, logr)
	alertSvc := service.NewAlertService(alertRepo, attemptRepo, tokenRepo, auditRepo, cacheRepo, cfg.Settlement.OverviewCacheTTL, logr)
	userSvc := service.NewUserService(userRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc, userSvc)
	alertHandler := handler.NewAlertHandler(alertSvc)
	settlementHandler := handler.NewSettlementHandler(settlementSvc)
	throttleHandler := handler.NewThrottleHandler(throttleSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(sessionSvc), authHandler.Logout)
		auth.POST("/logout-all", middleware.JWT(sessionSvc), authHandler.LogoutAll)
		auth.GET("/me", middleware.JWT(sessionSvc), authHandler.Me)
	}

	security := api.Group("/security", middleware.JWT(sessionSvc))
	{
		security.GET("/alerts", alertHandler.List)
		security.POST("/alerts/:id/acknowledge", alertHandler.Acknowledge)
		security.POST("/alerts/:id/review",
			middleware.RequireRoles(models.RoleAdmin), alertHandler.Review)
		security.GET("/alerts/export/:format",
			middleware.RequireRoles(models.RoleAdmin), alertHandler.Export)
		security.GET("/overview",
			middleware.RequireRoles(models.RoleAdmin), alertHandler.Overview)
		security.POST("/blocks/clear",
			middleware.RequireRoles(models.RoleAdmin), throttleHandler.ClearBlocks)
	}

	settlement := api.Group("/settlement", middleware.JWT(sessionSvc))
	{
		settlement.GET("/balance", settlementHandler.MyBalance)
		settlement.POST("/accrue",
			middleware.RequireRoles(models.RoleAdmin), settlementHandler.Accrue)
		settlement.POST("/credit",
			middleware.RequireRoles(models.RoleAdmin), settlementHandler.Credit)
		settlement.GET("/balances/:owner_type/:owner_id",
			middleware.RequireRoles(models.RoleAdmin), settlementHandler.GetBalance)
		settlement.DELETE("/balances/:owner_type/:owner_id/restriction",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(auditRepo, models.AuditActionRestrictionClear, "settlement"),
			settlementHandler.ClearRestriction)
		settlement.GET("/thresholds",
			middleware.RequireRoles(models.RoleAdmin), settlementHandler.ListThresholds)
		settlement.PUT("/thresholds",
			middleware.RequireRoles(models.RoleAdmin), settlementHandler.SetThreshold)
	}

	// Example of the gate on an earner-facing operational route: drivers and
	// restaurants with an outstanding balance over the threshold get a 403
	// with settlement_required until they settle online.
	operations := api.Group("/operations", middleware.JWT(sessionSvc))
	{
		operations.GET("/status", middleware.SettlementGate(settlementSvc), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "eligible"})
		})
		operations.POST("/trips/accept",
			middleware.RequireRoles(models.RoleDriver),
			middleware.RequireSettledDriver(settlementSvc),
			func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "accepted"}) })
		operations.POST("/orders/accept",
			middleware.RequireRoles(models.RoleRestaurant),
			middleware.RequireSettledRestaurant(settlementSvc),
			func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "accepted"}) })
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go retentionSweep(sweepCtx, sessionSvc, cfg.JWT.CleanupInterval, logr)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

// retentionSweep deletes expired token records on a fixed interval. Expiry
// alone never grants access; the sweep only keeps the table bounded.
func retentionSweep(ctx context.Context, sessions *service.SessionService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := sessions.CleanupExpired(ctx)
			if err != nil {
				logr.Warn("token retention sweep failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				logr.Info("token retention sweep", zap.Int64("deleted", deleted))
			}
		}
	}
}
