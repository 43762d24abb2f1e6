package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/eslamalbaik/earth-innovators-booking/api/swagger"
	"github.com/eslamalbaik/earth-innovators-booking/internal/handler"
	internaljobs "github.com/eslamalbaik/earth-innovators-booking/internal/jobs"
	"github.com/eslamalbaik/earth-innovators-booking/internal/middleware"
	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
	"github.com/eslamalbaik/earth-innovators-booking/internal/repository"
	"github.com/eslamalbaik/earth-innovators-booking/internal/service"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/cache"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/config"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/database"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/jobs"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/logger"
	corsmiddleware "github.com/eslamalbaik/earth-innovators-booking/pkg/middleware/cors"
	reqidmiddleware "github.com/eslamalbaik/earth-innovators-booking/pkg/middleware/requestid"
)

// @title Earth Innovators Booking API
// @version 0.1.0
// @description Tutoring session booking core
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logr.Sugar().Fatalw("failed to run migrations", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, slot cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	slotRepo := repository.NewSlotRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	rewardRepo := repository.NewRewardRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	paymentClient := service.NewHTTPPaymentClient(service.PaymentClientConfig{
		BaseURL: cfg.Payments.BaseURL,
		APIKey:  cfg.Payments.APIKey,
		Timeout: cfg.Payments.Timeout,
	}, logr)
	notifier := service.NewWebhookNotifier(service.WebhookNotifierConfig{
		WebhookURL: cfg.Notifier.WebhookURL,
		Timeout:    cfg.Notifier.Timeout,
	}, logr)

	rewardsSvc := service.NewRewardsService(rewardRepo, service.DefaultCompletionPoints, logr)

	dispatcher := service.NewDispatcher(notifier, paymentClient, bookingRepo, rewardsSvc, metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		BufferSize: cfg.Jobs.BufferSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
	})
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	availabilitySvc := service.NewAvailabilityService(
		slotRepo,
		cacheRepo,
		repository.SlotListKey,
		cfg.Booking.SlotCacheTTL,
		metrics,
		validate,
		logr,
	)
	bookingSvc := service.NewBookingService(
		slotRepo,
		bookingRepo,
		userRepo,
		dispatcher,
		cacheRepo,
		metrics,
		validate,
		logr,
		cfg.Booking.PendingTTL,
	)

	sweeper := internaljobs.NewSweeper(bookingSvc, cfg.Booking.SweepSchedule, logr)
	if err := sweeper.Start(); err != nil {
		logr.Sugar().Fatalw("failed to start sweeper", "error", err)
	}
	defer sweeper.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc, rewardsSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		slots := authed.Group("/slots")
		slots.GET("", availabilityHandler.List)
		slots.POST("", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), availabilityHandler.Create)
		slots.DELETE("/:id", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), availabilityHandler.Cancel)
		slots.GET("/export", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), availabilityHandler.ExportSchedule)

		bookings := authed.Group("/bookings")
		bookings.POST("", middleware.RequireRoles(models.RoleStudent), bookingHandler.Request)
		bookings.GET("/mine", bookingHandler.ListMine)
		bookings.GET("/teaching", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), bookingHandler.ListTeaching)
		bookings.GET("/:id", bookingHandler.Get)
		bookings.GET("/:id/receipt", bookingHandler.Receipt)
		bookings.POST("/:id/approve", bookingHandler.Approve)
		bookings.POST("/:id/reject", bookingHandler.Reject)
		bookings.POST("/:id/cancel", bookingHandler.Cancel)
		bookings.POST("/:id/complete", bookingHandler.Complete)

		authed.GET("/rewards", bookingHandler.Rewards)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
