package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/studtime/studtime/internal/handler"
	"github.com/studtime/studtime/internal/jobs"
	"github.com/studtime/studtime/internal/render"
	"github.com/studtime/studtime/internal/repository"
	"github.com/studtime/studtime/internal/service"
	"github.com/studtime/studtime/internal/upstream"
	"github.com/studtime/studtime/pkg/cache"
	"github.com/studtime/studtime/pkg/config"
	"github.com/studtime/studtime/pkg/database"
	"github.com/studtime/studtime/pkg/logger"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, running without hot cache", "error", err)
		redisClient = nil
	}

	// Repositories.
	lessonRepo := repository.NewLessonRepository(db)
	overlayRepo := repository.NewOverlayRepository(db)
	weekCacheRepo := repository.NewWeekCacheRepository(db)
	imageRepo := repository.NewImageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(db)
	userRepo := repository.NewUserRepository(db)
	hotCacheRepo := repository.NewCacheRepository(redisClient, logr)
	sessionRepo := repository.NewSessionRepository(redisClient)

	// Services.
	validate := validator.New()
	metrics := service.NewMetricsService()

	sessions := service.NewSessionService(sessionRepo, cfg.Upstream.SessionTTL, logr)
	upstreamClient := upstream.NewHTTPClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, logr)
	syncSvc := service.NewSyncService(upstreamClient, sessions, lessonRepo, metrics, logr)

	weekSvc := service.NewWeekCacheService(
		weekCacheRepo, lessonRepo, overlayRepo, syncSvc, sessions, hotCacheRepo, metrics,
		cfg.Timetable.CacheTTL, cfg.Timetable.SyncStaleness, cfg.Timetable.HotCacheTTL, logr)

	overlaySvc := service.NewOverlayService(overlayRepo, lessonRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)

	markup, err := render.NewMarkupBuilder()
	if err != nil {
		logr.Sugar().Fatalw("failed to build markup templates", "error", err)
	}
	renderer := render.NewManager(render.Config{
		ExecPath:       cfg.Renderer.ExecPath,
		ViewportWidth:  cfg.Renderer.ViewportWidth,
		ViewportHeight: cfg.Renderer.ViewportHeight,
		RenderTimeout:  cfg.Renderer.RenderTimeout,
		StartTimeout:   cfg.Renderer.StartTimeout,
	}, logr)
	renderer.OnRestart(metrics.RecordRendererRestart)
	defer renderer.Close()

	imageSvc := service.NewImageService(imageRepo, markup, renderer, metrics,
		cfg.Renderer.ImageTTL, cfg.Renderer.ImageTTLExtend, logr)

	notifySvc := service.NewNotifyService(notificationRepo, preferenceRepo, weekSvc, imageSvc,
		metrics, cfg.Renderer.DefaultStyle, logr)

	// Background jobs.
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pool *jobs.DispatchPool
	var scheduler *jobs.Scheduler
	if cfg.Notifications.Enabled {
		pool = jobs.NewDispatchPool(jobs.LogDispatcher{Logger: logr}, notificationRepo, jobs.DispatchPoolConfig{
			Workers:    cfg.Notifications.WorkerConcurrency,
			MaxRetries: cfg.Notifications.WorkerRetries,
			Logger:     logr,
		})
		pool.Start(rootCtx)
		defer pool.Stop()

		scheduler, err = jobs.NewScheduler(jobs.SchedulerConfig{
			DispatchSpec: cfg.Notifications.DispatchSpec,
			ResyncSpec:   cfg.Notifications.ResyncSpec,
			Outbox:       notificationRepo,
			Pool:         pool,
			Users:        userRepo,
			Syncer:       syncSvc,
			Weeks:        weekSvc,
			Planner:      notifySvc,
			Images:       imageRepo,
			Logger:       logr,
		})
		if err != nil {
			logr.Sugar().Fatalw("failed to build scheduler", "error", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// HTTP surface.
	router := handler.NewRouter(handler.RouterConfig{
		Logger:         logr,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Timetables:     handler.NewTimetableHandler(userSvc, weekSvc, imageSvc, cfg.Renderer.DefaultStyle),
		Overlays:       handler.NewOverlayHandler(userSvc, overlaySvc, hotCacheRepo, weekCacheRepo, logr),
		Preferences:    handler.NewPreferenceHandler(notifySvc),
		Users:          handler.NewUserHandler(userSvc, sessions),
		Metrics:        handler.NewMetricsHandler(metrics),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
