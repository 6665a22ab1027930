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
	"github.com/google/uuid"

	"github.com/pamoka/timetable-api/internal/handler"
	"github.com/pamoka/timetable-api/internal/middleware"
	"github.com/pamoka/timetable-api/internal/repository"
	"github.com/pamoka/timetable-api/internal/service"
	"github.com/pamoka/timetable-api/internal/store"
	"github.com/pamoka/timetable-api/pkg/cache"
	"github.com/pamoka/timetable-api/pkg/config"
	"github.com/pamoka/timetable-api/pkg/database"
	"github.com/pamoka/timetable-api/pkg/jobs"
	"github.com/pamoka/timetable-api/pkg/logger"
	corsmiddleware "github.com/pamoka/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/pamoka/timetable-api/pkg/middleware/requestid"
	"github.com/pamoka/timetable-api/pkg/storage"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// blob backend
	var blobs repository.BlobRepository
	switch cfg.Blobs.Backend {
	case config.BackendRedis:
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect redis", "error", err)
		}
		defer client.Close() //nolint:errcheck
		blobs = repository.NewRedisBlobRepository(client)
	default:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect postgres", "error", err)
		}
		defer db.Close() //nolint:errcheck
		pgBlobs := repository.NewPostgresBlobRepository(db)
		if err := pgBlobs.Init(ctx); err != nil {
			logr.Sugar().Fatalw("failed to init blob table", "error", err)
		}
		blobs = pgBlobs
	}

	images, err := storage.NewImageStore(cfg.Images.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init image storage", "error", err)
	}

	metrics := service.NewMetricsService()
	scheduler := service.NewTimerScheduler(service.NewLogNotifier(logr, metrics), logr)
	defer scheduler.Stop()

	timetable := service.NewTimetableService(store.NewTimetableStore(), blobs, images, scheduler, metrics, logr)
	settings := service.NewSettingsService(blobs, logr)
	feedback := service.NewFeedbackService(blobs, cfg.Feedback, logr)

	queue := jobs.NewQueue("timetable", timetable.HandleJob, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 64,
		Logger:     logr,
	})
	// jobs run on a background context so queued saves survive the
	// shutdown signal and complete during the drain
	queue.Start(context.Background())
	timetable.AttachQueue(queue)

	// a Failed report means the blob backend was unreachable, not that the
	// data is damaged; retry before giving up rather than start empty
	report := timetable.Bootstrap(ctx)
	for attempt := 2; report.State == service.StateFailed && attempt <= 3; attempt++ {
		logr.Sugar().Warnw("timetable load failed, retrying", "attempt", attempt)
		time.Sleep(2 * time.Second)
		report = timetable.Bootstrap(ctx)
	}
	if report.State == service.StateFailed {
		logr.Sugar().Fatalw("blob store unreachable, refusing to start")
	}
	logr.Sugar().Infow("bootstrap finished",
		"state", report.State,
		"skipped", report.SkippedRecords,
		"repaired", report.RepairedRows,
		"dropped", report.DroppedRows)

	if cfg.Maintenance.Enabled {
		enqueueMaintenance := func() {
			if err := queue.Enqueue(jobs.Job{ID: uuid.New().String(), Type: service.JobImageMaintenance}); err != nil {
				logr.Sugar().Warnw("failed to enqueue image maintenance", "error", err)
			}
		}
		enqueueMaintenance()
		go func() {
			ticker := time.NewTicker(cfg.Maintenance.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					enqueueMaintenance()
				}
			}
		}()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if !timetable.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": string(timetable.State())})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": string(timetable.State())})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	validate := validator.New()
	api := r.Group(cfg.APIPrefix)
	handler.NewTimetableHandler(timetable, validate).Register(api)
	handler.NewSettingsHandler(settings, feedback, timetable, validate).Register(api)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "blob_backend", cfg.Blobs.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown", "error", err)
	}

	// drain pending saves before the process exits
	queue.Stop()
	logr.Info("stopped")
}
