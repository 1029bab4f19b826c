package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coursehub/notification-engine/internal/config"
	"github.com/coursehub/notification-engine/internal/gateway"
	"github.com/coursehub/notification-engine/internal/handler"
	"github.com/coursehub/notification-engine/internal/infra/postgresql"
	"github.com/coursehub/notification-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/coursehub/notification-engine/internal/infra/redis"
	"github.com/coursehub/notification-engine/internal/observability"
	"github.com/coursehub/notification-engine/internal/provider"
	"github.com/coursehub/notification-engine/internal/queue"
	"github.com/coursehub/notification-engine/internal/repository"
	"github.com/coursehub/notification-engine/internal/service"
	"github.com/coursehub/notification-engine/internal/transport"
)

const (
	shutdownTimeout = 10 * time.Second
	tickLockTTL     = 5 * time.Minute
	cronInterval    = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("notification engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer mq.Close()

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	tickLock, err := infraredis.NewTickLock(rdb, tickLockTTL)
	if err != nil {
		return fmt.Errorf("tick lock initialization failed: %w", err)
	}

	metrics := observability.NewMetrics()

	notificationRepo := repository.NewGormNotificationRepo(db)
	templateRepo := repository.NewGormTemplateRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	platformRepo := repository.NewGormPlatformRepo(db)

	gates := queue.NewGateSet(queue.WorkQueueNames()...)
	publisher := queue.NewRabbitMQPublisher(mq)
	consumer := queue.NewRabbitMQConsumer(mq, cfg.WorkerConcurrency, gates, logger)
	controller, err := queue.NewController(mq, gates)
	if err != nil {
		return fmt.Errorf("queue controller initialization failed: %w", err)
	}

	emailTransport, err := provider.NewSMTPEmailTransport(
		cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom,
	)
	if err != nil {
		return fmt.Errorf("smtp transport initialization failed: %w", err)
	}

	pushTransport, err := provider.NewPushGatewayTransport(cfg.PushGatewayURL)
	if err != nil {
		return fmt.Errorf("push transport initialization failed: %w", err)
	}

	hub := gateway.NewHub(metrics, logger)

	notificationSvc, err := service.NewNotificationService(
		notificationRepo, templateRepo, publisher, hub, metrics, logger,
	)
	if err != nil {
		return fmt.Errorf("notification service initialization failed: %w", err)
	}

	dispatcher, err := service.NewDispatcher(emailTransport, pushTransport, platformRepo, logger)
	if err != nil {
		return fmt.Errorf("dispatcher initialization failed: %w", err)
	}

	worker, err := service.NewWorkerService(
		notificationRepo, attemptRepo, consumer, dispatcher, rateLimiter, hub,
		metrics, cfg.WorkerConcurrency, logger,
	)
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}

	scheduler, err := service.NewScheduler(
		notificationRepo, publisher, hub, metrics,
		time.Duration(cfg.SweepIntervalSec)*time.Second, cfg.SweepBatchSize, logger,
	)
	if err != nil {
		return fmt.Errorf("scheduler initialization failed: %w", err)
	}

	retryScanner, err := service.NewRetryScanner(
		notificationRepo, publisher,
		time.Duration(cfg.RetryScanIntervalSec)*time.Second, cfg.SweepBatchSize, logger,
	)
	if err != nil {
		return fmt.Errorf("retry scanner initialization failed: %w", err)
	}

	campaigns, err := service.NewCampaignService(
		platformRepo, notificationSvc, notificationRepo,
		time.Duration(cfg.CampaignSuppressionHours)*time.Hour, metrics, logger,
	)
	if err != nil {
		return fmt.Errorf("campaign service initialization failed: %w", err)
	}

	reports, err := service.NewReportService(platformRepo, notificationSvc, metrics, logger)
	if err != nil {
		return fmt.Errorf("report service initialization failed: %w", err)
	}

	cleanup, err := service.NewCleanupService(
		platformRepo,
		time.Duration(cfg.AnalyticsRetentionDays)*24*time.Hour,
		time.Duration(cfg.ActivityRetentionDays)*24*time.Hour,
		logger,
	)
	if err != nil {
		return fmt.Errorf("cleanup service initialization failed: %w", err)
	}

	cron, err := service.NewCron(tickLock, cronInterval, logger)
	if err != nil {
		return fmt.Errorf("cron initialization failed: %w", err)
	}
	if err := registerCronJobs(cron, reports, campaigns, cleanup); err != nil {
		return fmt.Errorf("cron job registration failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "notification-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	if err := handler.RegisterNotificationRoutes(app, notificationSvc); err != nil {
		return fmt.Errorf("notification routes registration failed: %w", err)
	}
	if err := handler.RegisterQueueRoutes(app, controller, notificationRepo, attemptRepo); err != nil {
		return fmt.Errorf("queue routes registration failed: %w", err)
	}
	if err := gateway.RegisterRoutes(app, hub, notificationSvc, []byte(cfg.JWTSecret), logger); err != nil {
		return fmt.Errorf("gateway routes registration failed: %w", err)
	}
	handler.RegisterHealthRoutes(app, sqlDB, rdb, mq)

	promHandler := fasthttpadaptor.NewFastHTTPHandler(metrics.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		promHandler(c.Context())
		return nil
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("notification engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down http server")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	g.Go(func() error { return worker.Start(ctx) })
	g.Go(func() error { return scheduler.Start(ctx) })
	g.Go(func() error { return retryScanner.Start(ctx) })
	g.Go(func() error { return cron.Start(ctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("notification engine stopped")
	return nil
}

func registerCronJobs(
	cron *service.Cron,
	reports *service.ReportService,
	campaigns *service.CampaignService,
	cleanup *service.CleanupService,
) error {
	jobs := []struct {
		name     string
		schedule service.Schedule
		run      func(ctx context.Context) error
	}{
		{"reports:daily", service.DailyAt(0, 5), reports.RunDaily},
		{"reports:weekly", service.WeeklyOn(time.Monday, 0, 10), reports.RunWeekly},
		{"reports:monthly", service.MonthlyOn(1, 0, 15), reports.RunMonthly},
		{"campaigns:reminders", service.DailyAt(2, 0), campaigns.Run},
		{"cleanup:retention", service.EveryInterval(5 * time.Minute), cleanup.Run},
		{"cleanup:housekeeping", service.HourlyAt(0), cleanup.Housekeep},
	}

	for _, job := range jobs {
		if err := cron.Add(job.name, job.schedule, job.run); err != nil {
			return err
		}
	}
	return nil
}
