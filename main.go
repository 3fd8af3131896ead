package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"voltslot/config"
	"voltslot/cron"
	"voltslot/database"
	directoryRepo "voltslot/database/repository/directory"
	reservationRepo "voltslot/database/repository/reservation"
	"voltslot/handlers"
	"voltslot/metrics"
	"voltslot/middleware"
	"voltslot/routes"
	"voltslot/services/notification"
	"voltslot/services/payment"
	"voltslot/services/reservation"
	"voltslot/services/scheduler"
	"voltslot/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type directories struct {
	stations directoryRepo.StationDirectory
	vehicles directoryRepo.VehicleDirectory
	users    directoryRepo.UserDirectory
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.GetLogger().Fatal("main: invalid configuration", zap.Error(err))
	}
	logger := utils.InitializeLogger(cfg.IsProduction(), cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthChecks := map[string]utils.Pinger{}

	// Storage.
	var repo reservationRepo.ReservationRepository
	var dirs directories
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("main: using in-memory store; reservations will not survive a restart")
		repo = reservationRepo.NewMemoryReservationRepo()
		mem := directoryRepo.NewMemoryDirectory()
		dirs = directories{stations: mem, vehicles: mem, users: mem}
	default:
		client, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("main: database unavailable", zap.Error(err))
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		db := client.Database(cfg.DatabaseName)

		mongoRepo := reservationRepo.NewMongoReservationRepo(db)
		if err := mongoRepo.EnsureIndexes(ctx); err != nil {
			logger.Fatal("main: failed to create reservation indexes", zap.Error(err))
		}
		repo = mongoRepo
		dir := directoryRepo.NewMongoDirectory(db)
		dirs = directories{stations: dir, vehicles: dir, users: dir}
		healthChecks["mongo"] = utils.PingFunc(func(ctx context.Context) error { return client.Ping(ctx, nil) })
	}

	// Metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("voltslot", registry)

	// Slot cache.
	var cache reservation.SlotCache = reservation.NopSlotCache{}
	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisCacheDB)
	if err != nil {
		logger.Warn("main: slot cache disabled", zap.Error(err))
	} else {
		defer func() { _ = redisClient.Close() }()
		cache = reservation.NewRedisSlotCache(redisClient, logger)
		healthChecks["redis"] = utils.RedisPinger{Client: redisClient}
	}

	notifier := buildNotifier(ctx, cfg, m, logger)
	gateway := payment.NewStripeGateway(cfg.StripeKey, cfg.StripeWebhookSecret, logger)

	// Scheduler.
	schedOpts := scheduler.Options{
		Concurrency: cfg.WorkerConcurrency,
		Retry: scheduler.RetryPolicy{
			MaxAttempts: cfg.JobMaxAttempts,
			BaseDelay:   cfg.JobRetryBaseDelay,
			MaxDelay:    cfg.JobRetryMaxDelay,
		},
		Logger:   logger,
		Observer: m,
	}
	var sched scheduler.Scheduler
	switch cfg.SchedulerBackend {
	case "memory":
		logger.Warn("main: using in-memory scheduler; pending expiries are recovered by the sweeper after a restart")
		sched = scheduler.NewMemoryScheduler(schedOpts)
	default:
		queueClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisQueueDB})
		defer func() { _ = queueClient.Close() }()
		pinger := utils.RedisPinger{Client: queueClient}
		sched = scheduler.NewAsynqScheduler(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisQueueDB,
		}, "reservations", pinger, schedOpts)
		healthChecks["queue"] = pinger
	}

	svc := reservation.NewService(reservation.Deps{
		Repo:      repo,
		Stations:  dirs.stations,
		Vehicles:  dirs.vehicles,
		Users:     dirs.users,
		Scheduler: sched,
		Cache:     cache,
		Notifier:  notifier,
		Metrics:   m,
		Logger:    logger,
	}, reservation.PolicyFromConfig(cfg))

	// Workers. The scheduler must be reachable before we accept bookings.
	expiryWorker := cron.NewExpiryWorker(repo, svc.Manager(), logger)
	reminderWorker := cron.NewReminderWorker(repo, dirs.users, notifier, m, logger)
	sweeper := cron.NewSweeper(repo, sched, cfg.SweepInterval, m, logger)
	if err := cron.InitWorkers(ctx, sched, expiryWorker, reminderWorker, sweeper, logger); err != nil {
		logger.Fatal("main: scheduler unavailable", zap.Error(err))
	}
	defer sched.Shutdown()

	health := utils.NewHealthMonitor(logger, healthChecks)
	health.Start(ctx, 30*time.Second)

	// HTTP.
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(utils.ErrorHandler(logger))
	router.Use(handlers.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin))

	verifier := utils.NewTokenVerifier(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		logger.Warn("main: JWT_SECRET is empty; all authenticated endpoints will reject requests")
	}
	bundle := handlers.NewHandlerBundle(
		handlers.NewReservationHandler(svc, gateway, logger),
		handlers.NewPaymentHandler(svc.Manager(), gateway, logger),
		handlers.NewAdminHandler(sched),
		verifier,
		cfg.PaymentCallbackSecret,
		health,
	)
	routes.RegisterRoutes(router, bundle, registry)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	logger.Sugar().Info("main: server stopped gracefully")
}

// buildNotifier fans out to every configured channel. The log channel is
// always present so notifications are never silently dropped.
func buildNotifier(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *zap.Logger) notification.Notifier {
	channels := []notification.Notifier{}
	if cfg.MailerSendAPIKey != "" {
		channels = append(channels, notification.NewEmailNotifier(cfg.MailerSendAPIKey, cfg.MailerSendFromName, cfg.MailerSendFromEmail, logger))
	}
	if cfg.FirebaseCredentialsFile != "" {
		fcm, err := utils.NewFCMClient(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Warn("main: push notifications disabled", zap.Error(err))
		} else {
			channels = append(channels, notification.NewPushNotifier(fcm))
		}
	}
	channels = append(channels, notification.NewLogNotifier(logger))
	return notification.NewMultiNotifier(logger, m.NotificationFailed, channels...)
}

