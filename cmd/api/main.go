package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/campus-loyalty/api"
	"github.com/angelmondragon/campus-loyalty/api/routes"
	"github.com/angelmondragon/campus-loyalty/internal/auth"
	"github.com/angelmondragon/campus-loyalty/internal/events"
	"github.com/angelmondragon/campus-loyalty/internal/notifications"
	"github.com/angelmondragon/campus-loyalty/internal/promotions"
	"github.com/angelmondragon/campus-loyalty/internal/transactions"
	"github.com/angelmondragon/campus-loyalty/internal/users"
	"github.com/angelmondragon/campus-loyalty/pkg/auth/session"
	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/metrics"
	"github.com/angelmondragon/campus-loyalty/pkg/migrate"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox"
	"github.com/angelmondragon/campus-loyalty/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.AutoRun(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	requireResource(ctx, logg, "session manager", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	notificationRepo := notifications.NewRepository(dbClient.DB())
	deliverers := []notifications.Deliverer{notifications.NewStoreDeliverer(notificationRepo)}
	if cfg.FeatureFlags.RealtimeNotifyRedis {
		deliverers = append(deliverers, notifications.NewRedisDeliverer(redisClient))
	}
	dispatcher, err := notifications.NewDispatcher(cfg.Notifications, logg, ledgerMetrics, deliverers...)
	requireResource(ctx, logg, "notification dispatcher", err)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dispatcher.Close(closeCtx); err != nil {
			logg.Error(closeCtx, "notification dispatcher did not drain", err)
		}
	}()

	userRepo := users.NewRepository(dbClient.DB())
	resetRepo := users.NewResetRepository(dbClient.DB())
	promotionRepo := promotions.NewRepository(dbClient.DB())
	eventRepo := events.NewRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		ResetRepo:      resetRepo,
		SessionManager: sessionManager,
		UnitOfWork:     dbClient,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	requireResource(ctx, logg, "auth service", err)

	userService, err := users.NewService(users.ServiceParams{
		Users:       userRepo,
		Resets:      resetRepo,
		Promotions:  promotionRepo,
		UnitOfWork:  dbClient,
		PasswordCfg: cfg.Password,
	})
	requireResource(ctx, logg, "user service", err)

	promotionService, err := promotions.NewService(promotionRepo, nil)
	requireResource(ctx, logg, "promotion service", err)

	eventService, err := events.NewService(events.ServiceParams{
		Events:     eventRepo,
		Users:      userRepo,
		UnitOfWork: dbClient,
		Sink:       dispatcher,
		Logger:     logg,
	})
	requireResource(ctx, logg, "event service", err)

	transactionService, err := transactions.NewService(transactions.ServiceParams{
		Transactions: transactions.NewRepository(dbClient.DB()),
		Users:        userRepo,
		Promotions:   promotionRepo,
		Events:       eventRepo,
		UnitOfWork:   dbClient,
		Outbox:       outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Sink:         dispatcher,
		Metrics:      ledgerMetrics,
		Logger:       logg,
	})
	requireResource(ctx, logg, "transaction service", err)

	notificationService, err := notifications.NewService(notificationRepo)
	requireResource(ctx, logg, "notification service", err)

	addr := ":" + cfg.App.Port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := api.NewServer(addr, routes.NewRouter(routes.Params{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Sessions:      sessionManager,
		Gatherer:      registry,
		Auth:          authService,
		Users:         userService,
		Transactions:  transactionService,
		Promotions:    promotionService,
		Events:        eventService,
		Notifications: notificationService,
	}))

	if err := api.Serve(ctx, server, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to initialize "+name, err)
	os.Exit(1)
}
