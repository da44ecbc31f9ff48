package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/angelmondragon/campus-loyalty/internal/cron"
	"github.com/angelmondragon/campus-loyalty/internal/notifications"
	"github.com/angelmondragon/campus-loyalty/internal/users"
	"github.com/angelmondragon/campus-loyalty/pkg/instance"
	"github.com/angelmondragon/campus-loyalty/pkg/metrics"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox"
	"github.com/angelmondragon/campus-loyalty/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	only := flag.String("jobs", "", "comma-separated job names to run with -once")
	flag.Parse()

	boot := context.Background()
	w, err := instance.Boot(boot, instance.Options{Kind: "cron-worker", WithDB: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer w.Close(boot)
	cfg := w.Config

	redisClient, err := redis.New(boot, cfg.Redis, w.Logger)
	w.Require(boot, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			w.Logger.Error(boot, "error closing redis", err)
		}
	}()

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+env), cfg.Cron.LockTTL, w.ID)
	w.Require(boot, "cron lock", err)

	registry, err := buildRegistry(w)
	w.Require(boot, "cron jobs", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   w.Logger,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(w.Registry),
		Interval: cfg.Cron.Interval,
	})
	w.Require(boot, "cron service", err)

	ctx, stop := w.Context()
	defer stop()

	if *once {
		var names []string
		if *only != "" {
			names = strings.Split(*only, ",")
		}
		if err := service.RunOnce(ctx, names...); err != nil {
			w.Logger.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	w.Logger.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.Logger.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	w.Logger.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(w *instance.Worker) (*cron.Registry, error) {
	cfg, conn := w.Config, w.DB.DB()
	notificationJob, err := cron.NewNotificationCleanupJob(w.Logger, notifications.NewRepository(conn), cfg.Notifications.RetentionDays)
	if err != nil {
		return nil, err
	}
	outboxJob, err := cron.NewOutboxRetentionJob(w.Logger, cron.OutboxRetentionParams{
		DB:            w.DB,
		Repository:    outbox.NewRepository(conn),
		RetentionDays: cfg.Outbox.RetentionDays,
		MinAttempts:   cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	resetJob, err := cron.NewResetPurgeJob(w.Logger, users.NewResetRepository(conn), 0)
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(notificationJob, outboxJob, resetJob)
}
