package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/angelmondragon/campus-loyalty/internal/analytics/router"
	"github.com/angelmondragon/campus-loyalty/internal/analytics/types"
	"github.com/angelmondragon/campus-loyalty/internal/analytics/worker"
	"github.com/angelmondragon/campus-loyalty/internal/analytics/writer"
	"github.com/angelmondragon/campus-loyalty/pkg/bigquery"
	"github.com/angelmondragon/campus-loyalty/pkg/instance"
	"github.com/angelmondragon/campus-loyalty/pkg/metrics"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox/idempotency"
	"github.com/angelmondragon/campus-loyalty/pkg/pubsub"
	"github.com/angelmondragon/campus-loyalty/pkg/redis"
)

func main() {
	boot := context.Background()
	w, err := instance.Boot(boot, instance.Options{Kind: "analytics-worker"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := w.Config

	redisClient, err := redis.New(boot, cfg.Redis, w.Logger)
	w.Require(boot, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			w.Logger.Error(boot, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, pubsub.NeedAnalyticsSubscription, w.Logger)
	w.Require(boot, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			w.Logger.Error(boot, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(boot, cfg.GCP, cfg.BigQuery, w.Logger)
	w.Require(boot, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			w.Logger.Error(boot, "failed to close bigquery client", err)
		}
	}()
	err = bqClient.EnsureTable(boot, bqClient.LedgerTable(), types.LedgerSchema(), "occurred_at", cfg.FeatureFlags.AutoMigrate)
	w.Require(boot, "ledger table", err)

	marks, err := idempotency.NewMarks(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	w.Require(boot, "idempotency manager", err)

	ledgerWriter, err := writer.New(bqClient, writer.Config{LedgerTable: bqClient.LedgerTable()})
	w.Require(boot, "ledger bigquery writer", err)

	routes, err := router.NewRouter(ledgerWriter, w.Logger)
	w.Require(boot, "analytics router", err)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		w.Require(boot, "analytics subscription", errors.New("subscription not configured"))
	}
	consumer, err := worker.NewConsumer(worker.Params{
		Subscription: subscription,
		Handler:      routes,
		Marks:        marks,
		Logger:       w.Logger,
		Metrics:      metrics.NewAnalyticsMetrics(w.Registry),
	})
	w.Require(boot, "analytics consumer", err)

	ctx, stop := w.Context()
	defer stop()
	w.Logger.Info(ctx, "analytics worker ready")

	runErr := consumer.Run(ctx)
	if err := ledgerWriter.Flush(context.WithoutCancel(ctx)); err != nil {
		w.Logger.Error(ctx, "failed to flush buffered ledger rows", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		w.Logger.Error(ctx, "analytics worker failed", runErr)
		os.Exit(1)
	}
}
