package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/angelmondragon/campus-loyalty/internal/relay"
	"github.com/angelmondragon/campus-loyalty/pkg/instance"
	"github.com/angelmondragon/campus-loyalty/pkg/metrics"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox/registry"
	"github.com/angelmondragon/campus-loyalty/pkg/pubsub"
)

func main() {
	listDLQ := flag.Int("list-dlq", 0, "print the newest N dead-lettered events and exit")
	flag.Parse()

	boot := context.Background()
	w, err := instance.Boot(boot, instance.Options{Kind: "outbox-publisher", WithDB: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer w.Close(boot)

	dlq := outbox.NewDLQRepository(w.DB.DB())
	if *listDLQ > 0 {
		w.Require(boot, "dlq listing", printDLQ(boot, dlq, *listDLQ))
		return
	}

	pubsubClient, err := pubsub.NewClient(boot, w.Config.GCP, w.Config.PubSub, pubsub.NeedLedgerTopic, w.Logger)
	w.Require(boot, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			w.Logger.Error(boot, "error closing pubsub client", err)
		}
	}()
	topics, err := relay.NewPubSubTopics(pubsubClient)
	w.Require(boot, "pubsub topics", err)
	defer topics.Stop()

	eventRegistry, err := registry.NewEventRegistry(w.Config.PubSub)
	w.Require(boot, "event registry", err)

	publisher, err := relay.New(relay.Params{
		Config:      w.Config.Outbox,
		Logger:      w.Logger,
		DB:          w.DB,
		Rows:        outbox.NewRepository(w.DB.DB()),
		DeadLetters: dlq,
		Registry:    eventRegistry,
		Topics:      topics,
		Metrics:     metrics.NewRelayMetrics(w.Registry),
	})
	w.Require(boot, "outbox relay", err)

	ctx, stop := w.Context()
	defer stop()
	w.Logger.Info(ctx, "starting outbox publisher")

	if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.Logger.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	w.Logger.Info(ctx, "outbox publisher shutting down gracefully")
}

func printDLQ(ctx context.Context, repo *outbox.DLQRepository, limit int) error {
	rows, err := repo.Recent(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FAILED_AT\tEVENT_ID\tTYPE\tREASON\tATTEMPTS\tERROR")
	for _, row := range rows {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			row.FailedAt.Format("2006-01-02 15:04:05"), row.EventID, row.EventType, row.ErrorReason, row.AttemptCount, msg)
	}
	return tw.Flush()
}
