// Package worker consumes the ledger topic and feeds each event to the
// analytics router at most once per event id.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/internal/analytics/router"
	"github.com/angelmondragon/campus-loyalty/internal/analytics/types"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox"
)

const consumerName = "analytics"

type outcome string

const (
	outcomeRecorded  outcome = "recorded"
	outcomeDuplicate outcome = "duplicate"
	outcomeSkipped   outcome = "skipped"
	outcomeInvalid   outcome = "invalid"
	outcomeRetried   outcome = "retried"
)

// ack reports whether the message is done with.
func (o outcome) ack() bool { return o != outcomeRetried }

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type processedMarks interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type messageMetrics interface {
	RecordMessage(eventType, outcome string)
}

type Params struct {
	Subscription receiver
	Handler      Handler
	Marks        processedMarks
	Logger       *logger.Logger
	Metrics      messageMetrics
}

type Consumer struct {
	sub     receiver
	handler Handler
	marks   processedMarks
	logg    *logger.Logger
	metrics messageMetrics
}

func NewConsumer(p Params) (*Consumer, error) {
	switch {
	case p.Subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case p.Handler == nil:
		return nil, errors.New("analytics handler is required")
	case p.Marks == nil:
		return nil, errors.New("idempotency manager is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Consumer{sub: p.Subscription, handler: p.Handler, marks: p.Marks, logg: p.Logger, metrics: p.Metrics}, nil
}

// Run receives until ctx ends. Invalid and unsupported messages are acked so
// they do not redeliver forever; store and handler failures are nacked.
func (c *Consumer) Run(ctx context.Context) error {
	return c.sub.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if c.process(msgCtx, msg).ack() {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) (result outcome) {
	ctx = c.logg.WithField(ctx, "message_id", msg.ID)
	eventType := msg.Attributes["event_type"]
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordMessage(eventType, string(result))
		}
	}()

	env, err := decode(msg)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "analytics.invalid_message")
		return outcomeInvalid
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   string(env.EventType),
		"aggregate_id": env.AggregateID,
	})
	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		c.logg.Warn(ctx, "analytics.invalid_event_id")
		return outcomeInvalid
	}

	seen, err := c.marks.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(ctx, "analytics.idempotency_failed", err)
		return outcomeRetried
	}
	if seen {
		return outcomeDuplicate
	}

	err = c.handler.Handle(ctx, *env)
	switch {
	case err == nil:
		return outcomeRecorded
	case errors.Is(err, router.ErrUnsupportedEventType):
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "analytics.event_skipped")
		return outcomeSkipped
	default:
		c.logg.Error(ctx, "analytics.handler_failed", err)
		if delErr := c.marks.Delete(context.WithoutCancel(ctx), consumerName, eventID); delErr != nil {
			c.logg.Error(ctx, "analytics.unmark_failed", delErr)
		}
		return outcomeRetried
	}
}

// decode combines the stored envelope in the body with the routing
// attributes the relay sets. Body fields win; attributes fill gaps.
func decode(msg *gcppubsub.Message) (*types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	attr := func(key string) string { return strings.TrimSpace(msg.Attributes[key]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = attr("event_id")
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attr("occurred_at")); err == nil {
			occurredAt = parsed
		}
	}

	stored.EventID = eventID
	stored.OccurredAt = occurredAt.UTC()
	return &types.Envelope{
		PayloadEnvelope: stored,
		EventType:       eventType,
		AggregateType:   aggregateType,
		AggregateID:     aggregateID,
	}, nil
}
