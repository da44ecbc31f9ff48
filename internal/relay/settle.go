package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox/registry"
)

type outcome string

const (
	outcomePublished    outcome = "published"
	outcomeRetried      outcome = "retried"
	outcomeDeadLettered outcome = "dead_lettered"
)

// flight is one row between launch and settle. Exactly one of resolveErr and
// result is set.
type flight struct {
	row        models.OutboxEvent
	resolved   *registry.ResolvedEvent
	resolveErr error
	result     Result
}

func (r *Relay) launch(ctx context.Context, row models.OutboxEvent) flight {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return flight{row: row, resolveErr: err}
	}
	topic := resolved.Descriptor.Topic
	result := r.topics.Publish(ctx, topic, message(row, resolved))
	if result == nil {
		return flight{row: row, resolved: resolved, resolveErr: registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))}
	}
	return flight{row: row, resolved: resolved, result: result}
}

func message(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"schema_version": fmt.Sprint(resolved.Envelope.Version),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if actor := resolved.Envelope.Actor; actor != nil && actor.Utorid != "" {
		attrs["actor_utorid"] = actor.Utorid
	}
	return &gcppubsub.Message{Data: row.Payload, Attributes: attrs}
}

// settle waits for the publish result and records it on the row.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, f flight) (outcome, error) {
	row := f.row
	err := f.resolveErr
	if err == nil {
		_, err = f.result.Get(ctx)
	}

	if err == nil {
		if markErr := r.rows.MarkPublished(tx, row.ID, r.now().UTC()); markErr != nil {
			return "", fmt.Errorf("mark published %s: %w", row.ID, markErr)
		}
		r.metrics.ObservePublishLag(row.Lag(r.now()))
		r.metrics.RecordOutcome(string(row.EventType), string(outcomePublished))
		return outcomePublished, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		return r.park(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	if row.AttemptCount+1 >= r.maxAttempts {
		return r.park(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err))
	}

	ctx = r.logg.WithFields(ctx, rowFields(row))
	r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox.publish_retry")
	if markErr := r.rows.RecordFailure(tx, row.ID, err); markErr != nil {
		return "", fmt.Errorf("mark failed %s: %w", row.ID, markErr)
	}
	r.metrics.RecordOutcome(string(row.EventType), string(outcomeRetried))
	return outcomeRetried, nil
}

func (r *Relay) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) (outcome, error) {
	fields := rowFields(row)
	fields["dlq_reason"] = string(reason)
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.dead_lettered")

	if err := r.dlq.ParkTx(tx, row, reason, cause, r.now()); err != nil {
		return "", fmt.Errorf("park %s: %w", row.ID, err)
	}
	if err := r.rows.Exhaust(tx, row.ID, cause, r.maxAttempts); err != nil {
		return "", fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	r.metrics.RecordOutcome(string(row.EventType), string(outcomeDeadLettered))
	return outcomeDeadLettered, nil
}

func rowFields(row models.OutboxEvent) map[string]any {
	return map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
}
