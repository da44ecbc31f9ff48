package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// MaxOutboxErrorLen caps stored error text; pubsub errors can embed whole responses.
const MaxOutboxErrorLen = 1024

// OutboxEvent is a ledger fact written in the same transaction as the change
// it describes, waiting for the relay to hand it to Pub/Sub.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// Lag is how long the event has been waiting since it was committed.
func (e OutboxEvent) Lag(now time.Time) time.Duration {
	if e.CreatedAt.IsZero() || now.Before(e.CreatedAt) {
		return 0
	}
	return now.Sub(e.CreatedAt)
}

// OutboxDLQ is a parked copy of an event the relay stopped retrying.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	EventID       uuid.UUID                  `gorm:"column:event_id;type:uuid;not null;uniqueIndex"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;not null"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;not null"`
	AggregateID   uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;not null"`
	ErrorMessage  *string                    `gorm:"column:error_message"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0"`
	FailedAt      time.Time                  `gorm:"column:failed_at"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }

// DeadLetter snapshots e for the DLQ. The message of cause is truncated to MaxOutboxErrorLen.
func (e OutboxEvent) DeadLetter(reason enums.OutboxDLQErrorReason, cause error, at time.Time) OutboxDLQ {
	entry := OutboxDLQ{
		ID:            uuid.New(),
		EventID:       e.ID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       e.Payload,
		ErrorReason:   reason,
		AttemptCount:  e.AttemptCount,
		FailedAt:      at.UTC(),
	}
	if cause != nil {
		msg := TruncateError(cause)
		entry.ErrorMessage = &msg
	}
	return entry
}

// TruncateError returns err's text bounded to MaxOutboxErrorLen bytes.
func TruncateError(err error) string {
	msg := err.Error()
	if len(msg) > MaxOutboxErrorLen {
		return msg[:MaxOutboxErrorLen]
	}
	return msg
}
