package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateTransaction OutboxAggregateType = "transaction"
	AggregateEvent       OutboxAggregateType = "event"
)

// OutboxEventType maps to the event_type enum in Postgres. Analytics routes
// rows by it, so renaming a value is a breaking change for the dataset.
type OutboxEventType string

const (
	EventTransactionRecorded OutboxEventType = "transaction_recorded"
	EventRedemptionProcessed OutboxEventType = "redemption_processed"
	EventSuspiciousToggled   OutboxEventType = "suspicious_toggled"
	EventEventPointsAwarded  OutboxEventType = "event_points_awarded"
)

var (
	aggregateTypes = []OutboxAggregateType{AggregateTransaction, AggregateEvent}
	outboxEvents   = []OutboxEventType{
		EventTransactionRecorded,
		EventRedemptionProcessed,
		EventSuspiciousToggled,
		EventEventPointsAwarded,
	}
)

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

func (e OutboxEventType) IsValid() bool { return slices.Contains(outboxEvents, e) }

// ParseOutboxAggregateType reads the aggregate_type message attribute.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseMember(aggregateTypes, value, "aggregate type")
}

// ParseOutboxEventType reads the event_type message attribute.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseMember(outboxEvents, value, "event type")
}

func parseMember[T ~string](members []T, value, what string) (T, error) {
	if v := T(value); slices.Contains(members, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", what, value)
}

// OutboxDLQErrorReason records why the relay parked an event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: publishing kept failing until attempts ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the row can never be published as stored.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}

// AggregateFor is the aggregate an event type must be stored against.
func AggregateFor(event OutboxEventType) (OutboxAggregateType, bool) {
	switch event {
	case EventTransactionRecorded, EventRedemptionProcessed, EventSuspiciousToggled:
		return AggregateTransaction, true
	case EventEventPointsAwarded:
		return AggregateEvent, true
	}
	return "", false
}
