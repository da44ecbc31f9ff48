package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and what it is stored against.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation, with its payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry knows every ledger event the relay may publish.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	decoders *Decoders
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry routes every ledger event to cfg.LedgerTopic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.LedgerTopic == "" {
		return nil, errors.New("ledger topic is required")
	}
	reg := &EventRegistry{
		entries:  map[enums.OutboxEventType]EventDescriptor{},
		decoders: NewDecoders(),
	}
	add := func(eventType enums.OutboxEventType, decode DecodeFunc) error {
		aggregate, ok := enums.AggregateFor(eventType)
		if !ok {
			return fmt.Errorf("no aggregate mapping for %s", eventType)
		}
		reg.entries[eventType] = EventDescriptor{EventType: eventType, AggregateType: aggregate, Topic: cfg.LedgerTopic}
		return reg.decoders.Add(eventType, 1, decode)
	}

	ledger := JSON[payloads.LedgerTransactionEvent]()
	for _, eventType := range []enums.OutboxEventType{
		enums.EventTransactionRecorded,
		enums.EventRedemptionProcessed,
		enums.EventSuspiciousToggled,
	} {
		if err := add(eventType, ledger); err != nil {
			return nil, err
		}
	}
	if err := add(enums.EventEventPointsAwarded, JSON[payloads.EventPointsAwardedEvent]()); err != nil {
		return nil, err
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload. Every
// failure here is non-retryable: the stored row will never get better.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: %s rows belong to %s, got %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("%s envelope has no data", event.EventType))
	}

	payload, err := r.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
