// Package outbox records ledger facts in the writer's transaction so the relay
// can publish them after commit.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

// CurrentVersion is the schema version stamped on new envelopes.
const CurrentVersion = 1

// ActorRef identifies who caused the ledger movement.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Utorid string    `json:"utorid,omitempty"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published verbatim.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DomainEvent is what services hand to Emit. AggregateType may be left empty
// and is then derived from EventType.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type inserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

type Service struct {
	rows inserter
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{rows: repo, logg: logg, now: time.Now}
}

// Emit appends event to the outbox inside tx. Nothing is written unless tx commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("outbox: transaction required")
	}
	row, envelope, err := s.build(event)
	if err != nil {
		return err
	}
	if err := s.rows.Insert(tx, row); err != nil {
		return fmt.Errorf("outbox: insert %s: %w", event.EventType, err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
		}), "outbox.queued")
	}
	return nil
}

func (s *Service) build(event DomainEvent) (models.OutboxEvent, PayloadEnvelope, error) {
	expected, ok := enums.AggregateFor(event.EventType)
	if !ok {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("outbox: unknown event type %q", event.EventType)
	}
	if event.AggregateType == "" {
		event.AggregateType = expected
	}
	if event.AggregateType != expected {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("outbox: %s belongs to %s aggregates, not %s", event.EventType, expected, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("outbox: %s without aggregate id", event.EventType)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("outbox: encode %s data: %w", event.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.Version == 0 {
		envelope.Version = CurrentVersion
	}
	if event.OccurredAt.IsZero() {
		envelope.OccurredAt = s.now().UTC()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, err
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope, nil
}
