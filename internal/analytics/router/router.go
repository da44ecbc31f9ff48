package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/campus-loyalty/internal/analytics/types"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox/payloads"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertLedger(ctx context.Context, row types.LedgerRow) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// Router decodes ledger envelopes by type and version and dispatches them.
type Router struct {
	decoders *registry.Decoders
	handlers map[enums.OutboxEventType]Handler
	logg     *logger.Logger
}

// NewRouter registers the v1 ledger payload decoders and their handlers.
func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	decoders := registry.NewDecoders()
	handlers := map[enums.OutboxEventType]Handler{}

	ledger := &transactionHandler{writer: writer}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventTransactionRecorded,
		enums.EventRedemptionProcessed,
		enums.EventSuspiciousToggled,
	} {
		if err := decoders.Add(eventType, 1, registry.JSON[payloads.LedgerTransactionEvent]()); err != nil {
			return nil, err
		}
		handlers[eventType] = ledger
	}
	if err := decoders.Add(enums.EventEventPointsAwarded, 1, registry.JSON[payloads.EventPointsAwardedEvent]()); err != nil {
		return nil, err
	}
	handlers[enums.EventEventPointsAwarded] = &awardHandler{writer: writer}

	return &Router{decoders: decoders, handlers: handlers, logg: logg}, nil
}

// Handle dispatches the incoming envelope to the handler for its event type.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload, err := r.decoders.Decode(envelope.EventType, envelope.Version, envelope.Data)
	if errors.Is(err, registry.ErrDecoderNotRegistered) {
		return fmt.Errorf("%w: %v", ErrUnsupportedEventType, err)
	}
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return handler.Handle(ctx, envelope, payload)
}
