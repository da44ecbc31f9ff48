package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/campus-loyalty/internal/analytics/types"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox/payloads"
)

type fakeWriter struct {
	rows []types.LedgerRow
}

func (f *fakeWriter) InsertLedger(_ context.Context, row types.LedgerRow) error {
	f.rows = append(f.rows, row)
	return nil
}

func newTestRouter(t *testing.T) (*Router, *fakeWriter) {
	t.Helper()
	w := &fakeWriter{}
	r, err := NewRouter(w, logger.New(logger.Options{ServiceName: "router-test"}))
	require.NoError(t, err)
	return r, w
}

func TestRouterWritesTransactionRow(t *testing.T) {
	r, w := newTestRouter(t)
	related := uuid.New()
	promo := uuid.New()
	spent := "19.99"
	event := payloads.LedgerTransactionEvent{
		TransactionID: uuid.New(),
		UserID:        uuid.New(),
		Utorid:        "johndoe1",
		Type:          enums.TransactionPurchase,
		Amount:        80,
		Applied:       80,
		Spent:         &spent,
		RelatedID:     &related,
		PromotionIDs:  []uuid.UUID{promo},
	}
	actor := &outbox.ActorRef{UserID: uuid.New(), Role: "cashier"}

	require.NoError(t, r.Handle(context.Background(), envelope(t, enums.EventTransactionRecorded, 1, actor, event)))
	require.Len(t, w.rows, 1)
	row := w.rows[0]
	assert.Equal(t, "transaction_recorded", row.EventType)
	assert.Equal(t, event.TransactionID.String(), *row.TransactionID)
	assert.Equal(t, "johndoe1", *row.Utorid)
	assert.Equal(t, "purchase", *row.Type)
	assert.EqualValues(t, 80, *row.Applied)
	assert.Equal(t, "19.99", *row.Spent)
	assert.Equal(t, related.String(), *row.RelatedID)
	assert.Equal(t, []string{promo.String()}, row.PromotionIDs)
	assert.Equal(t, "cashier", *row.ActorRole)
	assert.True(t, row.Payload.Valid)
}

func TestRouterWritesAwardSummary(t *testing.T) {
	r, w := newTestRouter(t)
	event := payloads.EventPointsAwardedEvent{EventID: uuid.New(), PerGuest: 5, Total: 15, PointsAwarded: 15, PointsRemained: 85}

	require.NoError(t, r.Handle(context.Background(), envelope(t, enums.EventEventPointsAwarded, 1, nil, event)))
	require.Len(t, w.rows, 1)
	row := w.rows[0]
	assert.Nil(t, row.TransactionID)
	assert.Equal(t, event.EventID.String(), *row.LoyaltyEvent)
	assert.EqualValues(t, 5, *row.Amount)
	assert.EqualValues(t, 15, *row.Applied)
	assert.Nil(t, row.ActorID)
}

func TestRouterRejectsUnknownVersionsAndTypes(t *testing.T) {
	r, w := newTestRouter(t)

	err := r.Handle(context.Background(), envelope(t, enums.EventTransactionRecorded, 2, nil, payloads.LedgerTransactionEvent{}))
	assert.True(t, errors.Is(err, ErrUnsupportedEventType), "got %v", err)

	err = r.Handle(context.Background(), types.Envelope{EventType: "order_created", PayloadEnvelope: outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}})
	assert.True(t, errors.Is(err, ErrUnsupportedEventType), "got %v", err)

	err = r.Handle(context.Background(), types.Envelope{EventType: enums.EventSuspiciousToggled, PayloadEnvelope: outbox.PayloadEnvelope{Data: json.RawMessage(`{"amount":"x"}`)}})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupportedEventType))
	assert.Empty(t, w.rows)
}

func envelope(t *testing.T, eventType enums.OutboxEventType, version int, actor *outbox.ActorRef, payload any) types.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return types.Envelope{
		PayloadEnvelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			Version:    version,
			OccurredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			Actor:      actor,
			Data:       raw,
		},
		EventType: eventType,
	}
}
