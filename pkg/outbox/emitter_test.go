package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

func TestEmitWritesEnvelopeInsideTx(t *testing.T) {
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)
	fixed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	txID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Utorid: "cashier1", Role: "cashier"}
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:   enums.EventTransactionRecorded,
			AggregateID: txID,
			Actor:       actor,
			Data:        map[string]int{"amount": 40},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.AggregateTransaction, rows[0].AggregateType)
	assert.Equal(t, txID, rows[0].AggregateID)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	assert.Equal(t, CurrentVersion, env.Version)
	assert.True(t, env.OccurredAt.Equal(fixed))
	assert.Equal(t, "cashier1", env.Actor.Utorid)
	assert.JSONEq(t, `{"amount":40}`, string(env.Data))
}

func TestEmitRolledBackWithCaller(t *testing.T) {
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	_ = conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:   enums.EventEventPointsAwarded,
			AggregateID: uuid.New(),
			Data:        struct{}{},
		}))
		return assert.AnError
	})

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	cases := map[string]DomainEvent{
		"unknown type":       {EventType: "order_created", AggregateID: uuid.New()},
		"aggregate mismatch": {EventType: enums.EventSuspiciousToggled, AggregateType: enums.AggregateEvent, AggregateID: uuid.New()},
		"no aggregate id":    {EventType: enums.EventRedemptionProcessed},
		"unencodable data":   {EventType: enums.EventRedemptionProcessed, AggregateID: uuid.New(), Data: make(chan int)},
	}
	for name, event := range cases {
		assert.Error(t, svc.Emit(ctx, conn, event), name)
	}
	assert.Error(t, svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventRedemptionProcessed, AggregateID: uuid.New()}))
}

func TestDLQParkAndRecent(t *testing.T) {
	conn := newOutboxDB(t)
	repo := NewDLQRepository(conn)
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventTransactionRecorded,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		AttemptCount:  4,
	}
	long := make([]byte, models.MaxOutboxErrorLen+50)
	for i := range long {
		long[i] = 'x'
	}

	require.NoError(t, repo.ParkTx(conn, row, enums.OutboxDLQReasonMaxAttempts, errorString(long), time.Now()))
	assert.Error(t, repo.ParkTx(conn, row, "bored", nil, time.Now()))
	assert.Error(t, repo.ParkTx(nil, row, enums.OutboxDLQReasonMaxAttempts, nil, time.Now()))

	parked, err := repo.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, row.ID, parked[0].EventID)
	assert.Equal(t, 4, parked[0].AttemptCount)
	assert.Len(t, *parked[0].ErrorMessage, models.MaxOutboxErrorLen)
}

type errorString string

func (e errorString) Error() string { return string(e) }
