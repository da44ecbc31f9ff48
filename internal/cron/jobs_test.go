package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/internal/notifications"
	"github.com/angelmondragon/campus-loyalty/internal/testdb"
	"github.com/angelmondragon/campus-loyalty/internal/users"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox"
)

var jobNow = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestNotificationCleanupJobDeletesExpiredInbox(t *testing.T) {
	conn := testdb.Open(t)
	user := testdb.MustCreateUser(t, conn, "inbox001")
	old := seedNotification(t, conn, user.ID, jobNow.Add(-31*24*time.Hour))
	fresh := seedNotification(t, conn, user.ID, jobNow.Add(-29*24*time.Hour))

	job, err := NewNotificationCleanupJob(testLogger(), notifications.NewRepository(conn), 0)
	require.NoError(t, err)
	pinNow(job)

	require.NoError(t, job.Run(context.Background()))
	assert.False(t, exists(t, conn, &models.Notification{}, old))
	assert.True(t, exists(t, conn, &models.Notification{}, fresh))
}

func TestOutboxRetentionJobKeepsPendingEvents(t *testing.T) {
	conn := testdb.Open(t)
	published := jobNow.Add(-40 * 24 * time.Hour)
	recent := jobNow.Add(-time.Hour)
	stale := jobNow.Add(-40 * 24 * time.Hour)

	sent := seedOutbox(t, conn, stale, &published, 1)
	sentRecently := seedOutbox(t, conn, recent, &recent, 1)
	exhausted := seedOutbox(t, conn, stale, nil, 10)
	pending := seedOutbox(t, conn, stale, nil, 2)

	job, err := NewOutboxRetentionJob(testLogger(), OutboxRetentionParams{
		DB:          db.NewFromConn(conn),
		Repository:  outbox.NewRepository(conn),
		MinAttempts: 10,
	})
	require.NoError(t, err)
	pinNow(job)

	require.NoError(t, job.Run(context.Background()))
	assert.False(t, exists(t, conn, &models.OutboxEvent{}, sent))
	assert.False(t, exists(t, conn, &models.OutboxEvent{}, exhausted))
	assert.True(t, exists(t, conn, &models.OutboxEvent{}, sentRecently))
	assert.True(t, exists(t, conn, &models.OutboxEvent{}, pending))
}

func TestResetPurgeJobRemovesInactiveTokens(t *testing.T) {
	conn := testdb.Open(t)
	user := testdb.MustCreateUser(t, conn, "reset001")
	usedAt := jobNow.Add(-48 * time.Hour)

	expired := seedReset(t, conn, user.ID, jobNow.Add(-48*time.Hour), nil)
	consumed := seedReset(t, conn, user.ID, jobNow.Add(time.Hour), &usedAt)
	active := seedReset(t, conn, user.ID, jobNow.Add(time.Hour), nil)

	job, err := NewResetPurgeJob(testLogger(), users.NewResetRepository(conn), 0)
	require.NoError(t, err)
	pinNow(job)

	require.NoError(t, job.Run(context.Background()))
	assert.False(t, exists(t, conn, &models.PasswordReset{}, expired))
	assert.False(t, exists(t, conn, &models.PasswordReset{}, consumed))
	assert.True(t, exists(t, conn, &models.PasswordReset{}, active))
}

func TestJobsPropagateRepositoryErrors(t *testing.T) {
	boom := errors.New("boom")
	notify, err := NewNotificationCleanupJob(testLogger(), failingCleanup{err: boom}, 0)
	require.NoError(t, err)
	purge, err := NewResetPurgeJob(testLogger(), failingCleanup{err: boom}, time.Hour)
	require.NoError(t, err)

	err = notify.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "notification-cleanup")
	assert.ErrorIs(t, purge.Run(context.Background()), boom)
}

func TestJobConstructorsRequireDependencies(t *testing.T) {
	_, err := NewNotificationCleanupJob(testLogger(), nil, 0)
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(testLogger(), OutboxRetentionParams{Repository: outbox.NewRepository(nil)})
	assert.Error(t, err)
	_, err = NewResetPurgeJob(nil, failingCleanup{}, 0)
	assert.Error(t, err)
}

func pinNow(job Job) {
	job.(*sweep).now = func() time.Time { return jobNow }
}

type failingCleanup struct{ err error }

func (f failingCleanup) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, f.err }

func (f failingCleanup) DeleteInactiveBefore(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

func seedNotification(t *testing.T, conn *gorm.DB, userID uuid.UUID, createdAt time.Time) uuid.UUID {
	t.Helper()
	row := &models.Notification{ID: uuid.New(), UserID: userID, Kind: enums.NotificationPurchase, Message: "hi", CreatedAt: createdAt}
	require.NoError(t, conn.Create(row).Error)
	return row.ID
}

func seedOutbox(t *testing.T, conn *gorm.DB, createdAt time.Time, publishedAt *time.Time, attempts int) uuid.UUID {
	t.Helper()
	row := &models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventTransactionRecorded,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		CreatedAt:     createdAt,
		PublishedAt:   publishedAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, conn.Create(row).Error)
	return row.ID
}

func seedReset(t *testing.T, conn *gorm.DB, userID uuid.UUID, expiresAt time.Time, usedAt *time.Time) uuid.UUID {
	t.Helper()
	row := &models.PasswordReset{ID: uuid.New(), UserID: userID, Token: uuid.NewString(), ExpiresAt: expiresAt, UsedAt: usedAt}
	require.NoError(t, conn.Create(row).Error)
	return row.ID
}

func exists(t *testing.T, conn *gorm.DB, model any, id uuid.UUID) bool {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(model).Where("id = ?", id).Count(&count).Error)
	return count > 0
}
