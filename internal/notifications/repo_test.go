package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/campus-loyalty/internal/testdb"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

func seedNotification(t *testing.T, repo Repository, userID uuid.UUID, msg string, at time.Time) *models.Notification {
	t.Helper()
	n := &models.Notification{UserID: userID, Kind: enums.NotificationPurchase, Message: msg, CreatedAt: at}
	require.NoError(t, repo.Create(context.Background(), n))
	return n
}

func TestInboxListNewestFirstAndUnreadFilter(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := testdb.MustCreateUser(t, conn, "owner01")
	other := testdb.MustCreateUser(t, conn, "other01")
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	older := seedNotification(t, repo, owner.ID, "first", base)
	seedNotification(t, repo, owner.ID, "second", base.Add(time.Minute))
	seedNotification(t, repo, other.ID, "elsewhere", base)

	rows, total, err := repo.List(ctx, inboxQuery{UserID: owner.ID, Page: pagination.Params{Page: 1, Limit: 10}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "second", rows[0].Message)

	found, err := repo.MarkRead(ctx, owner.ID, older.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, found)

	rows, total, err = repo.List(ctx, inboxQuery{UserID: owner.ID, UnreadOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "second", rows[0].Message)
}

func TestInboxMarkReadScopedToOwner(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := testdb.MustCreateUser(t, conn, "owner02")
	intruder := testdb.MustCreateUser(t, conn, "intrud02")
	at := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	n := seedNotification(t, repo, owner.ID, "hello", at)

	found, err := repo.MarkRead(ctx, intruder.ID, n.ID, at)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.MarkRead(ctx, owner.ID, uuid.New(), at)
	require.NoError(t, err)
	assert.False(t, found)

	first := at.Add(time.Minute)
	found, err = repo.MarkRead(ctx, owner.ID, n.ID, first)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.MarkRead(ctx, owner.ID, n.ID, first.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, found, "re-marking an entry still reports it as found")

	var stored models.Notification
	require.NoError(t, conn.First(&stored, "id = ?", n.ID).Error)
	require.NotNil(t, stored.ReadAt)
	assert.True(t, stored.ReadAt.Equal(first))
}

func TestInboxMarkAllReadAndRetention(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := testdb.MustCreateUser(t, conn, "owner03")
	base := time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC)

	seedNotification(t, repo, owner.ID, "old", base.Add(-48*time.Hour))
	seedNotification(t, repo, owner.ID, "new", base)

	updated, err := repo.MarkAllRead(ctx, owner.ID, base)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)

	updated, err = repo.MarkAllRead(ctx, owner.ID, base)
	require.NoError(t, err)
	assert.Zero(t, updated)

	removed, err := repo.DeleteOlderThan(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, total, err := repo.List(ctx, inboxQuery{UserID: owner.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}
