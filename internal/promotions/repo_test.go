package promotions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/campus-loyalty/internal/testdb"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

func TestRepositoryActiveLookups(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	user := testdb.MustCreateUser(t, conn, "lookup01")
	auto := testdb.MustCreatePromotion(t, conn, enums.PromotionAutomatic, now.Add(-time.Hour), now.Add(time.Hour), nil)
	testdb.MustCreatePromotion(t, conn, enums.PromotionAutomatic, now.Add(time.Hour), now.Add(2*time.Hour), nil)
	oneTime := testdb.MustCreatePromotion(t, conn, enums.PromotionOneTime, now.Add(-time.Hour), now.Add(time.Hour), nil)
	usedOneTime := testdb.MustCreatePromotion(t, conn, enums.PromotionOneTime, now.Add(-time.Hour), now.Add(time.Hour), nil)
	require.NoError(t, repo.RecordUsageWithTx(conn, usedOneTime.ID, user.ID))

	active, err := repo.ListActiveAutomaticWithTx(conn, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, auto.ID, active[0].ID)

	available, err := repo.ListAvailableOneTime(ctx, user.ID, now)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, oneTime.ID, available[0].ID)

	used, err := repo.HasUsed(ctx, user.ID, usedOneTime.ID)
	require.NoError(t, err)
	assert.True(t, used)

	assert.Error(t, repo.RecordUsageWithTx(conn, usedOneTime.ID, user.ID), "second use must violate the pair key")

	found, err := repo.FindByIDsWithTx(conn, []uuid.UUID{auto.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestRepositoryListScopesCustomers(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	user := testdb.MustCreateUser(t, conn, "listing1")
	testdb.MustCreatePromotion(t, conn, enums.PromotionAutomatic, now.Add(-time.Hour), now.Add(time.Hour), nil)
	testdb.MustCreatePromotion(t, conn, enums.PromotionAutomatic, now.Add(-3*time.Hour), now.Add(-time.Hour), nil)
	used := testdb.MustCreatePromotion(t, conn, enums.PromotionOneTime, now.Add(-time.Hour), now.Add(time.Hour), nil)
	require.NoError(t, repo.RecordUsageWithTx(conn, used.ID, user.ID))

	rows, count, err := repo.List(ctx, ListFilter{}, Viewer{UserID: user.ID, Role: enums.RoleRegular}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Len(t, rows, 1)

	ended := true
	rows, count, err = repo.List(ctx, ListFilter{Ended: &ended}, Viewer{Role: enums.RoleManager}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Len(t, rows, 1)

	_, count, err = repo.List(ctx, ListFilter{}, Viewer{Role: enums.RoleManager}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}
