package users

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/internal/testdb"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
)

func TestApplyDeltaRejectsNegativeBalance(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	user := testdb.MustCreateUser(t, conn, "balance1", testdb.WithPoints(50))

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := repo.ApplyDelta(tx, user.ID, -51)
		return err
	})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Equal(t, 50, testdb.Points(t, conn, user.ID))

	var balance int
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = repo.ApplyDelta(tx, user.ID, -50)
		return err
	}))
	assert.Equal(t, 0, balance)
	assert.Equal(t, 0, testdb.Points(t, conn, user.ID))
}

func TestLockByIDsReportsMissingUsers(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	a := testdb.MustCreateUser(t, conn, "lockera1")
	b := testdb.MustCreateUser(t, conn, "lockerb1")

	locked, err := repo.LockByIDs(conn, b.ID, a.ID, a.ID)
	require.NoError(t, err)
	assert.Len(t, locked, 2)

	_, err = repo.LockByIDs(conn, a.ID, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpdatesRefusesPoints(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	user := testdb.MustCreateUser(t, conn, "nopoint1")

	err := repo.Updates(t.Context(), user.ID, map[string]any{"points": 1000})
	assert.Error(t, err)
	assert.Equal(t, 0, testdb.Points(t, conn, user.ID))
}

func TestUniqueSortedOrdersIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	out := uniqueSorted([]uuid.UUID{a, b, a})
	require.Len(t, out, 2)
	assert.True(t, out[0].String() < out[1].String())
}
