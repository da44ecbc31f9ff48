package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/internal/promotions"
	"github.com/angelmondragon/campus-loyalty/internal/testdb"
	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/security"
)

var testPasswordCfg = config.PasswordConfig{
	ArgonMemoryKB:    8 * 1024,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
	ActivationTTL:    7 * 24 * time.Hour,
	ResetTTL:         time.Hour,
}

func newSQLiteService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	svc, err := NewService(ServiceParams{
		Users:       NewRepository(conn),
		Resets:      NewResetRepository(conn),
		Promotions:  promotions.NewRepository(conn),
		UnitOfWork:  db.NewFromConn(conn),
		PasswordCfg: testPasswordCfg,
	})
	require.NoError(t, err)
	return svc, conn
}

func TestRegisterIssuesActivationToken(t *testing.T) {
	svc, conn := newSQLiteService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Utorid: "newuser1", Name: "New User", Email: "new.user@mail.utoronto.ca"})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.NotEmpty(t, res.ResetToken)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), res.ExpiresAt, time.Minute)

	var reset models.PasswordReset
	require.NoError(t, conn.Where("token = ?", res.ResetToken).First(&reset).Error)
	assert.Equal(t, res.ID, reset.UserID)

	_, err = svc.Register(ctx, RegisterInput{Utorid: "newuser1", Name: "Dup", Email: "other@mail.utoronto.ca"})
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	_, err = svc.Register(ctx, RegisterInput{Utorid: "newuser2", Name: "Dup", Email: "NEW.USER@mail.utoronto.ca"})
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestGetShapesViewByRole(t *testing.T) {
	svc, conn := newSQLiteService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := testdb.MustCreateUser(t, conn, "viewed01", testdb.WithPoints(40))
	testdb.MustCreatePromotion(t, conn, enums.PromotionOneTime, now.Add(-time.Hour), now.Add(time.Hour), nil)

	cashierView, err := svc.Get(ctx, user.ID, enums.RoleCashier)
	require.NoError(t, err)
	assert.Empty(t, cashierView.Email)
	assert.Nil(t, cashierView.CreatedAt)
	assert.Equal(t, 40, cashierView.Points)
	assert.Len(t, cashierView.Promotions, 1)

	managerView, err := svc.Get(ctx, user.ID, enums.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, user.Email, managerView.Email)
	assert.Equal(t, enums.RoleRegular, managerView.Role)

	_, err = svc.Get(ctx, uuid.New(), enums.RoleManager)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestUpdateRolePrivileges(t *testing.T) {
	svc, conn := newSQLiteService(t)
	ctx := context.Background()
	user := testdb.MustCreateUser(t, conn, "promote1", testdb.Suspicious())

	manager := enums.RoleManager
	_, err := svc.Update(ctx, user.ID, UpdateInput{Role: &manager}, enums.RoleManager)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	cashier := enums.RoleCashier
	out, err := svc.Update(ctx, user.ID, UpdateInput{Role: &cashier}, enums.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleCashier, out["role"])
	assert.Equal(t, false, out["suspicious"])
	assert.NotContains(t, out, "email")

	out, err = svc.Update(ctx, user.ID, UpdateInput{Role: &manager}, enums.RoleSuperuser)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleManager, out["role"])

	notVerified := false
	_, err = svc.Update(ctx, user.ID, UpdateInput{Verified: &notVerified}, enums.RoleManager)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = svc.Update(ctx, user.ID, UpdateInput{}, enums.RoleManager)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestUpdateEmailConflict(t *testing.T) {
	svc, conn := newSQLiteService(t)
	ctx := context.Background()
	first := testdb.MustCreateUser(t, conn, "emailer1")
	second := testdb.MustCreateUser(t, conn, "emailer2")

	_, err := svc.Update(ctx, second.ID, UpdateInput{Email: &first.Email}, enums.RoleManager)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestListFilters(t *testing.T) {
	svc, conn := newSQLiteService(t)
	ctx := context.Background()
	testdb.MustCreateUser(t, conn, "alpha001")
	testdb.MustCreateUser(t, conn, "beta0001", testdb.WithRole(enums.RoleCashier))
	testdb.MustCreateUser(t, conn, "gamma001", testdb.Unverified())

	page, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Count)

	cashier := enums.RoleCashier
	page, err = svc.List(ctx, ListFilter{Role: &cashier})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Count)
	assert.Equal(t, "beta0001", page.Results[0].Utorid)

	page, err = svc.List(ctx, ListFilter{Name: "ALPHA"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Count)

	verified := false
	page, err = svc.List(ctx, ListFilter{Verified: &verified})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Count)

	page, err = svc.List(ctx, ListFilter{Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Count)
	assert.Len(t, page.Results, 1)
}

func TestUpdateMeAndChangePassword(t *testing.T) {
	svc, conn := newSQLiteService(t)
	ctx := context.Background()

	hash, err := security.HashPassword("Original1!", testPasswordCfg)
	require.NoError(t, err)
	user := testdb.MustCreateUser(t, conn, "profile1", testdb.WithPasswordHash(hash))

	badDate := "2001-02-30"
	_, err = svc.UpdateMe(ctx, user.ID, ProfileInput{Birthday: &badDate})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	name, birthday := "Renamed", "2001-02-03"
	dto, err := svc.UpdateMe(ctx, user.ID, ProfileInput{Name: &name, Birthday: &birthday})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", dto.Name)
	require.NotNil(t, dto.Birthday)
	assert.Equal(t, birthday, *dto.Birthday)

	err = svc.ChangePassword(ctx, user.ID, "Wrong111!", "Updated1!")
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	err = svc.ChangePassword(ctx, user.ID, "Original1!", "weak")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "Original1!", "Updated1!"))
	var reloaded models.User
	require.NoError(t, conn.First(&reloaded, "id = ?", user.ID).Error)
	ok, err := security.VerifyPassword("Updated1!", *reloaded.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}
