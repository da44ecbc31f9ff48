package events

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/internal/testdb"
	"github.com/angelmondragon/campus-loyalty/internal/users"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

type recordingSink struct {
	mu    sync.Mutex
	users []uuid.UUID
}

func (r *recordingSink) Notify(_ context.Context, userID uuid.UUID, _ enums.NotificationKind, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

func newTestService(t *testing.T) (Service, *gorm.DB, *recordingSink) {
	t.Helper()
	conn := testdb.Open(t)
	sink := &recordingSink{}
	svc, err := NewService(ServiceParams{
		Events:     NewRepository(conn),
		Users:      users.NewRepository(conn),
		UnitOfWork: db.NewFromConn(conn),
		Sink:       sink,
		Logger:     logger.New(logger.Options{ServiceName: "events-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc, conn, sink
}

type guestListDown struct {
	*Repository
}

func (guestListDown) ListGuestIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, errors.New("connection reset")
}

func TestUpdateLogsGuestNotificationFailure(t *testing.T) {
	conn := testdb.Open(t)
	var logs bytes.Buffer
	sink := &recordingSink{}
	svc, err := NewService(ServiceParams{
		Events:     guestListDown{NewRepository(conn)},
		Users:      users.NewRepository(conn),
		UnitOfWork: db.NewFromConn(conn),
		Sink:       sink,
		Logger:     logger.New(logger.Options{ServiceName: "events-test", Output: &logs}),
	})
	require.NoError(t, err)
	event := testdb.MustCreateEvent(t, conn, 100, 0, nil)
	guest := testdb.MustCreateUser(t, conn, "guest001")
	testdb.MustAddGuest(t, conn, event.ID, guest.ID)

	name := "Renamed"
	res, err := svc.Update(context.Background(), event.ID, UpdateInput{Name: &name}, manager())
	require.NoError(t, err)
	assert.Equal(t, "Renamed", res["name"])
	assert.Empty(t, sink.users)
	assert.Contains(t, logs.String(), "list guests to notify")
	assert.Contains(t, logs.String(), "connection reset")
	assert.Contains(t, logs.String(), event.ID.String())
}

func manager() Viewer { return Viewer{UserID: uuid.New(), Role: enums.RoleManager} }

func intPtr(v int) *int { return &v }

func TestCreateValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	start := time.Now().Add(time.Hour)

	cases := map[string]CreateInput{
		"missing location": {Name: "n", Description: "d", StartTime: start, EndTime: start.Add(time.Hour)},
		"start in past":    {Name: "n", Description: "d", Location: "l", StartTime: time.Now().Add(-time.Hour), EndTime: start},
		"end before start": {Name: "n", Description: "d", Location: "l", StartTime: start, EndTime: start.Add(-time.Minute)},
		"zero capacity":    {Name: "n", Description: "d", Location: "l", StartTime: start, EndTime: start.Add(time.Hour), Capacity: intPtr(0)},
		"negative points":  {Name: "n", Description: "d", Location: "l", StartTime: start, EndTime: start.Add(time.Hour), Points: -1},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, input)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	dto, err := svc.Create(ctx, CreateInput{Name: "Games", Description: "Board games", Location: "BA", StartTime: start, EndTime: start.Add(time.Hour), Points: 500})
	require.NoError(t, err)
	require.NotNil(t, dto.PointsRemain)
	assert.Equal(t, 500, *dto.PointsRemain)
	assert.False(t, *dto.Published)
}

func TestGetHidesUnpublishedFromRegularUsers(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	event := testdb.MustCreateEvent(t, conn, 100, 0, func(e *models.Event) { e.Published = false })
	regular := testdb.MustCreateUser(t, conn, "regular1")
	organizer := testdb.MustCreateUser(t, conn, "organiz1")
	testdb.MustAddOrganizer(t, conn, event.ID, organizer.ID)

	_, err := svc.Get(ctx, event.ID, Viewer{UserID: regular.ID, Role: enums.RoleRegular})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	dto, err := svc.Get(ctx, event.ID, Viewer{UserID: organizer.ID, Role: enums.RoleRegular})
	require.NoError(t, err)
	require.NotNil(t, dto.PointsRemain)
	assert.Equal(t, 100, *dto.PointsRemain)
	require.Len(t, dto.Organizers, 1)
	assert.Equal(t, "organiz1", dto.Organizers[0].Utorid)
}

func TestGetPublicViewOmitsBudget(t *testing.T) {
	svc, conn, _ := newTestService(t)
	event := testdb.MustCreateEvent(t, conn, 100, 20, nil)
	regular := testdb.MustCreateUser(t, conn, "regular1")
	testdb.MustAddGuest(t, conn, event.ID, regular.ID)

	dto, err := svc.Get(context.Background(), event.ID, Viewer{UserID: regular.ID, Role: enums.RoleRegular})
	require.NoError(t, err)
	assert.Nil(t, dto.PointsRemain)
	assert.Nil(t, dto.Guests)
	assert.EqualValues(t, 1, dto.NumGuests)
}

func TestListFiltersAndScoping(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	testdb.MustCreateEvent(t, conn, 0, 0, func(e *models.Event) { e.Name = "Open house" })
	testdb.MustCreateEvent(t, conn, 0, 0, func(e *models.Event) { e.Name = "Draft"; e.Published = false })
	full := testdb.MustCreateEvent(t, conn, 0, 0, func(e *models.Event) { e.Name = "Tiny"; e.Capacity = intPtr(1) })
	guest := testdb.MustCreateUser(t, conn, "guest001")
	testdb.MustAddGuest(t, conn, full.ID, guest.ID)

	regular := Viewer{UserID: guest.ID, Role: enums.RoleRegular}
	page, err := svc.List(ctx, ListFilter{}, regular)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Count)

	hideFull := false
	page, err = svc.List(ctx, ListFilter{ShowFull: &hideFull}, regular)
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Count)
	assert.Equal(t, "Open house", page.Results[0].Name)

	unpublished := false
	page, err = svc.List(ctx, ListFilter{Published: &unpublished}, manager())
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Count)
	assert.Equal(t, "Draft", page.Results[0].Name)

	yes := true
	_, err = svc.List(ctx, ListFilter{Started: &yes, Ended: &yes}, manager())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestUpdatePermissionsAndBudget(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	event := testdb.MustCreateEvent(t, conn, 100, 60, nil)
	organizer := testdb.MustCreateUser(t, conn, "organiz1")
	outsider := testdb.MustCreateUser(t, conn, "outside1")
	testdb.MustAddOrganizer(t, conn, event.ID, organizer.ID)

	name := "Renamed"
	_, err := svc.Update(ctx, event.ID, UpdateInput{Name: &name}, Viewer{UserID: outsider.ID, Role: enums.RoleRegular})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = svc.Update(ctx, event.ID, UpdateInput{Points: intPtr(200)}, Viewer{UserID: organizer.ID, Role: enums.RoleRegular})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	res, err := svc.Update(ctx, event.ID, UpdateInput{Name: &name}, Viewer{UserID: organizer.ID, Role: enums.RoleRegular})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", res["name"])

	_, err = svc.Update(ctx, event.ID, UpdateInput{Points: intPtr(59)}, manager())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "allocation below awarded")

	res, err = svc.Update(ctx, event.ID, UpdateInput{Points: intPtr(80)}, manager())
	require.NoError(t, err)
	assert.Equal(t, 20, res["pointsRemain"])

	no := false
	_, err = svc.Update(ctx, event.ID, UpdateInput{Published: &no}, manager())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Update(ctx, event.ID, UpdateInput{}, manager())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestUpdateFreezesStartedEvent(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	event := testdb.MustCreateEvent(t, conn, 10, 0, func(e *models.Event) {
		e.StartTime = time.Now().UTC().Add(-time.Hour)
	})

	location := "Elsewhere"
	_, err := svc.Update(ctx, event.ID, UpdateInput{Location: &location}, manager())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	end := time.Now().UTC().Add(5 * time.Hour)
	res, err := svc.Update(ctx, event.ID, UpdateInput{EndTime: &end}, manager())
	require.NoError(t, err)
	assert.Contains(t, res, "endTime")
}

func TestUpdateCapacityRules(t *testing.T) {
	svc, conn, sink := newTestService(t)
	ctx := context.Background()
	event := testdb.MustCreateEvent(t, conn, 0, 0, func(e *models.Event) { e.Capacity = intPtr(5) })
	a := testdb.MustCreateUser(t, conn, "guestaaa")
	b := testdb.MustCreateUser(t, conn, "guestbbb")
	testdb.MustAddGuest(t, conn, event.ID, a.ID)
	testdb.MustAddGuest(t, conn, event.ID, b.ID)

	_, err := svc.Update(ctx, event.ID, UpdateInput{UnsetCapacity: true}, manager())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Update(ctx, event.ID, UpdateInput{Capacity: intPtr(1)}, manager())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Update(ctx, event.ID, UpdateInput{Capacity: intPtr(2)}, manager())
	require.NoError(t, err)
	assert.Len(t, sink.users, 2, "published event guests hear about updates")
}

func TestDeleteRefusesPublished(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	published := testdb.MustCreateEvent(t, conn, 0, 0, nil)
	draft := testdb.MustCreateEvent(t, conn, 0, 0, func(e *models.Event) { e.Published = false })

	assert.True(t, pkgerrors.Is(svc.Delete(ctx, published.ID), pkgerrors.CodeValidation))
	require.NoError(t, svc.Delete(ctx, draft.ID))
	assert.True(t, pkgerrors.Is(svc.Delete(ctx, draft.ID), pkgerrors.CodeNotFound))
}

func TestOrganizerMembership(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	event := testdb.MustCreateEvent(t, conn, 0, 0, nil)
	org := testdb.MustCreateUser(t, conn, "organiz1")
	guest := testdb.MustCreateUser(t, conn, "guest001")
	testdb.MustAddGuest(t, conn, event.ID, guest.ID)

	res, err := svc.AddOrganizer(ctx, event.ID, "organiz1")
	require.NoError(t, err)
	require.Len(t, res.Organizers, 1)

	_, err = svc.AddOrganizer(ctx, event.ID, "organiz1")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = svc.AddOrganizer(ctx, event.ID, "guest001")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = svc.AddOrganizer(ctx, event.ID, "nobody01")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	require.NoError(t, svc.RemoveOrganizer(ctx, event.ID, org.ID))
	assert.True(t, pkgerrors.Is(svc.RemoveOrganizer(ctx, event.ID, org.ID), pkgerrors.CodeNotFound))

	ended := testdb.MustCreateEvent(t, conn, 0, 0, func(e *models.Event) {
		e.StartTime = time.Now().UTC().Add(-3 * time.Hour)
		e.EndTime = time.Now().UTC().Add(-time.Hour)
	})
	_, err = svc.AddOrganizer(ctx, ended.ID, "organiz1")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeGone))
}

func TestGuestsAndRSVP(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	event := testdb.MustCreateEvent(t, conn, 0, 0, func(e *models.Event) { e.Capacity = intPtr(2) })
	org := testdb.MustCreateUser(t, conn, "organiz1")
	testdb.MustAddOrganizer(t, conn, event.ID, org.ID)
	alice := testdb.MustCreateUser(t, conn, "alice001")
	bob := testdb.MustCreateUser(t, conn, "bobby001")
	carol := testdb.MustCreateUser(t, conn, "carol001")

	_, err := svc.AddGuest(ctx, event.ID, "alice001", Viewer{UserID: bob.ID, Role: enums.RoleRegular})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	added, err := svc.AddGuest(ctx, event.ID, "alice001", Viewer{UserID: org.ID, Role: enums.RoleRegular})
	require.NoError(t, err)
	assert.EqualValues(t, 1, added.NumGuests)
	assert.Equal(t, "alice001", added.GuestAdded.Utorid)

	_, err = svc.RSVP(ctx, event.ID, alice.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "already a guest")
	_, err = svc.RSVP(ctx, event.ID, org.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "organizer cannot rsvp")

	added, err = svc.RSVP(ctx, event.ID, bob.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, added.NumGuests)

	_, err = svc.RSVP(ctx, event.ID, carol.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeGone), "event is full")

	require.NoError(t, svc.CancelRSVP(ctx, event.ID, bob.ID))
	assert.True(t, pkgerrors.Is(svc.CancelRSVP(ctx, event.ID, bob.ID), pkgerrors.CodeNotFound))

	require.NoError(t, svc.RemoveGuest(ctx, event.ID, alice.ID))
	assert.True(t, pkgerrors.Is(svc.RemoveGuest(ctx, event.ID, alice.ID), pkgerrors.CodeNotFound))

	draft := testdb.MustCreateEvent(t, conn, 0, 0, func(e *models.Event) { e.Published = false })
	_, err = svc.RSVP(ctx, draft.ID, carol.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestIncrementAwardedGuardsBudget(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	event := testdb.MustCreateEvent(t, conn, 100, 90, nil)

	err := repo.IncrementAwardedWithTx(conn, event.ID, 15)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	require.NoError(t, repo.IncrementAwardedWithTx(conn, event.ID, 10))

	reloaded, err := repo.FindByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.PointsRemaining())
}
